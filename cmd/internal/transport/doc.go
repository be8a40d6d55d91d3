// Package transport is the single egress point for backend calls.
//
// Every request reads the access credential from the injected CredentialSource
// and, when one is present, attaches it as "Authorization: Bearer <token>".
// Non-2xx responses and network errors come back as *Failure, classified into
// validation, auth, transport and server kinds. Registered observers see every
// exchange, in order, before Request returns.
package transport
