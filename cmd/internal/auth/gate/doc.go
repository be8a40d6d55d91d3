// Package gate decides whether a protected view may be shown.
//
// The Gate admits a request iff an access credential is stored. The Tracker
// derives the session state (unauthenticated, authenticated, expired) from the
// store plus the outcome of the last protected call: a 401/403 for the
// credential that is still current expires the session and clears the store.
package gate
