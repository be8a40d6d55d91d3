// Package credstore holds the access and refresh credentials for the current user.
//
// A Store keeps the pair in memory behind a RWMutex and writes it through to a
// persistence Backend (bolt file, redis hash, postgres row, or nothing at all),
// so a restarted process resumes the session it had before.
//
// The pair is all-or-nothing: Set rejects a partial pair, Clear removes both
// kinds under one lock, and a partial pair found in persistence is purged at Open.
package credstore
