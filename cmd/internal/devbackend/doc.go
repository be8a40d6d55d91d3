// Package devbackend is an in-memory stand-in for the study backend.
//
// It serves the same routes and payload shapes (simplejwt token pair, DRF
// validation errors, topics and flashcards) so the client stack can be tested
// end to end without a database. It also records every request it receives,
// including the Authorization header, for assertions.
package devbackend
