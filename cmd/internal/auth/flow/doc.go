// Package flow turns user-submitted identity material into stored credentials.
//
// Login stores the returned pair and marks the session authenticated. Register
// wipes any stored session before it sends anything. Logout is local and never
// waits on the network. Every operation that changes the session advances a
// generation counter; a login or refresh response that arrives after the
// generation moved on is discarded with ErrStaleResponse.
package flow
