// Package identity holds the user-submitted identity material for studydeck.
//
// An Identity lives only for the duration of one login or registration request.
// It is never stored, and its password is redacted from every string and log form.
package identity
