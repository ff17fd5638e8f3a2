// Package users stores accounts and serves the user administration API.
//
// Usernames are unique and at least four characters long, emails must parse as
// an RFC 5322 address, and passwords are at least six characters. Only the
// bcrypt hash is stored, and it is never serialized.
//
// A user holds at most one role. A user who still owns documents cannot be
// deleted (ErrUserHasDocuments).
package users
