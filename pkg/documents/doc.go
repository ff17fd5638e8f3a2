// Package documents stores user-owned files and their metadata.
//
// Each document row points at an object in a storage.ObjectStore. Rows are always
// read and written through the owner's user id, so a document that belongs to someone
// else is indistinguishable from one that does not exist.
//
// Upload writes the object first and inserts the row second; if the insert fails the
// object is removed again. Delete removes the object first and the row second; if the
// object cannot be removed the row stays and the caller sees an upstream error.
package documents
