// Package rbac implements docket's role-based access control.
//
// # Model
//
// A permission is a named capability such as "documents.create". A role is a
// named bundle of permissions, and each user holds at most one role. Updating a
// role's permissions replaces the whole set.
//
// # Authorization
//
// Every protected operation is listed in a static Policy table:
//
//	rbac.OpCreateDocument: {rbac.PermDocumentsCreate}
//
// The Guard reads the caller's identity from the request context, loads the
// user's role and permissions in a single query, and allows the operation only
// when every required name is present. Nothing is cached, so a role change
// applies to the very next request.
//
// Routes are registered through the guard:
//
//	guard.Handle(router, http.MethodPost, "/documents", rbac.OpCreateDocument, h.Upload)
//
// # Deletion rules
//
// A permission cannot be deleted while a role grants it (ErrPermissionInUse).
// A role cannot be deleted while a user holds it (ErrRoleInUse), and protected
// roles such as the default registration role cannot be deleted or renamed.
package rbac
