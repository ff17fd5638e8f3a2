package rbac

import "sort"

// Operation identifies a protected API operation
type Operation string

const (
	OpLogout     Operation = "auth.logout"
	OpGetProfile Operation = "users.me"

	OpCreateUser Operation = "users.create"
	OpListUsers  Operation = "users.list"
	OpGetUser    Operation = "users.get"
	OpUpdateUser Operation = "users.update"
	OpDeleteUser Operation = "users.delete"

	OpCreateRole Operation = "roles.create"
	OpListRoles  Operation = "roles.list"
	OpGetRole    Operation = "roles.get"
	OpUpdateRole Operation = "roles.update"
	OpDeleteRole Operation = "roles.delete"

	OpCreatePermission Operation = "permissions.create"
	OpListPermissions  Operation = "permissions.list"
	OpGetPermission    Operation = "permissions.get"
	OpUpdatePermission Operation = "permissions.update"
	OpDeletePermission Operation = "permissions.delete"

	OpCreateDocument   Operation = "documents.create"
	OpListDocuments    Operation = "documents.list"
	OpGetDocument      Operation = "documents.get"
	OpDownloadDocument Operation = "documents.download"
	OpUpdateDocument   Operation = "documents.update"
	OpDeleteDocument   Operation = "documents.delete"
)

// Policy maps each operation to the permission names it requires.
// All listed names are required. An empty list allows any authenticated caller.
type Policy map[Operation][]string

// DefaultPolicy returns the operation table served by the API
func DefaultPolicy() Policy {
	return Policy{
		OpLogout:     nil,
		OpGetProfile: nil,

		OpCreateUser: {PermUsersCreate},
		OpListUsers:  {PermUsersView},
		OpGetUser:    {PermUsersView},
		OpUpdateUser: {PermUsersEdit},
		OpDeleteUser: {PermUsersDelete},

		OpCreateRole: {PermRolesCreate},
		OpListRoles:  {PermRolesView},
		OpGetRole:    {PermRolesView},
		OpUpdateRole: {PermRolesEdit},
		OpDeleteRole: {PermRolesDelete},

		OpCreatePermission: {PermPermissionsManage},
		OpListPermissions:  {PermPermissionsManage},
		OpGetPermission:    {PermPermissionsManage},
		OpUpdatePermission: {PermPermissionsManage},
		OpDeletePermission: {PermPermissionsManage},

		OpCreateDocument:   {PermDocumentsCreate},
		OpListDocuments:    {PermDocumentsView},
		OpGetDocument:      {PermDocumentsView},
		OpDownloadDocument: {PermDocumentsView},
		OpUpdateDocument:   {PermDocumentsEdit},
		OpDeleteDocument:   {PermDocumentsDelete},
	}
}

// Required returns the permissions declared for op and whether op is declared at all
func (p Policy) Required(op Operation) ([]string, bool) {
	required, ok := p[op]
	return required, ok
}

// PermissionNames returns every distinct permission the policy references, sorted
func (p Policy) PermissionNames() []string {
	seen := make(map[string]struct{})
	for _, required := range p {
		for _, name := range required {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
