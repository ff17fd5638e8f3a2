// Package bootstrap prepares a docket installation: it applies the embedded
// permission catalog and built-in roles, and provides the account helpers used
// by the admin CLI.
//
// The catalog in seed.yaml defines three roles. viewer has no permissions and is
// the default for self-registration; editor manages its own documents; admin holds
// every permission. Apply only creates what is missing, so roles that an operator
// has since edited keep their permissions.
package bootstrap
