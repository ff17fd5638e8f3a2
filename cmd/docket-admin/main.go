package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/platinummonkey/docket/pkg/auth"
	"github.com/platinummonkey/docket/pkg/bootstrap"
	"github.com/platinummonkey/docket/pkg/config"
	"github.com/platinummonkey/docket/pkg/database"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
	"github.com/platinummonkey/docket/pkg/users"
)

const usage = `docket-admin manages a docket database.

Usage:
  docket-admin <command> [flags]

Commands:
  migrate                                   Apply pending schema migrations
  seed                                      Create the built-in permissions and roles
  assign-role -username U -role R           Give a user a role
  create-admin -username U -email E -password P
                                            Create a user holding the admin role

Configuration is read the same way as the docket server (DOCKET_CONFIG and DOCKET_* variables).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string) error {
	switch command {
	case "migrate":
		return withDB(ctx, func(ctx context.Context, cfg *config.Config, env *adminEnv) error {
			applied, err := database.Migrate(ctx, env.db, cfg.Database.Driver)
			if err != nil {
				return err
			}
			fmt.Printf("Applied %d migration(s)\n", len(applied))
			return nil
		})
	case "seed":
		return withDB(ctx, func(ctx context.Context, cfg *config.Config, env *adminEnv) error {
			catalog, err := bootstrap.DefaultCatalog()
			if err != nil {
				return err
			}
			result, err := bootstrap.Apply(ctx, env.roles, catalog)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d permission(s) and %d role(s)\n", len(result.PermissionsCreated), len(result.RolesCreated))
			return nil
		})
	case "assign-role":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		username := fs.String("username", "", "Username to update")
		role := fs.String("role", "", "Role name to assign")
		fs.Parse(args)
		if *username == "" || *role == "" {
			return fmt.Errorf("assign-role requires -username and -role")
		}
		return withDB(ctx, func(ctx context.Context, cfg *config.Config, env *adminEnv) error {
			user, err := bootstrap.AssignRole(ctx, env.users, env.roles, *username, *role)
			if err != nil {
				return err
			}
			fmt.Printf("User %s (id %d) now has role %s\n", user.Username, user.ID, user.RoleName)
			return nil
		})
	case "create-admin":
		fs := flag.NewFlagSet(command, flag.ExitOnError)
		username := fs.String("username", "", "Admin username")
		email := fs.String("email", "", "Admin email")
		password := fs.String("password", "", "Admin password")
		fs.Parse(args)
		if *username == "" || *email == "" || *password == "" {
			return fmt.Errorf("create-admin requires -username, -email and -password")
		}
		return withDB(ctx, func(ctx context.Context, cfg *config.Config, env *adminEnv) error {
			hasher := auth.NewPasswordHasher(auth.BcryptCost, cfg.Auth.BcryptConcurrency, nil)
			user, err := bootstrap.CreateAdmin(ctx, env.users, env.roles, hasher, *username, *email, *password)
			if err != nil {
				return err
			}
			fmt.Printf("Created admin %s (id %d)\n", user.Username, user.ID)
			return nil
		})
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", command, usage)
	}
}

type adminEnv struct {
	db    *sql.DB
	users *users.Store
	roles *rbac.Store
}

// withDB loads configuration, opens the database and runs fn
func withDB(ctx context.Context, fn func(ctx context.Context, cfg *config.Config, env *adminEnv) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLoggerWithFormat(cfg.LogLevel(), "text", os.Stderr)
	ctx = observability.WithLogger(ctx, logger)

	db, err := database.Open(ctx, cfg.DatabaseOptions())
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, cfg, &adminEnv{
		db:    db,
		users: users.NewStore(db),
		roles: rbac.NewStore(db, cfg.Auth.DefaultRole),
	})
}
