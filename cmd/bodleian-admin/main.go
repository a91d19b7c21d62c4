// Package main is the entry point for the Bodleian Archive admin CLI.
// It talks to the database directly, so it works even when the server
// is down or no manager account exists yet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/config"
	"github.com/prn-tf/bodleian-archive/internal/domain"
	"github.com/prn-tf/bodleian-archive/internal/lock"
	"github.com/prn-tf/bodleian-archive/internal/repository"
	"github.com/prn-tf/bodleian-archive/internal/repository/sqlite"
	"github.com/prn-tf/bodleian-archive/internal/service"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("Bodleian Archive Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		if err := runUser(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "capacity":
		if err := runCapacity(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runUser(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: bodleian-admin user <create|list>")
	}

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("user create", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		email := fs.String("email", "", "email address (login)")
		password := fs.String("password", "", "initial password (min 8 characters)")
		displayName := fs.String("name", "", "display name")
		role := fs.String("role", domain.RoleNameUser, "role: user, admin or manager")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return userCreate(*configPath, *email, *password, *displayName, *role)

	case "list":
		fs := flag.NewFlagSet("user list", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return userList(*configPath)

	case "deactivate":
		fs := flag.NewFlagSet("user deactivate", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		id := fs.Int64("id", 0, "user ID to deactivate")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return userSetActive(*configPath, *id, false)

	case "activate":
		fs := flag.NewFlagSet("user activate", flag.ExitOnError)
		configPath := fs.String("config", "", "path to config file")
		id := fs.Int64("id", 0, "user ID to activate")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return userSetActive(*configPath, *id, true)

	default:
		return fmt.Errorf("unknown user command: %s", args[0])
	}
}

func runCapacity(args []string) error {
	if len(args) < 1 || args[0] != "recount" {
		return fmt.Errorf("usage: bodleian-admin capacity recount")
	}

	fs := flag.NewFlagSet("capacity recount", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	ctx := context.Background()
	env, err := openEnv(ctx, *configPath)
	if err != nil {
		return err
	}
	defer env.close()

	// A single-shot CLI process has nothing to contend with; locks
	// would only guard against itself.
	capacity := service.NewCapacityService(
		env.docRepo, env.locRepo, lock.NewNoOpLocker(), env.cfg.Capacity, nil, env.logger)

	if err := capacity.Recount(ctx, systemActor()); err != nil {
		return err
	}

	report, err := capacity.Report(ctx, systemActor())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tUSED\tCAPACITY\tDOCUMENTS")
	for _, loc := range report {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\n",
			loc.Location.ID, loc.Location.Name, loc.Location.UsedBytes, loc.Location.CapacityBytes, loc.DocumentCount)
	}
	return w.Flush()
}

func userCreate(configPath, email, password, displayName, roleName string) error {
	if email == "" || password == "" || displayName == "" {
		return fmt.Errorf("--email, --password and --name are required")
	}

	ctx := context.Background()
	env, err := openEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.close()

	role, err := env.roleRepo.GetByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("look up role %q: %w", roleName, err)
	}

	users := service.NewUserService(
		env.userRepo, env.roleRepo, env.docRepo, env.audit, env.cfg.Auth.BcryptCost, env.logger)

	user, err := users.Create(ctx, systemActor(), service.CreateUserInput{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
		RoleID:      role.ID,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created user %d (%s) with role %s\n", user.ID, user.Email, roleName)
	return nil
}

func userSetActive(configPath string, userID int64, active bool) error {
	if userID <= 0 {
		return fmt.Errorf("--id is required")
	}

	ctx := context.Background()
	env, err := openEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.close()

	users := service.NewUserService(
		env.userRepo, env.roleRepo, env.docRepo, env.audit, env.cfg.Auth.BcryptCost, env.logger)

	user, err := users.SetActive(ctx, systemActor(), userID, active, service.RequestMeta{})
	if err != nil {
		return err
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("User %d (%s) %s\n", user.ID, user.Email, state)
	return nil
}

func userList(configPath string) error {
	ctx := context.Background()
	env, err := openEnv(ctx, configPath)
	if err != nil {
		return err
	}
	defer env.close()

	result, err := env.userRepo.List(ctx, repository.ListOptions{Limit: 100})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE\tACTIVE")
	for _, u := range result.Items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\n", u.ID, u.Email, u.DisplayName, u.RoleID, u.IsActive)
	}
	return w.Flush()
}

// env bundles the repositories the CLI commands share.
type env struct {
	cfg      *config.Config
	db       *sqlite.DB
	docRepo  repository.DocumentRepository
	locRepo  repository.LocationRepository
	userRepo repository.UserRepository
	roleRepo repository.RoleRepository
	audit    *service.AuditService
	logger   zerolog.Logger
}

func openEnv(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	auditSvc := service.NewAuditService(sqlite.NewAuditRepository(db), nil, cfg.Audit, nil, logger)

	return &env{
		cfg:      cfg,
		db:       db,
		docRepo:  sqlite.NewDocumentRepository(db),
		locRepo:  sqlite.NewLocationRepository(db),
		userRepo: sqlite.NewUserRepository(db),
		roleRepo: sqlite.NewRoleRepository(db),
		audit:    auditSvc,
		logger:   logger,
	}, nil
}

func (e *env) close() {
	e.audit.Close()
	e.db.Close()
}

// systemActor grants every capability. CLI commands run on the operator's
// own machine against the database file, so there is nothing to gate.
func systemActor() *service.Actor {
	return &service.Actor{
		User: &domain.User{ID: 0, DisplayName: "system", IsActive: true},
		Permission: &domain.Permission{
			CanView:        true,
			CanModify:      true,
			CanAdd:         true,
			CanRemove:      true,
			CanManageUsers: true,
		},
	}
}

func printUsage() {
	fmt.Println(`Bodleian Archive Admin CLI

Usage:
  bodleian-admin <command> [arguments]

Commands:
  user create       Create a user account (works before any manager exists)
  user list         List user accounts
  user deactivate   Deactivate a user account
  user activate     Reactivate a user account
  capacity          Recount used bytes for every storage location
  version           Print version information
  help              Show this help message

Examples:
  bodleian-admin user create --email admin@example.com --password secret123 --name "Site Admin" --role manager
  bodleian-admin user list
  bodleian-admin user deactivate --id 4
  bodleian-admin capacity recount

All commands accept --config <path> to point at a config file.`)
}
