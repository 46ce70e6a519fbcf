// Package main is the entry point for the Hermes admin CLI.
// This tool provides administrative commands for managing users.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/prn-tf/hermes/internal/app"
	"github.com/prn-tf/hermes/internal/config"
	"github.com/prn-tf/hermes/internal/domain"
	"github.com/prn-tf/hermes/internal/logging"
	"github.com/prn-tf/hermes/internal/pkg/crypto"
	"github.com/prn-tf/hermes/internal/service"
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
		fmt.Printf("Hermes Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "user":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(1)
		}
		if err := runUser(os.Args[2], os.Args[3:]); err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				for _, f := range verr.Errors {
					fmt.Fprintf(os.Stderr, "  %s\n", f)
				}
			}
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

// userFlags holds every flag the user subcommands accept.
type userFlags struct {
	config   string
	id       int64
	name     string
	email    string
	password string
	salt     string
	digest   string
	admin    bool
	limit    int
	offset   int
}

func runUser(sub string, args []string) error {
	var f userFlags
	fs := flag.NewFlagSet("hermes-admin user "+sub, flag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", "", "path to config file")
	fs.Int64Var(&f.id, "id", 0, "user ID")
	fs.StringVar(&f.name, "name", "", "display name")
	fs.StringVar(&f.email, "email", "", "email address")
	fs.StringVar(&f.password, "password", "", "password")
	fs.StringVar(&f.salt, "salt", "", "legacy salt")
	fs.StringVar(&f.digest, "digest", "", "legacy SHA-256 hex digest")
	fs.BoolVar(&f.admin, "admin", false, "administrator flag")
	fs.IntVar(&f.limit, "limit", service.DefaultUserPageSize, "page size")
	fs.IntVar(&f.offset, "offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = false

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger.Level(zerolog.WarnLevel))
	if err != nil {
		return err
	}
	defer a.Close()

	switch sub {
	case "create":
		generated := f.password == ""
		if generated {
			if f.password, err = crypto.GeneratePassword(); err != nil {
				return err
			}
		}
		out, err := a.Users.Create(ctx, service.CreateUserInput{
			Name:     f.name,
			Email:    f.email,
			Password: f.password,
			IsAdmin:  f.admin,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created user %d <%s>\n", out.User.ID, out.User.Email)
		if generated {
			fmt.Printf("Generated password: %s\n", f.password)
		}

	case "import-legacy":
		user, err := a.Users.ImportLegacy(ctx, service.ImportLegacyInput{
			Name:     f.name,
			Email:    f.email,
			Salt:     f.salt,
			Digest:   f.digest,
			Password: f.password,
			IsAdmin:  f.admin,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Imported user %d <%s> with legacy credential\n", user.ID, user.Email)

	case "list":
		result, err := a.Users.List(ctx, service.ListUsersInput{Limit: f.limit, Offset: f.offset})
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tADMIN\tSCHEME\tCREATED")
		for _, u := range result.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%s\t%s\n",
				u.ID, u.Name, u.Email, u.IsAdmin, u.Credential.Scheme, u.CreatedAt.Format("2006-01-02"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("%d of %d users\n", len(result.Items), result.Total)

	case "delete":
		if f.id <= 0 {
			return errors.New("--id is required")
		}
		if err := a.Users.Destroy(ctx, f.id); err != nil {
			return err
		}
		fmt.Printf("Deleted user %d and everything they owned\n", f.id)

	case "set-admin":
		if f.id <= 0 {
			return errors.New("--id is required")
		}
		user, err := a.Users.SetAdmin(ctx, f.id, f.admin)
		if err != nil {
			return err
		}
		fmt.Printf("User %d admin=%t\n", user.ID, user.IsAdmin)

	default:
		return fmt.Errorf("unknown user command %q", sub)
	}

	return nil
}

func printUsage() {
	fmt.Println(`Hermes Admin CLI

Usage:
  hermes-admin <command> [arguments]

Commands:
  user        Manage users (create, import-legacy, list, delete, set-admin)
  version     Print version information
  help        Show this help message

Examples:
  hermes-admin user create --name "Ada" --email ada@example.com --admin
  hermes-admin user import-legacy --name "Bob" --email bob@example.com --salt <salt> --digest <sha256hex>
  hermes-admin user list --limit 50
  hermes-admin user set-admin --id 7 --admin=false
  hermes-admin user delete --id 7

"user create" prints a generated password when --password is omitted.
Every command accepts --config FILE; HERMES_* environment variables override it.`)
}
