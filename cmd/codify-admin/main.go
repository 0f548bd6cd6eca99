// Command codify-admin is the operator tool for a Codify credential
// database. It lists accounts and resets passwords without the recovery
// secrets, for when the only administrator is locked out.
//
//	codify-admin [-config codify.yaml] [-driver sqlite] [-dsn codify.db] list
//	codify-admin [flags] reset <username> [new-password]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/arturkam25/Codify"
	"github.com/arturkam25/Codify/store/sqlstore"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("codify-admin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "YAML config file; its database section selects the store")
		driver     = fs.String("driver", "", "database driver (sqlite, postgres, mysql); overrides the config file")
		dsn        = fs.String("dsn", "", "database DSN; overrides the config file")
		verbose    = fs.Bool("v", false, "log engine warnings to stderr")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: codify-admin [flags] list")
		fmt.Fprintln(stderr, "       codify-admin [flags] reset <username> [new-password]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg := codify.DefaultConfig()
	dbCfg := sqlstore.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = codify.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
		if dbCfg, err = sqlstore.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return 1
		}
	}
	if *driver != "" {
		dbCfg.Driver = *driver
	}
	if *dsn != "" {
		dbCfg.DSN = *dsn
	}

	level := slog.LevelError
	if *verbose {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	store, err := sqlstore.Open(ctx, dbCfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	engine, err := codify.New().
		WithConfig(cfg).
		WithStore(store).
		WithAuditSink(codify.NewSlogSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer engine.Close()

	switch cmd := fs.Arg(0); cmd {
	case "list":
		if fs.NArg() != 1 {
			fs.Usage()
			return 2
		}
		err = listUsers(ctx, engine, stdout)
	case "reset":
		if fs.NArg() < 2 || fs.NArg() > 3 {
			fs.Usage()
			return 2
		}
		err = resetPassword(ctx, engine, fs.Arg(1), fs.Arg(2), stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", codify.Message(err))
		return 1
	}
	return 0
}

func listUsers(ctx context.Context, engine *codify.Engine, w io.Writer) error {
	users, err := engine.EmergencyListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(w, "no users")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tADMIN\tSTATUS")
	for _, u := range users {
		admin := "no"
		if u.IsAdmin {
			admin = "yes"
		}
		status := "active"
		if u.Disabled {
			status = "locked"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s (%d failed)\n", u.ID, u.Username, u.Email, admin, status, u.FailedAttempts)
	}
	return tw.Flush()
}

var errPasswordsDiffer = errors.New("passwords do not match")

func resetPassword(ctx context.Context, engine *codify.Engine, username, pw string, stdout, stderr io.Writer) error {
	if pw == "" {
		var err error
		if pw, err = promptNewPassword(stderr); err != nil {
			if errors.Is(err, errPasswordsDiffer) {
				return codify.ErrPasswordMismatch
			}
			return err
		}
	}

	if err := engine.EmergencyReset(ctx, username, pw); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Password for %s reset; account unlocked.\n", username)
	return nil
}

func promptNewPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "New password: ")
	first, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprint(w, "Confirm password: ")
	second, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	if string(first) != string(second) {
		return "", errPasswordsDiffer
	}
	return strings.TrimSpace(string(first)), nil
}
