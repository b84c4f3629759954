// Command hrctl is a terminal client for the HR portal backend and an
// operator tool for the server-side credential store.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/peopleops/hrportal/config"
	"github.com/peopleops/hrportal/internal/adapters/tokenstore"
	"github.com/peopleops/hrportal/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	// StorePath is the credentials file shared by every client command.
	StorePath string
	In        io.Reader
	Out       io.Writer
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}
	logger = bootstrap.ConfigureLogger(cfg.Observability.Logging)

	storePath := os.Getenv("HRCTL_CREDENTIALS")
	if storePath == "" {
		if storePath, err = tokenstore.DefaultFilePath(); err != nil {
			logger.Error("locate credentials file", "error", err)
			os.Exit(1) //nolint:forbidigo // CLI cannot run without a credentials path
		}
	}

	cmdCtx := &commandContext{
		Ctx:       context.Background(),
		Logger:    logger,
		Config:    cfg,
		StorePath: storePath,
		In:        os.Stdin,
		Out:       os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Sign in with email and password and store the session token",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "Clear the stored session and application tokens",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the signed-in user, role and capabilities",
			run:         runWhoami,
		},
		"apps": {
			name:        "apps",
			description: "List the applications the signed-in user may launch",
			run:         runApps,
		},
		"launch": {
			name:        "launch",
			description: "Exchange the session for an application token and print the launch URL",
			run:         runLaunch,
		},
		"migrate": {
			name:        "migrate",
			description: "Apply credential slot migrations",
			run:         runMigrations,
		},
		"migrate-status": {
			name:        "migrate-status",
			description: "Show which credential slot migrations are applied",
			run:         runMigrationStatus,
		},
		"purge-slots": {
			name:        "purge-slots",
			description: "Delete expired server-side credential slots once",
			run:         runPurgeSlots,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: hrctl <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
