// Command boardctl manages boards from the terminal, against a taskboard
// server or directly against a local database file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CrowderSoup/taskboard/database"
	"github.com/CrowderSoup/taskboard/gateway"
	"github.com/CrowderSoup/taskboard/remote"
	"github.com/CrowderSoup/taskboard/store"
)

func main() {
	if err := newCLI().root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	root *cobra.Command
	v    *viper.Viper
	log  *slog.Logger

	store  *store.Store
	remote *remote.Client
	close  func()
}

func newCLI() *cli {
	c := &cli{v: viper.New(), close: func() {}}
	c.setupConfig()

	c.root = &cobra.Command{
		Use:   "boardctl",
		Short: "Manage taskboard boards, cards and notes",
		Long: `boardctl edits the same boards as the web app.

Configuration sources, highest precedence first:
  1. Command line flags
  2. Environment variables (TASKBOARD_SERVER, TASKBOARD_TOKEN, TASKBOARD_DB, ...)
  3. taskboard.yaml in the current directory or ~/.config/taskboard`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			c.log = newLogger(c.v.GetString("log-level"))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}

	flags := c.root.PersistentFlags()
	flags.String("server", "http://localhost:3001", "taskboard server URL")
	flags.String("token", "", "bearer token for the server")
	flags.String("db", "", "use this SQLite file directly instead of a server")
	flags.String("owner", "", "user email whose data --db opens")
	flags.Duration("timeout", 15*time.Second, "request timeout")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	_ = c.v.BindPFlags(flags)

	c.root.AddCommand(
		c.boardsCmd(),
		c.boardCmd(),
		c.listCmd(),
		c.cardCmd(),
		c.itemCmd(),
		c.noteCmd(),
		c.moveCmd(),
		c.dueCmd(),
		c.exportCmd(),
		c.importCmd(),
		c.watchCmd(),
	)
	return c
}

func (c *cli) setupConfig() {
	if path := os.Getenv("TASKBOARD_CONFIG"); path != "" {
		c.v.SetConfigFile(path)
	} else {
		c.v.SetConfigName("taskboard")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.config/taskboard")
	}
	c.v.SetEnvPrefix("TASKBOARD")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
	_ = c.v.ReadInConfig()
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

// gateway opens the configured backend.
func (c *cli) gateway() (gateway.Gateway, error) {
	if path := c.v.GetString("db"); path != "" {
		owner := c.v.GetString("owner")
		if owner == "" {
			return nil, errors.New("--owner is required with --db")
		}
		db, err := database.InitDB(path)
		if err != nil {
			return nil, err
		}
		data := database.NewDataService(db)
		if err := data.EnsureUser(context.Background(), owner); err != nil {
			db.Close()
			return nil, err
		}
		c.close = func() { db.Close() }
		return data.Gateway(owner), nil
	}

	client, err := remote.New(c.v.GetString("server"), c.v.GetString("token"),
		remote.WithTimeout(c.v.GetDuration("timeout")),
		remote.WithLogger(c.log),
	)
	if err != nil {
		return nil, err
	}
	c.remote = client
	return client, nil
}

// open loads the store for commands that work on the tree.
func (c *cli) open(ctx context.Context) (*store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	gw, err := c.gateway()
	if err != nil {
		return nil, err
	}
	s := store.New(gw, store.WithLogger(c.log))
	if err := s.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}
	c.store = s
	return s, nil
}
