package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jimf8th/my-skool-club-sub000/pkg/config"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// Env is what every clubctl command runs against
type Env struct {
	Config *config.Config
	Out    io.Writer
	Log    *logrus.Logger
}

// NewEnv returns an Env writing to stdout with a text logger on stderr
func NewEnv(cfg *config.Config) *Env {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	return &Env{Config: cfg, Out: os.Stdout, Log: log}
}

// NewRootCommand creates the root command
func NewRootCommand(env *Env) *Command {
	root := &Command{
		Name:        "clubctl",
		Description: "clubctl - administration for the club server",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("clubctl", flag.ExitOnError),
	}

	root.Subcommands["migrate"] = newMigrateCommand(env)
	root.Subcommands["bootstrap-admin"] = newBootstrapAdminCommand(env)
	root.Subcommands["issue-token"] = newIssueTokenCommand(env)
	root.Subcommands["cleanup-tokens"] = newCleanupTokensCommand(env)
	root.Subcommands["audit"] = newAuditCommand(env)
	root.Subcommands["audit-archive"] = newAuditArchiveCommand(env)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage(os.Stdout)
	}

	if strings.EqualFold(args[0], "-h") || strings.EqualFold(args[0], "--help") {
		return c.usage(os.Stdout)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(w io.Writer) error {
	fmt.Fprintf(w, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(w, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-17s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// dbFlags registers -driver and -db-url, defaulting to the loaded configuration
func dbFlags(fs *flag.FlagSet, cfg *config.Config) *storage.Config {
	db := cfg.Database
	fs.StringVar(&db.Driver, "driver", db.Driver, "Database driver (postgres or sqlite3)")
	fs.StringVar(&db.URL, "db-url", db.URL, "Database connection URL")
	return &db
}

func openDB(ctx context.Context, cfg storage.Config) (*sql.DB, error) {
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}
