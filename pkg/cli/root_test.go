package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/config"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

func newTestEnv(t *testing.T) (*Env, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = string(storage.DialectSQLite)
	cfg.Database.URL = filepath.Join(t.TempDir(), "club.db")
	cfg.Auth.BcryptCost = 4

	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})

	out := &bytes.Buffer{}
	return &Env{Config: cfg, Out: out, Log: log}, out
}

func TestNewRootCommand(t *testing.T) {
	env, _ := newTestEnv(t)
	root := NewRootCommand(env)

	assert.Equal(t, "clubctl", root.Name)

	expectedCommands := []string{"migrate", "bootstrap-admin", "issue-token", "cleanup-tokens", "audit", "audit-archive"}
	for _, cmdName := range expectedCommands {
		assert.Contains(t, root.Subcommands, cmdName, "Expected subcommand %s to be registered", cmdName)
	}
	assert.Equal(t, len(expectedCommands), len(root.Subcommands))
}

func TestCommandUsage(t *testing.T) {
	env, _ := newTestEnv(t)
	root := NewRootCommand(env)

	var buf bytes.Buffer
	require.NoError(t, root.usage(&buf))

	output := buf.String()
	assert.Contains(t, output, "Usage: clubctl <command> [args]")
	assert.Contains(t, output, "bootstrap-admin")
	assert.Less(t, strings.Index(output, "audit"), strings.Index(output, "migrate"), "commands are listed in name order")
}

func TestCommandExecute(t *testing.T) {
	env, _ := newTestEnv(t)
	root := NewRootCommand(env)

	var received []string
	root.Subcommands["test"] = &Command{
		Name: "test",
		Run: func(args []string) error {
			received = args
			return nil
		},
	}

	require.NoError(t, root.Execute([]string{"test", "-x", "1"}))
	assert.Equal(t, []string{"-x", "1"}, received)

	err := root.Execute([]string{"nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestAdminCommands_EndToEnd(t *testing.T) {
	env, out := newTestEnv(t)
	root := NewRootCommand(env)

	require.NoError(t, root.Execute([]string{"migrate"}))
	// migrations are idempotent
	require.NoError(t, root.Execute([]string{"migrate"}))

	err := root.Execute([]string{"bootstrap-admin", "-email", "root@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")

	require.NoError(t, root.Execute([]string{"bootstrap-admin", "-email", "Root@Example.com", "-password", "correct horse"}))
	out.Reset()

	err = root.Execute([]string{"bootstrap-admin", "-email", "root@example.com", "-password", "correct horse"})
	require.Error(t, err, "email is unique")

	require.NoError(t, root.Execute([]string{"issue-token", "-email", "root@example.com"}))
	token := strings.TrimSpace(out.String())
	assert.NotEmpty(t, token)
	out.Reset()

	require.NoError(t, root.Execute([]string{"cleanup-tokens"}))

	require.NoError(t, root.Execute([]string{"audit", "-type", string(audit.EventTypeMemberCreate)}))
	var event audit.Event
	require.NoError(t, json.NewDecoder(out).Decode(&event))
	assert.Equal(t, audit.EventTypeMemberCreate, event.EventType)

	db, err := storage.Open(context.Background(), env.Config.Database)
	require.NoError(t, err)
	defer db.Close()
	m, err := members.NewStore(db).GetByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, members.RoleAppAdmin, m.GlobalRole)
	assert.True(t, m.IsActive())
}

func TestIssueToken_InactiveMember(t *testing.T) {
	env, _ := newTestEnv(t)
	root := NewRootCommand(env)
	require.NoError(t, root.Execute([]string{"migrate"}))

	db, err := storage.Open(context.Background(), env.Config.Database)
	require.NoError(t, err)
	m := &members.Member{Email: "idle@example.com", GlobalRole: members.RoleAppAdmin}
	require.NoError(t, members.NewStore(db).WithHashCost(4).Create(context.Background(), m, "password123"))
	db.Close()

	err = root.Execute([]string{"issue-token", "-email", "idle@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not active")
}
