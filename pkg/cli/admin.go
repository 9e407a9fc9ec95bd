package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		dialect, err := dbCfg.Dialect()
		if err != nil {
			return err
		}
		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := storage.RunMigrations(ctx, db, dialect)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		env.Log.WithFields(logrus.Fields{"dialect": dialect, "applied": applied}).Info("Migrations complete")
		return nil
	}
	return cmd
}

func newBootstrapAdminCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "bootstrap-admin",
		Description: "Create an active APP_ADMIN account",
		Flags:       flag.NewFlagSet("bootstrap-admin", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)
	email := cmd.Flags.String("email", "", "Admin email address")
	name := cmd.Flags.String("name", "", "Full name")
	password := cmd.Flags.String("password", "", "Password (defaults to $CLUB_BOOTSTRAP_PASSWORD)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			return fmt.Errorf("email is required")
		}
		if *password == "" {
			*password = os.Getenv("CLUB_BOOTSTRAP_PASSWORD")
		}
		if *password == "" {
			return fmt.Errorf("password is required (flag or CLUB_BOOTSTRAP_PASSWORD)")
		}

		ctx := context.Background()
		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		store := members.NewStore(db).WithHashCost(env.Config.Auth.BcryptCost)
		admin := &members.Member{
			Email:      *email,
			FullName:   *name,
			GlobalRole: members.RoleAppAdmin,
			Lifecycle:  lifecycle.Active,
		}
		if err := store.Create(ctx, admin, *password); err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}

		if sink, err := audit.NewDBLogger(db); err == nil {
			audit.NewRecorder(sink).Record(ctx, &audit.Event{
				EventType:    audit.EventTypeMemberCreate,
				ResourceType: audit.ResourceTypeMember,
				ResourceID:   strconv.FormatInt(admin.ID, 10),
				Message:      "bootstrap admin created by clubctl",
				Metadata:     map[string]interface{}{"email": admin.Email, "role": string(admin.GlobalRole)},
			})
		}

		env.Log.WithFields(logrus.Fields{"member_id": admin.ID, "email": admin.Email}).Info("Created app admin")
		fmt.Fprintln(env.Out, admin.ID)
		return nil
	}
	return cmd
}

func newIssueTokenCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "issue-token",
		Description: "Issue a bearer token for an active member",
		Flags:       flag.NewFlagSet("issue-token", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)
	email := cmd.Flags.String("email", "", "Member email address")
	ttl := cmd.Flags.Duration("ttl", env.Config.Auth.TokenTTL, "Token lifetime (0 for no expiry)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" {
			return fmt.Errorf("email is required")
		}

		ctx := context.Background()
		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		memberStore := members.NewStore(db)
		m, err := memberStore.GetByEmail(ctx, *email)
		if err != nil {
			return err
		}
		if !m.IsActive() {
			return fmt.Errorf("member %s is not active", m.Email)
		}

		format, err := env.Config.Auth.TokenFormat()
		if err != nil {
			return err
		}
		issued, err := auth.NewManager(auth.NewStore(db), memberStore, *ttl).
			WithTokenFormat(format).
			IssueToken(ctx, m.ID)
		if err != nil {
			return err
		}
		env.Log.WithFields(logrus.Fields{"member_id": m.ID, "token_id": issued.Record.ID}).Info("Issued token")
		fmt.Fprintln(env.Out, issued.Token)
		return nil
	}
	return cmd
}

func newCleanupTokensCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "cleanup-tokens",
		Description: "Delete expired bearer tokens",
		Flags:       flag.NewFlagSet("cleanup-tokens", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()
		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := auth.NewManager(auth.NewStore(db), members.NewStore(db), 0).CleanupExpired(ctx)
		if err != nil {
			return err
		}
		env.Log.Infof("Removed %d expired tokens", n)
		return nil
	}
	return cmd
}

func newAuditCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "Print audit events as JSON lines",
		Flags:       flag.NewFlagSet("audit", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)
	eventType := cmd.Flags.String("type", "", "Event type, e.g. approval.approve")
	actor := cmd.Flags.Int64("actor", 0, "Actor member id")
	club := cmd.Flags.Int64("club", 0, "Club id")
	since := cmd.Flags.Duration("since", 0, "Only events newer than this, e.g. 24h")
	limit := cmd.Flags.Int("limit", 100, "Maximum number of events")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		filter := audit.SearchFilter{EventType: audit.EventType(*eventType), Limit: *limit}
		if *actor > 0 {
			filter.ActorID = actor
		}
		if *club > 0 {
			filter.ClubID = club
		}
		if *since > 0 {
			t := time.Now().UTC().Add(-*since)
			filter.Since = &t
		}

		ctx := context.Background()
		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		logger, err := audit.NewDBLogger(db)
		if err != nil {
			return err
		}
		events, err := logger.Search(ctx, filter)
		if err != nil {
			return fmt.Errorf("audit search failed: %w", err)
		}

		enc := json.NewEncoder(env.Out)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	return cmd
}

func newAuditArchiveCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "audit-archive",
		Description: "Upload recent audit events to S3-compatible storage",
		Flags:       flag.NewFlagSet("audit-archive", flag.ContinueOnError),
	}
	dbCfg := dbFlags(cmd.Flags, env.Config)
	var s3cfg audit.S3Config
	cmd.Flags.StringVar(&s3cfg.Bucket, "bucket", os.Getenv("CLUB_ARCHIVE_BUCKET"), "Destination bucket")
	cmd.Flags.StringVar(&s3cfg.Prefix, "prefix", "audit", "Key prefix")
	cmd.Flags.StringVar(&s3cfg.Region, "region", "us-east-1", "Bucket region")
	cmd.Flags.StringVar(&s3cfg.Endpoint, "endpoint", "", "Custom endpoint, e.g. a MinIO URL")
	cmd.Flags.BoolVar(&s3cfg.UsePathStyle, "path-style", false, "Use path-style addressing")
	since := cmd.Flags.Duration("since", 24*time.Hour, "Archive events newer than this")
	limit := cmd.Flags.Int("limit", 10000, "Maximum number of events in one object")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		ctx := context.Background()

		archiver, err := audit.NewS3Archiver(ctx, s3cfg)
		if err != nil {
			return err
		}

		db, err := openDB(ctx, *dbCfg)
		if err != nil {
			return err
		}
		defer db.Close()

		logger, err := audit.NewDBLogger(db)
		if err != nil {
			return err
		}
		from := time.Now().UTC().Add(-*since)
		events, err := logger.Search(ctx, audit.SearchFilter{Since: &from, Limit: *limit})
		if err != nil {
			return fmt.Errorf("audit search failed: %w", err)
		}

		key, err := archiver.Archive(ctx, events)
		if err != nil {
			return err
		}
		if key == "" {
			env.Log.Info("No audit events to archive")
			return nil
		}
		env.Log.WithFields(logrus.Fields{"bucket": s3cfg.Bucket, "key": key, "events": len(events)}).Info("Archived audit events")
		fmt.Fprintln(env.Out, key)
		return nil
	}
	return cmd
}
