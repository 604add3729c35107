// Command jokeadmin runs maintenance tasks against the jokebox database:
// schema migrations, a full reset, and the janitor's cleanup jobs on demand.
//
//	jokeadmin migrate
//	jokeadmin reset --yes
//	jokeadmin sessions prune
//	jokeadmin jokes fail-stale --older-than 5m
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/jokebox/internal/config"
	"github.com/sakif/jokebox/internal/repository/sqlstore"
	"github.com/sakif/jokebox/internal/service"
)

var (
	rootCmd = &cobra.Command{
		Use:           "jokeadmin",
		Short:         "Maintenance tasks for the jokebox database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	envFile string

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	resetCmd = &cobra.Command{
		Use:   "reset",
		Short: "Drop every table and re-apply all migrations",
		Long:  `Rolls every migration back, which deletes all users, sessions and jokes, then migrates up again.`,
		Args:  cobra.NoArgs,
		RunE:  runReset,
	}
	confirmReset bool

	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage session records",
	}
	sessionsPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete expired session records",
		Args:  cobra.NoArgs,
		RunE:  runSessionsPrune,
	}

	jokesCmd = &cobra.Command{
		Use:   "jokes",
		Short: "Manage jokes",
	}
	jokesFailStaleCmd = &cobra.Command{
		Use:   "fail-stale",
		Short: "Mark jokes stuck in pending as failed",
		Args:  cobra.NoArgs,
		RunE:  runJokesFailStale,
	}
	olderThan time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file read before the environment")

	resetCmd.Flags().BoolVar(&confirmReset, "yes", false, "confirm that all data should be deleted")
	jokesFailStaleCmd.Flags().DurationVar(&olderThan, "older-than", 2*time.Minute, "fail pending jokes created longer ago than this")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	rootCmd.AddCommand(jokesCmd)
	jokesCmd.AddCommand(jokesFailStaleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// connect opens the store without migrating, so "reset" can run against a
// schema that is out of date.
func connect(ctx context.Context) (*sqlstore.Store, error) {
	dsn, err := config.LoadDatabaseURL(envFile)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.EnsureDir(dsn); err != nil {
		return nil, err
	}
	return sqlstore.Connect(ctx, dsn)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	store, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", store.Dialect())
	return nil
}

func runReset(cmd *cobra.Command, _ []string) error {
	if !confirmReset {
		return errors.New("reset deletes all data; pass --yes to confirm")
	}

	store, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("rolling back: %w", err)
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("migrating: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "database reset")
	return nil
}

func runSessionsPrune(cmd *cobra.Command, _ []string) error {
	store, err := sqlstoreOpen(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.DeleteExpiredSessions(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
	return nil
}

func runJokesFailStale(cmd *cobra.Command, _ []string) error {
	if olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	store, err := sqlstoreOpen(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	// No generator or publisher: this process serves no streams.
	jokes := service.NewJokeService(store, nil, nil, 0, logger())
	n, err := jokes.ExpireStale(cmd.Context(), olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "marked %d pending jokes failed\n", n)
	return nil
}

// sqlstoreOpen connects and migrates, for commands that need the current
// schema.
func sqlstoreOpen(ctx context.Context) (*sqlstore.Store, error) {
	dsn, err := config.LoadDatabaseURL(envFile)
	if err != nil {
		return nil, err
	}
	if err := sqlstore.EnsureDir(dsn); err != nil {
		return nil, err
	}
	return sqlstore.Open(ctx, dsn)
}
