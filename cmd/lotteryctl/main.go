// Command lotteryctl is the operator CLI for the lottery bot database.
//
// Usage:
//
//	lotteryctl migrate up
//	lotteryctl activity create -f spring.json
//	lotteryctl activity show 12
//	lotteryctl activity kill 12
//	lotteryctl group add --owner 7 --chat -1001234567890 --title "Main" --tag crypto
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"lottery_bot/internal/config"
	"lottery_bot/internal/logger"
	"lottery_bot/internal/model"
	"lottery_bot/internal/storage"
	"lottery_bot/migrations"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:           "lotteryctl",
		Short:         "Lottery bot operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(migrateCmd())
	root.AddCommand(activityCmd())
	root.AddCommand(groupCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withStore opens the configured database for the duration of fn.
func withStore(fn func(ctx context.Context, store *storage.SQLite, log zerolog.Logger) error) error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return err
	}
	log := logger.New("lotteryctl", cfg.LogLevel, cfg.LogFormat)

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	return fn(ctx, store, log)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|up-one|down|status|version|reset>",
		Short:     "Run a schema migration command",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			log := logger.New("lotteryctl", cfg.LogLevel, cfg.LogFormat)
			if err := runMigrate(cfg.DatabasePath, args[0]); err != nil {
				return err
			}
			log.Info().Str("command", args[0]).Msg("migration finished")
			return nil
		},
	}
}

// runMigrate applies a goose command to the database at path. The handle is
// opened without the automatic upgrade NewSQLite performs.
func runMigrate(path, command string) error {
	db, err := storage.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return migrations.Exec(db, command)
}

func activityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Manage lottery activities",
	}
	cmd.AddCommand(activityCreateCmd())
	cmd.AddCommand(activityShowCmd())
	cmd.AddCommand(activityKillCmd())
	return cmd
}

func activityCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an activity from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open activity file: %w", err)
			}
			defer func() { _ = f.Close() }()

			a, err := decodeActivity(f)
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, store *storage.SQLite, log zerolog.Logger) error {
				if err := store.CreateActivity(ctx, a); err != nil {
					return err
				}
				log.Info().Int64("activity_id", a.ID).Str("name", a.Name).Msg("activity created")
				fmt.Fprintln(cmd.OutOrStdout(), a.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the activity JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func activityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an activity and its participants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, store *storage.SQLite, _ zerolog.Logger) error {
				a, err := store.GetActivity(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), describeActivity(a))
				return nil
			})
		},
	}
}

func activityKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id>",
		Short: "Cancel a pending or active activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(func(ctx context.Context, store *storage.SQLite, log zerolog.Logger) error {
				if err := store.SetStatus(ctx, id, model.StatusKilled); err != nil {
					return fmt.Errorf("kill activity %d: %w", id, err)
				}
				log.Info().Int64("activity_id", id).Msg("activity killed")
				return nil
			})
		},
	}
}

func groupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage registered chats",
	}
	cmd.AddCommand(groupAddCmd())
	return cmd
}

func groupAddCmd() *cobra.Command {
	var (
		g        model.Group
		tags     []string
		inactive bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a chat under an owner with one or more tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			g.IsActive = !inactive
			for _, t := range tags {
				if t = strings.TrimSpace(t); t != "" {
					g.Tags = append(g.Tags, t)
				}
			}
			return withStore(func(ctx context.Context, store *storage.SQLite, log zerolog.Logger) error {
				if err := store.CreateGroup(ctx, &g); err != nil {
					return err
				}
				log.Info().Int64("group_id", g.ID).Int64("chat_id", g.ChatID).Strs("tags", g.Tags).Msg("group registered")
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&g.OwnerID, "owner", 0, "Owner user id")
	cmd.Flags().Int64Var(&g.ChatID, "chat", 0, "Chat id")
	cmd.Flags().StringVar(&g.Title, "title", "", "Chat title")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Register the chat as inactive")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("chat")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid activity id %q", s)
	}
	return id, nil
}
