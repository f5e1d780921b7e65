package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gator-press/internal/logger"
	"gator-press/simulator"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := simulator.DefaultSimConfig()
	var debug bool

	cmd := &cobra.Command{
		Use:   "simulator",
		Short: "Drive a gator-press server with concurrent authors, reviewers and readers",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reuse the server's .env for the admin account when flags are absent.
			_ = godotenv.Load()
			if config.AdminEmail == "" {
				config.AdminEmail = os.Getenv("ADMIN_EMAIL")
			}
			if config.AdminPassword == "" {
				config.AdminPassword = os.Getenv("ADMIN_PASSWORD")
			}

			level := "info"
			if debug {
				level = "debug"
			}
			log := logger.New().Console(true).Level(level).Make()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, config.SimulationTime)
			defer cancel()

			log.Info().
				Str("engine_url", config.EngineURL).
				Int("authors", config.NumAuthors).
				Int("reviewers", config.NumReviewers).
				Int("readers", config.NumReaders).
				Dur("duration", config.SimulationTime).
				Float64("reject_rate", config.RejectRate).
				Msg("Starting simulation")

			sim := simulator.NewEnhancedSimulator(config, log)
			if err := sim.Run(ctx); err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			m := sim.GetMetrics()
			log.Info().
				Int("users", m.TotalUsers).
				Int("posts", m.PostsCreated).
				Int("submitted", m.Submitted).
				Int("approved", m.Approved).
				Int("rejected", m.Rejected).
				Int("likes", m.Likes).
				Int("comments", m.Comments).
				Int64("conflicts", m.Conflicts).
				Int64("errors", m.ErrorCount).
				Float64("req_per_sec", m.RequestsPerSecond).
				Dur("avg_latency", m.AverageLatency).
				Msg("Simulation completed")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&config.EngineURL, "url", config.EngineURL, "base URL of the server")
	flags.IntVar(&config.NumAuthors, "authors", config.NumAuthors, "number of author accounts")
	flags.IntVar(&config.NumReviewers, "reviewers", config.NumReviewers, "number of reviewer accounts (needs admin credentials)")
	flags.IntVar(&config.NumReaders, "readers", config.NumReaders, "number of reader accounts")
	flags.DurationVar(&config.SimulationTime, "duration", config.SimulationTime, "how long to run")
	flags.DurationVar(&config.PostInterval, "post-interval", config.PostInterval, "mean time between posts per author")
	flags.DurationVar(&config.ReviewInterval, "review-interval", config.ReviewInterval, "mean time between reviews per reviewer")
	flags.DurationVar(&config.ReadInterval, "read-interval", config.ReadInterval, "mean time between likes per reader")
	flags.Float64Var(&config.RejectRate, "reject-rate", config.RejectRate, "share of reviews that reject")
	flags.Float64Var(&config.CommentRate, "comment-rate", config.CommentRate, "share of likes followed by a comment")
	flags.StringVar(&config.AdminEmail, "admin-email", "", "admin account used to promote reviewers (default $ADMIN_EMAIL)")
	flags.StringVar(&config.AdminPassword, "admin-password", "", "admin password (default $ADMIN_PASSWORD)")
	flags.BoolVar(&debug, "debug", false, "log every lost race")
	return cmd
}
