package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jmehdipour/staffing-awards/internal/app"
	"github.com/jmehdipour/staffing-awards/internal/logger"
	"github.com/jmehdipour/staffing-awards/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSyncCmd groups the operator commands for the outboxes. They run the
// same code paths as the HTTP endpoints.
func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Operate the sync outboxes",
	}
	cmd.AddCommand(syncRunCmd(), syncRequeueCmd(), syncReplayCmd())
	return cmd
}

func syncRunCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch for a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cfg, logger.Log)
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Runner(target)
			if err != nil {
				return err
			}
			sum, err := r.ProcessBatch(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(sum)
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "hubspot | loops")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func syncRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-stale",
		Short: "Return rows stuck in processing to pending (or dead at the ceiling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cfg, logger.Log)
			if err != nil {
				return err
			}
			defer a.Close()

			return requeueAll(cmd.Context(), a)
		},
	}
}

func requeueAll(ctx context.Context, a *app.App) error {
	for _, ob := range a.OutboxList() {
		n, err := ob.RequeueStale(ctx, cfg.Sync.StaleAfter)
		if err != nil {
			return fmt.Errorf("requeue %s: %w", ob.Target(), err)
		}
		logger.Log.Info("requeued stale rows", zap.String("target", ob.Target().String()), zap.Int64("count", n))
	}
	return nil
}

func syncReplayCmd() *cobra.Command {
	var target, id string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Move a dead outbox row back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(cfg, logger.Log)
			if err != nil {
				return err
			}
			defer a.Close()

			ob, err := a.Outbox(target)
			if err != nil {
				return err
			}
			if err := ob.Replay(cmd.Context(), id); err != nil {
				return fmt.Errorf("replay %s/%s: %w", target, id, err)
			}
			fmt.Printf(">> %s row %s is %s again\n", ob.Target(), id, model.OutboxPending)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "hubspot | loops")
	cmd.Flags().StringVar(&id, "id", "", "outbox row id")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
