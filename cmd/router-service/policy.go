package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"leadrouter/internal/config"
	"leadrouter/internal/logger"
	"leadrouter/internal/migration"
	"leadrouter/pkg/bootstrap"
	"leadrouter/pkg/logging"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect or change the workflow-to-queue migration policy stored in Redis",
	}

	cmd.AddCommand(policyShowCmd())
	cmd.AddCommand(policySetCmd())

	return cmd
}

func openPolicySource(ctx context.Context) (*migration.RedisSource, func(), error) {
	cfg, err := loadConfig(logging.NewEarlyLog())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Redis.Host == "" {
		return nil, nil, fmt.Errorf("database.redis.host is not set")
	}

	client, err := bootstrap.NewDatabaseConnector(cfg, logger.NopLogger()).InitRedis(ctx)
	if err != nil {
		return nil, nil, err
	}

	src := migration.NewRedisSource(client, cfg.Migration.RedisKey, 0, migration.PolicyFromConfig(cfg.Migration))
	return src, func() { client.Close() }, nil
}

func policyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src, closeFn, err := openPolicySource(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := src.Current(ctx)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(p, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func policySetCmd() *cobra.Command {
	var (
		queueEnabled    bool
		workflowEnabled bool
		percentage      int
		phase           string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the stored policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if percentage < 0 || percentage > 100 {
				return &config.ValidationError{Field: "traffic-percentage", Message: "must be between 0 and 100"}
			}

			ctx := cmd.Context()
			src, closeFn, err := openPolicySource(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			p := migration.Policy{
				QueueBackendEnabled:   queueEnabled,
				WorkflowEngineEnabled: workflowEnabled,
				TrafficPercentage:     percentage,
				Phase:                 migration.ParsePhase(phase),
			}
			if err := src.Set(ctx, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "policy updated: queue=%t workflow=%t traffic=%d%% phase=%s\n",
				p.QueueBackendEnabled, p.WorkflowEngineEnabled, p.TrafficPercentage, p.Phase)
			return nil
		},
	}
	cmd.Flags().BoolVar(&queueEnabled, "queue", false, "enable the job-queue backend")
	cmd.Flags().BoolVar(&workflowEnabled, "workflow", true, "enable the workflow engine")
	cmd.Flags().IntVar(&percentage, "traffic-percentage", 0, "share of conversations sent to the queue (0-100)")
	cmd.Flags().StringVar(&phase, "phase", string(migration.PhaseWorkflow), "rollout phase label")
	return cmd
}
