package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"leadrouter/internal/assignment"
	"leadrouter/internal/config"
	"leadrouter/internal/logger"
	"leadrouter/pkg/bootstrap"
	"leadrouter/pkg/logging"
)

type brokerRegistry interface {
	Lookup(ctx context.Context, conversationID string) (*assignment.BrokerAssignment, error)
	Assign(ctx context.Context, a assignment.BrokerAssignment) error
	Engaged(ctx context.Context, conversationID string) (bool, error)
}

type brokerStatus struct {
	Assignment *assignment.BrokerAssignment `json:"assignment"`
	Engaged    bool                         `json:"engaged"`
}

func brokerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Assign brokers to conversations and inspect engagement locks",
	}

	cmd.AddCommand(brokerAssignCmd())
	cmd.AddCommand(brokerStatusCmd())

	return cmd
}

func openBrokerRegistry(ctx context.Context) (*assignment.PostgresRepository, func(), error) {
	cfg, err := loadConfig(logging.NewEarlyLog())
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Postgres.Host == "" {
		return nil, nil, fmt.Errorf("database.postgres.host is not set")
	}

	db, err := bootstrap.NewDatabaseConnector(cfg, logger.NopLogger()).InitPostgreSQL(ctx)
	if err != nil {
		return nil, nil, err
	}
	return assignment.NewPostgresRepository(db), func() { db.Close() }, nil
}

func brokerAssignCmd() *cobra.Command {
	var (
		conversationID string
		brokerID       string
		brokerName     string
		persona        string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a broker to a conversation and take the engagement lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseAssignment(conversationID, brokerID, brokerName, persona)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			repo, closeFn, err := openBrokerRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return runBrokerAssign(ctx, repo, cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id")
	cmd.Flags().StringVar(&brokerID, "broker", "", "broker id")
	cmd.Flags().StringVar(&brokerName, "name", "", "broker display name")
	cmd.Flags().StringVar(&persona, "persona", "", "persona attributes as a JSON object")
	return cmd
}

func brokerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <conversation-id>",
		Short: "Print the broker assignment and engagement state of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			repo, closeFn, err := openBrokerRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			return runBrokerStatus(ctx, repo, cmd.OutOrStdout(), args[0])
		},
	}
}

func parseAssignment(conversationID, brokerID, brokerName, persona string) (assignment.BrokerAssignment, error) {
	a := assignment.BrokerAssignment{
		ConversationID:    conversationID,
		BrokerID:          brokerID,
		BrokerName:        brokerName,
		PersonaAttributes: map[string]interface{}{},
	}
	if conversationID == "" {
		return a, &config.ValidationError{Field: "conversation", Message: "is required"}
	}
	if brokerID == "" {
		return a, &config.ValidationError{Field: "broker", Message: "is required"}
	}
	if persona != "" {
		if err := json.Unmarshal([]byte(persona), &a.PersonaAttributes); err != nil {
			return a, &config.ValidationError{Field: "persona", Message: "must be a JSON object"}
		}
	}
	return a, nil
}

func runBrokerAssign(ctx context.Context, repo brokerRegistry, out io.Writer, a assignment.BrokerAssignment) error {
	if err := repo.Assign(ctx, a); err != nil {
		return err
	}
	fmt.Fprintf(out, "broker %s assigned to conversation %s\n", a.BrokerID, a.ConversationID)
	return nil
}

func runBrokerStatus(ctx context.Context, repo brokerRegistry, out io.Writer, conversationID string) error {
	var status brokerStatus

	a, err := repo.Lookup(ctx, conversationID)
	switch {
	case assignment.IsNoBroker(err):
	case err != nil:
		return err
	default:
		status.Assignment = a
	}

	status.Engaged, err = repo.Engaged(ctx, conversationID)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(body))
	return nil
}
