package assignment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadrouter/pkg/metrics"
)

const databaseLabel = "postgres"

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Lookup(ctx context.Context, conversationID string) (*BrokerAssignment, error) {
	query := `
		SELECT conversation_id, broker_id, broker_name, persona_attributes
		FROM broker_assignments
		WHERE conversation_id = $1
	`

	start := time.Now()
	row := r.db.QueryRowContext(ctx, query, conversationID)

	var (
		a       BrokerAssignment
		persona []byte
	)
	err := row.Scan(&a.ConversationID, &a.BrokerID, &a.BrokerName, &persona)
	r.observe("lookup", start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBroker
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up broker assignment: %w", err)
	}

	a.PersonaAttributes = map[string]interface{}{}
	if len(persona) > 0 {
		if err := json.Unmarshal(persona, &a.PersonaAttributes); err != nil {
			return nil, fmt.Errorf("failed to decode persona attributes: %w", err)
		}
	}

	return &a, nil
}

// Assign records the broker for a conversation and takes the engagement lock.
func (r *PostgresRepository) Assign(ctx context.Context, a BrokerAssignment) error {
	persona, err := json.Marshal(a.PersonaAttributes)
	if err != nil {
		return fmt.Errorf("failed to encode persona attributes: %w", err)
	}
	if a.PersonaAttributes == nil {
		persona = []byte("{}")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO broker_assignments (conversation_id, broker_id, broker_name, persona_attributes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id) DO UPDATE
		SET broker_id = EXCLUDED.broker_id,
		    broker_name = EXCLUDED.broker_name,
		    persona_attributes = EXCLUDED.persona_attributes,
		    updated_at = NOW()
	`, a.ConversationID, a.BrokerID, a.BrokerName, persona)
	r.observe("assign", start, err)
	if err != nil {
		return fmt.Errorf("failed to store broker assignment: %w", err)
	}

	start = time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO engagement_locks (conversation_id, broker_id)
		VALUES ($1, $2)
		ON CONFLICT (conversation_id) DO UPDATE
		SET broker_id = EXCLUDED.broker_id,
		    locked_at = NOW(),
		    released_at = NULL,
		    release_reason = NULL
	`, a.ConversationID, a.BrokerID)
	r.observe("lock", start, err)
	if err != nil {
		return fmt.Errorf("failed to take engagement lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ReleaseEngagement(ctx context.Context, conversationID, reason string) error {
	query := `
		UPDATE engagement_locks
		SET released_at = NOW(), release_reason = $2
		WHERE conversation_id = $1 AND released_at IS NULL
	`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query, conversationID, reason)
	r.observe("release", start, err)
	if err != nil {
		return fmt.Errorf("failed to release engagement lock: %w", err)
	}
	return nil
}

// Engaged reports whether an unreleased engagement lock exists for the conversation.
func (r *PostgresRepository) Engaged(ctx context.Context, conversationID string) (bool, error) {
	var engaged bool
	start := time.Now()
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM engagement_locks
			WHERE conversation_id = $1 AND released_at IS NULL
		)
	`, conversationID).Scan(&engaged)
	r.observe("engaged", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to read engagement lock: %w", err)
	}
	return engaged, nil
}

func (r *PostgresRepository) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		status = "error"
	}
	metrics.IncDatabaseQuery(databaseLabel, operation, status)
	metrics.ObserveDatabaseQueryDuration(databaseLabel, operation, time.Since(start))
}
