package calculation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/verdantrx/dispense-engine/internal/infrastructure/postgres"
	"github.com/verdantrx/dispense-engine/internal/infrastructure/redpanda"
)

// ErrNotFound is returned when a calculation ID has no record.
var ErrNotFound = errors.New("calculation not found")

// Repository persists calculation records. The full record is stored as
// JSONB so partially processed calculations round-trip losslessly and can
// be resumed later.
type Repository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(pool *pgxpool.Pool, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{pool: pool, logger: logger}
}

// Save upserts the record. When the calculation has completed every stage,
// a calculation.completed event is written to the outbox in the same
// transaction so downstream consumers see it exactly when the record does.
func (r *Repository) Save(ctx context.Context, calc *Calculation) error {
	record, err := json.Marshal(calc)
	if err != nil {
		return fmt.Errorf("marshal calculation: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO calculations (id, drug_token, sig_text, days_supply, record, complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record,
		    complete = EXCLUDED.complete,
		    updated_at = EXCLUDED.updated_at
	`
	_, err = tx.Exec(ctx, query,
		calc.ID,
		calc.Request.DrugToken,
		calc.Request.SigText,
		calc.Request.DaysSupply,
		record,
		calc.IsComplete(),
		calc.CreatedAt,
		calc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert calculation: %w", err)
	}

	if calc.IsComplete() {
		entry := &postgres.OutboxEntry{
			AggregateID:   calc.ID,
			AggregateType: "Calculation",
			EventType:     "CalculationCompleted",
			Payload:       record,
			KafkaTopic:    redpanda.TopicCalculationCompleted,
			KafkaKey:      calc.ID,
		}
		if err := postgres.WriteEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load retrieves a calculation by ID.
func (r *Repository) Load(ctx context.Context, id string) (*Calculation, error) {
	var record []byte
	err := r.pool.QueryRow(ctx,
		`SELECT record FROM calculations WHERE id = $1`, id).Scan(&record)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load calculation: %w", err)
	}

	calc := &Calculation{}
	if err := json.Unmarshal(record, calc); err != nil {
		return nil, fmt.Errorf("unmarshal calculation: %w", err)
	}
	return calc, nil
}

// ListRecent returns the most recently updated calculations.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]*Calculation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT record FROM calculations
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list calculations: %w", err)
	}
	defer rows.Close()

	var out []*Calculation
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		calc := &Calculation{}
		if err := json.Unmarshal(record, calc); err != nil {
			r.logger.Warn("skipping unreadable calculation record", zap.Error(err))
			continue
		}
		out = append(out, calc)
	}
	return out, rows.Err()
}

// ListIncomplete returns calculations with at least one stage still to run,
// oldest first, for resumption sweeps.
func (r *Repository) ListIncomplete(ctx context.Context, limit int) ([]*Calculation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT record FROM calculations
		WHERE NOT complete
		ORDER BY updated_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list incomplete calculations: %w", err)
	}
	defer rows.Close()

	var out []*Calculation
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		calc := &Calculation{}
		if err := json.Unmarshal(record, calc); err != nil {
			continue
		}
		out = append(out, calc)
	}
	return out, rows.Err()
}
