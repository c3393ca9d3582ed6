package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"contest-variant-service/internal/domain"
)

// VariantLoader loads variant grading data from Postgres JSONB.
type VariantLoader struct {
	pool *pgxpool.Pool
}

func NewVariantLoader(pool *pgxpool.Pool) *VariantLoader {
	return &VariantLoader{pool: pool}
}

func (l *VariantLoader) LoadVariant(ctx context.Context, contestID, variantID string) (domain.Variant, domain.Solution, error) {
	var (
		v           domain.Variant
		rawSchema   []byte
		rawSolution []byte
	)
	err := l.pool.QueryRow(ctx, `
		SELECT contest_id, variant_id, is_online, is_pdf, schema, solution
		FROM variants WHERE contest_id=$1 AND variant_id=$2`,
		contestID, variantID,
	).Scan(&v.ContestID, &v.ID, &v.IsOnline, &v.IsPdf, &rawSchema, &rawSolution)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Variant{}, nil, domain.ErrVariantNotFound
	}
	if err != nil {
		return domain.Variant{}, nil, fmt.Errorf("load variant: %w", err)
	}
	if err := json.Unmarshal(rawSchema, &v.Schema); err != nil {
		return domain.Variant{}, nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	var sol domain.Solution
	if err := json.Unmarshal(rawSolution, &sol); err != nil {
		return domain.Variant{}, nil, fmt.Errorf("unmarshal solution: %w", err)
	}
	return v, sol, nil
}

// UpsertVariant writes generated grading data; the build command calls
// this once per variant.
func (l *VariantLoader) UpsertVariant(ctx context.Context, v domain.Variant, sol domain.Solution) error {
	rawSchema, err := json.Marshal(v.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	rawSolution, err := json.Marshal(sol)
	if err != nil {
		return fmt.Errorf("marshal solution: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO variants (contest_id, variant_id, is_online, is_pdf, schema, solution)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (contest_id, variant_id) DO UPDATE SET
			is_online=$3, is_pdf=$4, schema=$5, solution=$6`,
		v.ContestID, v.ID, v.IsOnline, v.IsPdf, rawSchema, rawSolution)
	if err != nil {
		return fmt.Errorf("upsert variant: %w", err)
	}
	return nil
}
