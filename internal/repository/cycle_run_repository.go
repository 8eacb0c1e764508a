package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-intake/internal/domain"
)

// CycleRunFilter narrows cycle run listings.
type CycleRunFilter struct {
	Trigger *domain.Trigger
	Limit   int
	Offset  int
}

func (f CycleRunFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return 50
	}
	return f.Limit
}

// CycleRunRepository stores the audit trail of processing cycles.
type CycleRunRepository interface {
	Create(ctx context.Context, run *domain.CycleRun) error
	GetByID(ctx context.Context, id string) (*domain.CycleRun, error)
	List(ctx context.Context, filter CycleRunFilter) ([]domain.CycleRun, error)
}

type cycleRunRepository struct {
	pool *pgxpool.Pool
}

// NewCycleRunRepository builds the Postgres repository.
func NewCycleRunRepository(pool *pgxpool.Pool) CycleRunRepository {
	return &cycleRunRepository{pool: pool}
}

func (r *cycleRunRepository) Create(ctx context.Context, run *domain.CycleRun) error {
	const query = `
        INSERT INTO cycle_runs (id, trigger, since, started_at, finished_at, fetched, error,
                                processed, tickets_created, failed, report)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Trigger,
		run.Since,
		run.StartedAt,
		run.FinishedAt,
		run.Fetched,
		run.Error,
		run.Report.Processed,
		run.Report.TicketsCreated,
		run.Report.Failed,
		run.Report,
	)
	if err != nil {
		return fmt.Errorf("insert cycle run %s: %w", run.ID, err)
	}
	return nil
}

func (r *cycleRunRepository) GetByID(ctx context.Context, id string) (*domain.CycleRun, error) {
	const query = `
        SELECT id, trigger, since, started_at, finished_at, fetched, error, report
        FROM cycle_runs WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs, err := scanCycleRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("cycle run %s: %w", id, domain.ErrNotFound)
	}
	return &runs[0], nil
}

func (r *cycleRunRepository) List(ctx context.Context, filter CycleRunFilter) ([]domain.CycleRun, error) {
	base := `SELECT id, trigger, since, started_at, finished_at, fetched, error, report
             FROM cycle_runs`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Trigger != nil {
		args = append(args, *filter.Trigger)
		clauses = append(clauses, fmt.Sprintf("trigger=$%d", len(args)))
	}

	args = append(args, filter.limit(), filter.Offset)
	query := fmt.Sprintf("%s WHERE %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d",
		base, strings.Join(clauses, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCycleRuns(rows)
}

func scanCycleRuns(rows pgx.Rows) ([]domain.CycleRun, error) {
	var result []domain.CycleRun
	for rows.Next() {
		var run domain.CycleRun
		if err := rows.Scan(
			&run.ID,
			&run.Trigger,
			&run.Since,
			&run.StartedAt,
			&run.FinishedAt,
			&run.Fetched,
			&run.Error,
			&run.Report,
		); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrNotFound
			}
			return nil, err
		}
		result = append(result, run)
	}
	return result, rows.Err()
}
