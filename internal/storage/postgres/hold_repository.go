package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/odl-lending/internal/domain"
)

const holdColumns = `id, patron_id, pool_id, start_at, end_at, position`

func scanHold(row pgx.Row) (domain.Hold, error) {
	var h domain.Hold
	if err := row.Scan(&h.ID, &h.PatronID, &h.PoolID, &h.Start, &h.End, &h.Position); err != nil {
		return domain.Hold{}, err
	}
	h.Start = h.Start.UTC()
	h.End = utc(h.End)
	return h, nil
}

func (r *Repository) listHolds(ctx context.Context, query string, args ...any) ([]domain.Hold, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list holds: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan hold: %w", err)
		}
		holds = append(holds, h)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate holds: %w", rows.Err())
	}
	return holds, nil
}

func (r *Repository) ListHolds(ctx context.Context, poolID string) ([]domain.Hold, error) {
	return r.listHolds(ctx, `SELECT `+holdColumns+` FROM holds WHERE pool_id = $1 ORDER BY start_at ASC, patron_id ASC, id ASC`, poolID)
}

func (r *Repository) ListPatronHolds(ctx context.Context, patronID string) ([]domain.Hold, error) {
	return r.listHolds(ctx, `SELECT `+holdColumns+` FROM holds WHERE patron_id = $1 ORDER BY start_at ASC, id ASC`, patronID)
}

// ListExpiredReservedHolds returns ready holds whose reservation ended at or
// before now. Queued holds are never returned, whatever their estimate says.
func (r *Repository) ListExpiredReservedHolds(ctx context.Context, now time.Time) ([]domain.Hold, error) {
	const query = `SELECT ` + holdColumns + `
FROM holds
WHERE position = 0 AND end_at IS NOT NULL AND end_at <= $1
ORDER BY end_at ASC`
	return r.listHolds(ctx, query, now)
}

func (r *Repository) FindHold(ctx context.Context, patronID, poolID string) (*domain.Hold, error) {
	const query = `SELECT ` + holdColumns + ` FROM holds WHERE patron_id = $1 AND pool_id = $2`
	h, err := scanHold(conn(ctx, r.pool).QueryRow(ctx, query, patronID, poolID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find hold: %w", err)
	}
	return &h, nil
}

func (r *Repository) CreateHold(ctx context.Context, h domain.Hold) error {
	const stmt = `
INSERT INTO holds (id, patron_id, pool_id, start_at, end_at, position)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := conn(ctx, r.pool).Exec(ctx, stmt, h.ID, h.PatronID, h.PoolID, h.Start, h.End, h.Position)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "holds_patron_pool_key" {
			return domain.ErrAlreadyOnHold
		}
		if isInvalidUUID(err) || isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("create hold: %w", err)
	}
	return nil
}

func (r *Repository) UpdateHold(ctx context.Context, h domain.Hold) error {
	const stmt = `UPDATE holds SET end_at = $2, position = $3 WHERE id = $1`
	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, h.ID, h.End, h.Position)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrNotOnHold
		}
		return fmt.Errorf("update hold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotOnHold
	}
	return nil
}

func (r *Repository) DeleteHold(ctx context.Context, holdID string) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM holds WHERE id = $1`, holdID); err != nil {
		if isInvalidUUID(err) {
			return nil
		}
		return fmt.Errorf("delete hold: %w", err)
	}
	return nil
}
