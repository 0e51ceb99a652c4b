package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/odl-lending/internal/domain"
)

// Repository stores license pools with their licenses, loans and holds. A
// pool row locked with GetPoolForUpdate serialises every change to the pool.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const poolColumns = `id, collection_id, identifier_type, identifier,
	licenses_owned, licenses_available, licenses_reserved, patrons_in_hold_queue, last_checked`

func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	err := row.Scan(&p.ID, &p.CollectionID, &p.IdentifierType, &p.Identifier,
		&p.LicensesOwned, &p.LicensesAvailable, &p.LicensesReserved, &p.PatronsInHoldQueue, &p.LastChecked)
	return p, err
}

func (r *Repository) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	return r.getPool(ctx, `SELECT `+poolColumns+` FROM license_pools WHERE id = $1`, poolID)
}

func (r *Repository) GetPoolForUpdate(ctx context.Context, poolID string) (domain.Pool, error) {
	return r.getPool(ctx, `SELECT `+poolColumns+` FROM license_pools WHERE id = $1 FOR UPDATE`, poolID)
}

func (r *Repository) getPool(ctx context.Context, query, poolID string) (domain.Pool, error) {
	p, err := scanPool(conn(ctx, r.pool).QueryRow(ctx, query, poolID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, domain.ErrPoolNotFound
		}
		return domain.Pool{}, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

func (r *Repository) FindPool(ctx context.Context, collectionID, identifierType, identifier string) (*domain.Pool, error) {
	const query = `SELECT ` + poolColumns + `
FROM license_pools
WHERE collection_id = $1 AND identifier_type = $2 AND identifier = $3`

	p, err := scanPool(conn(ctx, r.pool).QueryRow(ctx, query, collectionID, identifierType, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pool: %w", err)
	}
	return &p, nil
}

func (r *Repository) CreatePool(ctx context.Context, pool domain.Pool) error {
	const stmt = `
INSERT INTO license_pools (id, collection_id, identifier_type, identifier)
VALUES ($1, $2, $3, $4)`

	_, err := conn(ctx, r.pool).Exec(ctx, stmt, pool.ID, pool.CollectionID, pool.IdentifierType, pool.Identifier)
	if err != nil {
		if isInvalidUUID(err) || isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPool, err)
		}
		return fmt.Errorf("create pool: %w", err)
	}
	return nil
}

func (r *Repository) UpdatePoolCounters(ctx context.Context, pool domain.Pool) error {
	const stmt = `
UPDATE license_pools
SET licenses_owned = $2,
    licenses_available = $3,
    licenses_reserved = $4,
    patrons_in_hold_queue = $5,
    last_checked = $6
WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, pool.ID,
		pool.LicensesOwned, pool.LicensesAvailable, pool.LicensesReserved, pool.PatronsInHoldQueue, pool.LastChecked)
	if err != nil {
		return fmt.Errorf("update pool counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPoolNotFound
	}
	return nil
}

func (r *Repository) ListPoolIDs(ctx context.Context) ([]string, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT id FROM license_pools ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan pools: %w", err)
	}
	return ids, nil
}

func (r *Repository) ListLicenses(ctx context.Context, poolID string) ([]domain.License, error) {
	const query = `
SELECT pool_id, identifier, status, concurrency, checkouts_left, checkouts_available, expires, checkout_url, status_url
FROM licenses
WHERE pool_id = $1
ORDER BY identifier ASC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, poolID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrPoolNotFound
		}
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []domain.License
	for rows.Next() {
		var l domain.License
		if err := rows.Scan(&l.PoolID, &l.Identifier, &l.Status, &l.Concurrency, &l.CheckoutsLeft,
			&l.CheckoutsAvailable, &l.Expires, &l.CheckoutURL, &l.StatusURL); err != nil {
			return nil, fmt.Errorf("scan license: %w", err)
		}
		licenses = append(licenses, l)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate licenses: %w", rows.Err())
	}
	return licenses, nil
}

// UpdateLicense writes the mutable counters of an existing license.
func (r *Repository) UpdateLicense(ctx context.Context, l domain.License) error {
	const stmt = `
UPDATE licenses
SET checkouts_available = $3, checkouts_left = $4
WHERE pool_id = $1 AND identifier = $2`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, l.PoolID, l.Identifier, l.CheckoutsAvailable, l.CheckoutsLeft)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %s: %s", domain.ErrInvalidLicense, l.Identifier, constraintName(err))
		}
		return fmt.Errorf("update license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: license %s not in pool %s", domain.ErrInvalidLicense, l.Identifier, l.PoolID)
	}
	return nil
}

func (r *Repository) UpsertLicense(ctx context.Context, l domain.License) error {
	const stmt = `
INSERT INTO licenses (pool_id, identifier, status, concurrency, checkouts_left, checkouts_available, expires, checkout_url, status_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (pool_id, identifier) DO UPDATE
SET status = EXCLUDED.status,
    concurrency = EXCLUDED.concurrency,
    checkouts_left = EXCLUDED.checkouts_left,
    checkouts_available = EXCLUDED.checkouts_available,
    expires = EXCLUDED.expires,
    checkout_url = EXCLUDED.checkout_url,
    status_url = EXCLUDED.status_url`

	_, err := conn(ctx, r.pool).Exec(ctx, stmt, l.PoolID, l.Identifier, l.Status, l.Concurrency, l.CheckoutsLeft,
		l.CheckoutsAvailable, l.Expires, l.CheckoutURL, l.StatusURL)
	if err != nil {
		if isInvalidUUID(err) || isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %s: %s", domain.ErrInvalidLicense, l.Identifier, constraintName(err))
		}
		return fmt.Errorf("upsert license: %w", err)
	}
	return nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
