package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cimillas/odl-lending/internal/domain"
)

const loanColumns = `id, patron_id, pool_id, license_identifier, start_at, end_at, external_identifier`

func scanLoan(row pgx.Row) (domain.Loan, error) {
	var l domain.Loan
	if err := row.Scan(&l.ID, &l.PatronID, &l.PoolID, &l.LicenseIdentifier, &l.Start, &l.End, &l.ExternalIdentifier); err != nil {
		return domain.Loan{}, err
	}
	l.Start = l.Start.UTC()
	l.End = utc(l.End)
	return l, nil
}

func (r *Repository) listLoans(ctx context.Context, query string, args ...any) ([]domain.Loan, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate loans: %w", rows.Err())
	}
	return loans, nil
}

func (r *Repository) ListLoans(ctx context.Context, poolID string) ([]domain.Loan, error) {
	return r.listLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE pool_id = $1 ORDER BY start_at ASC, id ASC`, poolID)
}

func (r *Repository) ListPatronLoans(ctx context.Context, patronID string) ([]domain.Loan, error) {
	return r.listLoans(ctx, `SELECT `+loanColumns+` FROM loans WHERE patron_id = $1 ORDER BY start_at ASC, id ASC`, patronID)
}

// ListStalePendingLoans returns loans that never got a status document and
// were started before cutoff.
func (r *Repository) ListStalePendingLoans(ctx context.Context, cutoff time.Time) ([]domain.Loan, error) {
	const query = `SELECT ` + loanColumns + `
FROM loans
WHERE external_identifier = '' AND start_at < $1
ORDER BY start_at ASC`
	return r.listLoans(ctx, query, cutoff)
}

func (r *Repository) GetLoan(ctx context.Context, loanID string) (domain.Loan, error) {
	l, err := scanLoan(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, loanID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Loan{}, domain.ErrLoanNotFound
		}
		return domain.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (r *Repository) FindLoan(ctx context.Context, patronID, poolID string) (*domain.Loan, error) {
	const query = `SELECT ` + loanColumns + ` FROM loans WHERE patron_id = $1 AND pool_id = $2`
	l, err := scanLoan(conn(ctx, r.pool).QueryRow(ctx, query, patronID, poolID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find loan: %w", err)
	}
	return &l, nil
}

func (r *Repository) CreateLoan(ctx context.Context, l domain.Loan) error {
	const stmt = `
INSERT INTO loans (id, patron_id, pool_id, license_identifier, start_at, end_at, external_identifier)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := conn(ctx, r.pool).Exec(ctx, stmt,
		l.ID,
		l.PatronID,
		l.PoolID,
		l.LicenseIdentifier,
		l.Start,
		l.End,
		l.ExternalIdentifier,
	)
	if err != nil {
		if isUniqueViolation(err) && constraintName(err) == "loans_patron_pool_key" {
			return domain.ErrAlreadyCheckedOut
		}
		if isInvalidUUID(err) || isForeignKeyViolation(err) {
			return domain.ErrPoolNotFound
		}
		return fmt.Errorf("create loan: %w", err)
	}
	return nil
}

func (r *Repository) UpdateLoan(ctx context.Context, l domain.Loan) error {
	const stmt = `
UPDATE loans
SET end_at = $2, external_identifier = $3, license_identifier = $4
WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, stmt, l.ID, l.End, l.ExternalIdentifier, l.LicenseIdentifier)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrLoanNotFound
		}
		return fmt.Errorf("update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func (r *Repository) DeleteLoan(ctx context.Context, loanID string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM loans WHERE id = $1`, loanID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrLoanNotFound
		}
		return fmt.Errorf("delete loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}
