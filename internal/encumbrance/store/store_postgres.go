package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"cadastra/internal/encumbrance/models"
	id "cadastra/pkg/domain"
	"cadastra/pkg/platform/sentinel"
	"cadastra/pkg/platform/tx"
)

// PostgresStore is the production Store.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const encumbranceColumns = `
	id, human_readable_id, parcel_id, lender_name, lender_contact,
	borrower_id, loan_amount, interest_rate, duration_months,
	start_date, maturity_date, status, priority, anchor_ref,
	registered_by, registered_at, discharged_at, notes`

// Register runs the count and the insert in one transaction under a
// per-parcel advisory lock, so concurrent registrations on the same parcel
// serialize and priorities come out contiguous.
func (s *PostgresStore) Register(ctx context.Context, e *models.Encumbrance) error {
	return tx.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)

		_, err := q.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, uuid.UUID(e.ParcelID).String())
		if err != nil {
			return fmt.Errorf("acquire parcel lock: %w", err)
		}

		var active int
		err = q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM encumbrances WHERE parcel_id = $1 AND status = $2`,
			uuid.UUID(e.ParcelID), string(models.StatusActive)).Scan(&active)
		if err != nil {
			return fmt.Errorf("count active encumbrances: %w", err)
		}
		e.Priority = active + 1

		_, err = q.ExecContext(ctx, `
			INSERT INTO encumbrances (`+encumbranceColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		`, uuid.UUID(e.ID), e.HumanReadableID, uuid.UUID(e.ParcelID), e.LenderName, e.LenderContact,
			uuid.UUID(e.BorrowerID), e.LoanAmount, e.InterestRate, e.DurationMonths,
			e.StartDate, e.MaturityDate, string(e.Status), e.Priority, e.AnchorRef,
			uuid.UUID(e.RegisteredBy), e.RegisteredAt, e.DischargedAt, e.Notes)
		if err != nil {
			return fmt.Errorf("insert encumbrance: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, encID id.EncumbranceID) (*models.Encumbrance, error) {
	q := tx.QuerierFrom(ctx, s.db)
	row := q.QueryRowContext(ctx,
		`SELECT `+encumbranceColumns+` FROM encumbrances WHERE id = $1`, uuid.UUID(encID))
	return scanEncumbrance(row)
}

func (s *PostgresStore) ListByParcel(ctx context.Context, parcelID id.ParcelID) ([]*models.Encumbrance, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT `+encumbranceColumns+` FROM encumbrances
		WHERE parcel_id = $1
		ORDER BY priority ASC, registered_at DESC
	`, uuid.UUID(parcelID))
	if err != nil {
		return nil, fmt.Errorf("list encumbrances by parcel: %w", err)
	}
	defer rows.Close()
	return collectEncumbrances(rows)
}

func (s *PostgresStore) ListByBorrower(ctx context.Context, borrowerID id.UserID) ([]*models.Encumbrance, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, `
		SELECT `+encumbranceColumns+` FROM encumbrances
		WHERE borrower_id = $1
		ORDER BY registered_at DESC
	`, uuid.UUID(borrowerID))
	if err != nil {
		return nil, fmt.Errorf("list encumbrances by borrower: %w", err)
	}
	defer rows.Close()
	return collectEncumbrances(rows)
}

// Execute holds a FOR UPDATE row lock across validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, encID id.EncumbranceID,
	validate func(*models.Encumbrance) error,
	mutate func(*models.Encumbrance)) (*models.Encumbrance, error) {

	var result *models.Encumbrance
	err := tx.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		row := q.QueryRowContext(ctx,
			`SELECT `+encumbranceColumns+` FROM encumbrances WHERE id = $1 FOR UPDATE`,
			uuid.UUID(encID))
		e, err := scanEncumbrance(row)
		if err != nil {
			return err
		}

		if err := validate(e); err != nil {
			return err
		}
		mutate(e)

		_, err = q.ExecContext(ctx, `
			UPDATE encumbrances
			SET status = $2, discharged_at = $3, notes = $4
			WHERE id = $1
		`, uuid.UUID(e.ID), string(e.Status), e.DischargedAt, e.Notes)
		if err != nil {
			return fmt.Errorf("update encumbrance: %w", err)
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEncumbrance(row rowScanner) (*models.Encumbrance, error) {
	var (
		e            models.Encumbrance
		encID        uuid.UUID
		parcelID     uuid.UUID
		borrowerID   uuid.UUID
		registeredBy uuid.UUID
		status       string
		dischargedAt sql.NullTime
	)
	err := row.Scan(&encID, &e.HumanReadableID, &parcelID, &e.LenderName, &e.LenderContact,
		&borrowerID, &e.LoanAmount, &e.InterestRate, &e.DurationMonths,
		&e.StartDate, &e.MaturityDate, &status, &e.Priority, &e.AnchorRef,
		&registeredBy, &e.RegisteredAt, &dischargedAt, &e.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan encumbrance: %w", err)
	}

	e.ID = id.EncumbranceID(encID)
	e.ParcelID = id.ParcelID(parcelID)
	e.BorrowerID = id.UserID(borrowerID)
	e.RegisteredBy = id.UserID(registeredBy)
	e.Status = models.Status(status)
	if dischargedAt.Valid {
		t := dischargedAt.Time
		e.DischargedAt = &t
	}
	return &e, nil
}

func collectEncumbrances(rows *sql.Rows) ([]*models.Encumbrance, error) {
	var out []*models.Encumbrance
	for rows.Next() {
		e, err := scanEncumbrance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
