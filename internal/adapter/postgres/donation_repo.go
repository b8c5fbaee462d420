package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ngoportal/internal/domain"
)

const donationColumns = "id, transaction_id, donor_name, donor_email, donor_phone, amount_paise, cause, frequency, status, created_at, completed_at"

// InsertPending stores a new pending donation. A transaction-id
// collision surfaces as ErrDuplicateTransactionID so the caller can
// regenerate and retry.
func (d *DB) InsertPending(ctx context.Context, don *domain.Donation) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO donations (id, transaction_id, donor_name, donor_email, donor_phone, amount_paise, cause, frequency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		don.ID, don.TransactionID, don.DonorName, don.DonorEmail, don.DonorPhone,
		don.AmountPaise, don.Cause, string(don.Frequency), string(don.Status), don.CreatedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return domain.ErrDuplicateTransactionID
	}
	return err
}

// FindByTransactionID retrieves a donation by transaction id.
func (d *DB) FindByTransactionID(ctx context.Context, txnID string) (*domain.Donation, error) {
	row := d.sql.QueryRowContext(ctx,
		"SELECT "+donationColumns+" FROM donations WHERE transaction_id = $1",
		txnID,
	)
	return scanDonation(row)
}

// MarkStatus transitions a donation to a terminal status only while it
// is still pending. The WHERE clause makes the check-and-set atomic;
// concurrent callers race on it and exactly one wins.
func (d *DB) MarkStatus(ctx context.Context, txnID string, status domain.DonationStatus, at time.Time) (bool, error) {
	var completedAt any
	if status == domain.DonationCompleted {
		completedAt = at
	}
	res, err := d.sql.ExecContext(ctx,
		"UPDATE donations SET status = $1, completed_at = $2 WHERE transaction_id = $3 AND status = 'pending'",
		string(status), completedAt, txnID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListByEmail returns the donor's most recent donations.
func (d *DB) ListByEmail(ctx context.Context, email string, limit int) ([]domain.Donation, error) {
	rows, err := d.sql.QueryContext(ctx,
		"SELECT "+donationColumns+" FROM donations WHERE donor_email = $1 ORDER BY created_at DESC LIMIT $2",
		email, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []domain.Donation
	for rows.Next() {
		var don domain.Donation
		var frequency, status string
		if err := rows.Scan(&don.ID, &don.TransactionID, &don.DonorName, &don.DonorEmail,
			&don.DonorPhone, &don.AmountPaise, &don.Cause, &frequency, &status,
			&don.CreatedAt, &don.CompletedAt); err != nil {
			return nil, err
		}
		don.Frequency = domain.Frequency(frequency)
		don.Status = domain.DonationStatus(status)
		result = append(result, don)
	}
	return result, rows.Err()
}

// TotalRaised sums completed donations, optionally filtered by cause.
func (d *DB) TotalRaised(ctx context.Context, cause string) (int64, error) {
	var total int64
	var err error
	if cause == "" {
		err = d.sql.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(amount_paise), 0) FROM donations WHERE status = 'completed'",
		).Scan(&total)
	} else {
		err = d.sql.QueryRowContext(ctx,
			"SELECT COALESCE(SUM(amount_paise), 0) FROM donations WHERE status = 'completed' AND cause = $1",
			cause,
		).Scan(&total)
	}
	return total, err
}

func scanDonation(row *sql.Row) (*domain.Donation, error) {
	var don domain.Donation
	var frequency, status string
	err := row.Scan(&don.ID, &don.TransactionID, &don.DonorName, &don.DonorEmail,
		&don.DonorPhone, &don.AmountPaise, &don.Cause, &frequency, &status,
		&don.CreatedAt, &don.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	don.Frequency = domain.Frequency(frequency)
	don.Status = domain.DonationStatus(status)
	return &don, nil
}
