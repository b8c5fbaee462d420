package domain

import (
	"context"
	"time"
)

// DonationStatus is the lifecycle state of a donation intent.
type DonationStatus string

// Donation statuses. A donation is created pending and transitions to a
// terminal state exactly once.
const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationFailed    DonationStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s DonationStatus) Terminal() bool {
	return s == DonationCompleted || s == DonationFailed
}

// Frequency is how often a donation recurs.
type Frequency string

// Donation frequencies.
const (
	FrequencyOneTime Frequency = "one-time"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyOneTime, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// Donation represents a supporter contribution record. TransactionID is
// the sole correlation key between the locally created pending record
// and the processor's asynchronous callback.
type Donation struct {
	ID            string
	TransactionID string
	DonorName     string
	DonorEmail    string
	DonorPhone    string
	AmountPaise   int64
	Cause         string
	Frequency     Frequency
	Status        DonationStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// DonationRepository defines the port for donation persistence.
type DonationRepository interface {
	InsertPending(ctx context.Context, d *Donation) error
	FindByTransactionID(ctx context.Context, txnID string) (*Donation, error)
	// MarkStatus transitions the donation to the given terminal status
	// only if it is still pending, and reports whether this call won the
	// transition. Implementations must make the check-and-set atomic.
	MarkStatus(ctx context.Context, txnID string, status DonationStatus, at time.Time) (bool, error)
	ListByEmail(ctx context.Context, email string, limit int) ([]Donation, error)
	TotalRaised(ctx context.Context, cause string) (int64, error)
}

// ErrDuplicateTransactionID is returned by InsertPending when the
// generated transaction id collides with an existing record.
var ErrDuplicateTransactionID = Errorf(KindValidation, "duplicate transaction id")
