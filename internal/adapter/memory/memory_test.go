package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ngoportal/internal/domain"
)

func pendingDonation(txnID string) *domain.Donation {
	return &domain.Donation{
		ID:            "id-" + txnID,
		TransactionID: txnID,
		DonorName:     "A Donor",
		DonorEmail:    "donor@example.org",
		AmountPaise:   50000,
		Cause:         "education",
		Status:        domain.DonationPending,
		CreatedAt:     time.Now(),
	}
}

func TestInsertPending_DuplicateTransactionID(t *testing.T) {
	db := New()
	ctx := context.Background()

	if err := db.InsertPending(ctx, pendingDonation("TXN1")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.InsertPending(ctx, pendingDonation("TXN1"))
	if !errors.Is(err, domain.ErrDuplicateTransactionID) {
		t.Errorf("expected duplicate-id error, got %v", err)
	}
}

func TestMarkStatus_SingleWinner(t *testing.T) {
	db := New()
	ctx := context.Background()
	if err := db.InsertPending(ctx, pendingDonation("TXN1")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := db.MarkStatus(ctx, "TXN1", domain.DonationCompleted, time.Now())
			if err != nil {
				t.Errorf("mark: %v", err)
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("exactly one caller may win the transition, got %d", winners)
	}

	d, _ := db.FindByTransactionID(ctx, "TXN1")
	if d.Status != domain.DonationCompleted || d.CompletedAt == nil {
		t.Errorf("unexpected final record: %+v", d)
	}
}

func TestMarkStatus_UnknownAndAlreadyTerminal(t *testing.T) {
	db := New()
	ctx := context.Background()

	won, err := db.MarkStatus(ctx, "TXN-MISSING", domain.DonationFailed, time.Now())
	if err != nil || won {
		t.Errorf("unknown id must lose quietly, got won=%v err=%v", won, err)
	}

	if err := db.InsertPending(ctx, pendingDonation("TXN1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if won, _ := db.MarkStatus(ctx, "TXN1", domain.DonationFailed, time.Now()); !won {
		t.Fatal("first transition must win")
	}
	if won, _ := db.MarkStatus(ctx, "TXN1", domain.DonationCompleted, time.Now()); won {
		t.Error("terminal records admit no further transitions")
	}
	d, _ := db.FindByTransactionID(ctx, "TXN1")
	if d.Status != domain.DonationFailed {
		t.Errorf("status flipped after terminal, got %q", d.Status)
	}
}

func TestRecordFailedAttempt_ConcurrentIncrements(t *testing.T) {
	db := New()
	ctx := context.Background()
	u, err := db.Create(ctx, "donor@example.org", "hash", "Donor", domain.RoleDonor)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := db.RecordFailedAttempt(ctx, u.ID); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := db.FindByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.FailedLoginAttempts != n {
		t.Errorf("expected %d attempts, got %d", n, got.FailedLoginAttempts)
	}
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	db := New()
	repo := db.Sessions()
	ctx := context.Background()
	now := time.Now()

	_ = repo.Create(ctx, &domain.Session{ID: "stale", LastActivityAt: now.Add(-2 * time.Hour)})
	_ = repo.Create(ctx, &domain.Session{ID: "live", LastActivityAt: now})

	if err := repo.DeleteExpired(ctx, now.Add(-time.Hour)); err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if s, _ := repo.Get(ctx, "stale"); s != nil {
		t.Error("stale session must be gone")
	}
	if s, _ := repo.Get(ctx, "live"); s == nil {
		t.Error("live session must survive")
	}
}

func TestTotalRaised_FiltersByStatusAndCause(t *testing.T) {
	db := New()
	ctx := context.Background()

	completed := pendingDonation("TXN1")
	_ = db.InsertPending(ctx, completed)
	_, _ = db.MarkStatus(ctx, "TXN1", domain.DonationCompleted, time.Now())

	other := pendingDonation("TXN2")
	other.Cause = "water"
	_ = db.InsertPending(ctx, other)
	_, _ = db.MarkStatus(ctx, "TXN2", domain.DonationCompleted, time.Now())

	stillPending := pendingDonation("TXN3")
	_ = db.InsertPending(ctx, stillPending)

	total, err := db.TotalRaised(ctx, "education")
	if err != nil || total != 50000 {
		t.Errorf("education total = %d (%v), want 50000", total, err)
	}
	total, err = db.TotalRaised(ctx, "")
	if err != nil || total != 100000 {
		t.Errorf("overall total = %d (%v), want 100000", total, err)
	}
}
