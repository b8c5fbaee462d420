package app

import (
	"context"
	"testing"
	"time"

	"ngoportal/internal/adapter/memory"
	"ngoportal/internal/domain"
)

func TestSweepSessions(t *testing.T) {
	db := memory.New()
	repo := db.Sessions()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	now := time.Now()
	_ = repo.Create(ctx, &domain.Session{ID: "stale", LastActivityAt: now.Add(-2 * time.Hour)})
	_ = repo.Create(ctx, &domain.Session{ID: "live", UserID: 1, LastActivityAt: now})

	go SweepSessions(ctx, repo, time.Hour, 5*time.Millisecond, quietLogger())

	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := repo.Get(ctx, "stale")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if s == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stale session was never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if s, _ := repo.Get(ctx, "live"); s == nil {
		t.Error("recently active session must survive the sweep")
	}
}
