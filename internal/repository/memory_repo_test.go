package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gambit/internal/model"
)

func TestMemorySubscriptionRepo_AddIsIdempotent(t *testing.T) {
	repo := NewMemorySubscriptionRepo()
	ctx := context.Background()
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := repo.Add(ctx, &model.Subscription{SubscriberID: "u1", ChessUsername: "hikaru", CreatedAt: first}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := repo.Add(ctx, &model.Subscription{SubscriberID: "u1", ChessUsername: "hikaru", CreatedAt: first.Add(time.Hour)}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	subs, err := repo.ListBySubscriber(ctx, "u1")
	if err != nil {
		t.Fatalf("ListBySubscriber() error = %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("len(subs) = %d, want 1", len(subs))
	}
	// 2回目のAddでcreated_atは上書きされない
	if !subs[0].CreatedAt.Equal(first) {
		t.Errorf("CreatedAt = %v, want %v", subs[0].CreatedAt, first)
	}
}

func TestMemorySubscriptionRepo_ListIsScopedToSubscriber(t *testing.T) {
	repo := NewMemorySubscriptionRepo()
	ctx := context.Background()

	_ = repo.Add(ctx, &model.Subscription{SubscriberID: "u1", ChessUsername: "hikaru"})
	_ = repo.Add(ctx, &model.Subscription{SubscriberID: "u1", ChessUsername: "magnuscarlsen"})
	_ = repo.Add(ctx, &model.Subscription{SubscriberID: "u2", ChessUsername: "hikaru"})

	subs, _ := repo.ListBySubscriber(ctx, "u1")
	if len(subs) != 2 {
		t.Errorf("u1 subscriptions = %d, want 2", len(subs))
	}
	subs, _ = repo.ListBySubscriber(ctx, "nobody")
	if subs == nil || len(subs) != 0 {
		t.Errorf("unknown subscriber should yield empty non-nil slice, got %v", subs)
	}
}

func TestMemorySubscriptionRepo_RemoveAbsentIsNoop(t *testing.T) {
	repo := NewMemorySubscriptionRepo()
	ctx := context.Background()

	if err := repo.Remove(ctx, "u1", "ghost"); err != nil {
		t.Fatalf("Remove() of absent pair error = %v", err)
	}

	_ = repo.Add(ctx, &model.Subscription{SubscriberID: "u1", ChessUsername: "hikaru"})
	if err := repo.Remove(ctx, "u1", "hikaru"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	subs, _ := repo.ListBySubscriber(ctx, "u1")
	if len(subs) != 0 {
		t.Errorf("len(subs) = %d after Remove, want 0", len(subs))
	}
}

func TestMemorySessionRepo_CreateWithSweep_RemovesOnlyExpiredOfSameUser(t *testing.T) {
	repo := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []model.Session{
		{ID: "expired-u1", UserID: "u1", ExpiresAt: now.Add(-time.Minute)},
		{ID: "live-u1", UserID: "u1", ExpiresAt: now.Add(time.Hour)},
		{ID: "expired-u2", UserID: "u2", ExpiresAt: now.Add(-time.Minute)},
	}
	for i := range seed {
		if _, err := repo.CreateWithSweep(ctx, &seed[i], now.Add(-48*time.Hour)); err != nil {
			t.Fatalf("seed CreateWithSweep() error = %v", err)
		}
	}

	swept, err := repo.CreateWithSweep(ctx, &model.Session{ID: "new-u1", UserID: "u1", ExpiresAt: now.Add(24 * time.Hour)}, now)
	if err != nil {
		t.Fatalf("CreateWithSweep() error = %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	if s, _ := repo.FindByID(ctx, "expired-u1"); s != nil {
		t.Error("expired session of same user should have been swept")
	}
	if s, _ := repo.FindByID(ctx, "live-u1"); s == nil {
		t.Error("live session should remain")
	}
	if s, _ := repo.FindByID(ctx, "expired-u2"); s == nil {
		t.Error("other user's expired session should remain")
	}
}

func TestMemorySessionRepo_ConcurrentCreate(t *testing.T) {
	repo := NewMemorySessionRepo()
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := &model.Session{ID: fmt.Sprintf("s-%d", i), UserID: "u1", ExpiresAt: now.Add(time.Hour)}
			if _, err := repo.CreateWithSweep(ctx, s, now); err != nil {
				t.Errorf("CreateWithSweep() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := repo.CountByUserID("u1"); got != 20 {
		t.Errorf("CountByUserID = %d, want 20", got)
	}
}
