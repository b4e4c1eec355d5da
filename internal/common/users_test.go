package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"pix-settlement-go/internal/database"
	"pix-settlement-go/internal/store"
)

func TestSelectUsers(t *testing.T) {
	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	root, err := db.CreateUser(ctx, store.CreateUserParams{
		Name: "Root", Email: "root@example.com", ReferralCode: "ROOT0001", CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	child, err := db.CreateUser(ctx, store.CreateUserParams{
		Name: "Child", Email: "child@example.com", ReferralCode: "CHILD001",
		ReferredBy: root.Id, Ancestors: []string{root.Id}, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	all, err := SelectUsers(ctx, db, "")
	if err != nil {
		t.Fatalf("SelectUsers failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(all))
	}

	tests := []struct {
		selector string
		wantId   string
	}{
		{"Child@Example.com", child.Id},
		{"child001", child.Id},
		{root.Id, root.Id},
	}
	for _, tt := range tests {
		users, err := SelectUsers(ctx, db, tt.selector)
		if err != nil {
			t.Errorf("SelectUsers(%q) failed: %v", tt.selector, err)
			continue
		}
		if len(users) != 1 || users[0].Id != tt.wantId {
			t.Errorf("SelectUsers(%q) = %+v, want user %s", tt.selector, users, tt.wantId)
		}
	}

	if users, _ := SelectUsers(ctx, db, "child@example.com"); len(users) == 1 && users[0].ReferredBy != root.Id {
		t.Errorf("Expected child to be referred by root, got %q", users[0].ReferredBy)
	}

	if _, err := SelectUsers(ctx, db, "nobody"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}
