package lock

import (
	"context"
	"testing"

	"pix-settlement-go/internal/models"
)

func TestNewWithoutAddrIsNoop(t *testing.T) {
	locker := New(models.RedisConfig{})
	if _, ok := locker.(Noop); !ok {
		t.Fatalf("Expected Noop locker, got %T", locker)
	}

	for i := 0; i < 2; i++ {
		release, err := locker.Acquire(context.Background(), "daily-payments")
		if err != nil {
			t.Fatalf("Noop Acquire failed: %v", err)
		}
		release()
	}
}

func TestKeyIsNamespaced(t *testing.T) {
	if got := Key("finalize-cycles"); got != "pix-settlement:lock:finalize-cycles" {
		t.Errorf("Unexpected key %q", got)
	}
}
