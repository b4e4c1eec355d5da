package store

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsSurviveWrapping(t *testing.T) {
	sentinels := []error{
		ErrDuplicateTransaction,
		ErrConcurrentModification,
		ErrUserNotFound,
		ErrNotFound,
		ErrInsufficientBalance,
		ErrCycleNotActive,
		ErrAlreadyPaidToday,
		ErrAlreadyClaimed,
		ErrInvalidStatus,
		ErrPurchaseLimit,
	}

	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("operation failed: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("expected wrapped error to match %v", sentinel)
		}
		for _, other := range sentinels {
			if other != sentinel && errors.Is(wrapped, other) {
				t.Errorf("%v unexpectedly matches %v", sentinel, other)
			}
		}
	}

	var _ SettlementStore
}
