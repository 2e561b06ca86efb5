package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "alpharoyale/pkg/errors"
)

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0

	err := Do(context.Background(), DefaultPolicy, apperrors.Transient, func() error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestStore_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0

	err := Store(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: locked", apperrors.ErrStoreTransient)
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestStore_ExhaustsAttempts(t *testing.T) {
	calls := 0

	err := Store(context.Background(), func() error {
		calls++
		return fmt.Errorf("%w: still locked", apperrors.ErrStoreTransient)
	})

	if !errors.Is(err, apperrors.ErrStoreTransient) {
		t.Fatalf("expected transient error after exhaustion, got %v", err)
	}
	if calls != StorePolicy.MaxAttempts {
		t.Errorf("expected %d calls, got %d", StorePolicy.MaxAttempts, calls)
	}
}
