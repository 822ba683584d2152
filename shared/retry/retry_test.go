package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ftotnem/POINTS-LEDGER/shared/errors"
)

func fastPolicy(attempts uint64) Policy {
	return Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
		MaxAttempts:     attempts,
		Retryable:       IsTransient,
	}
}

func TestDoRetriesTransientStoreErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.NewStoreError("find team", errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	storeErr := apperrors.NewStoreError("find team", errors.New("connection reset"))
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return storeErr
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsStore(err))
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryDomainErrors(t *testing.T) {
	for name, domainErr := range map[string]error{
		"validation": apperrors.NewValidationError("comment", "must not be empty"),
		"not found":  apperrors.ErrTeamNotFound,
		"canceled":   apperrors.NewStoreError("find team", context.Canceled),
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
				calls++
				return domainErr
			})
			assert.ErrorIs(t, err, domainErr)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestValueReturnsResult(t *testing.T) {
	calls := 0
	got, err := Value(context.Background(), fastPolicy(3), func(ctx context.Context) (int64, error) {
		calls++
		if calls == 1 {
			return 0, apperrors.NewStoreError("get balance", errors.New("timeout"))
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestNoRetryRunsOnce(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), NoRetry(), func(ctx context.Context) error {
		calls++
		return apperrors.NewStoreError("apply", errors.New("boom"))
	})
	assert.Equal(t, 1, calls)
}
