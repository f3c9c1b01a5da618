package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func retryOnly() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(retryOnly())

	attempts := 0
	errFlaky := errors.New("flaky")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	}, func(err error) Outcome {
		return Outcome{Retryable: errors.Is(err, errFlaky), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	exec := NewExecutor(retryOnly())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) Outcome {
		return Outcome{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	exec := NewExecutor(retryOnly())

	attempts := 0
	errFlaky := errors.New("flaky")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errFlaky
	}, func(error) Outcome {
		return Outcome{Retryable: true, RecordFailure: true}
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected flaky error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteOpensCircuit(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errDown := errors.New("down")
	classify := func(error) Outcome {
		return Outcome{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errDown
		}, classify)
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected down error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("open circuit must not invoke the operation")
		return nil
	}, classify)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("IsCircuitOpen(%v) = false", err)
	}
}
