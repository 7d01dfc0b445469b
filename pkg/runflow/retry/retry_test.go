package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

var errBusy = errors.New("database is locked")

func TestCategoryString(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{Category(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"plain", errors.New("boom"), CategoryPermanent},
		{"transient", Transient(errBusy, "append log"), CategoryTransient},
		{"wrapped transient", fmt.Errorf("store: %w", Transient(errBusy, "")), CategoryTransient},
		{"permanent", Permanent(errBusy, ""), CategoryPermanent},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"cancelled", context.Canceled, CategoryPermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.want {
				t.Errorf("Categorize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	err := &CategorizedError{Err: errBusy, Category: CategoryTransient, Retries: 2, Context: "update run"}
	want := "update run: database is locked (category: transient, attempts: 2)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, errBusy) {
		t.Error("CategorizedError should unwrap to the cause")
	}

	bare := &CategorizedError{Err: errBusy, Category: CategoryPermanent, Retries: 1}
	if got := bare.Error(); got != "database is locked (category: permanent, attempts: 1)" {
		t.Errorf("Error() = %q", got)
	}
}

func TestDo(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		result := Do(NewConfig(WithMaxAttempts(3)), func() (string, error) {
			calls++
			return "success", nil
		})

		if result.Err != nil {
			t.Errorf("Unexpected error: %v", result.Err)
		}
		if result.Value != "success" {
			t.Errorf("Value = %q, want %q", result.Value, "success")
		}
		if result.Attempts != 1 || calls != 1 {
			t.Errorf("Attempts = %d, calls = %d, want 1", result.Attempts, calls)
		}
	})

	t.Run("success on retry", func(t *testing.T) {
		calls := 0
		cfg := NewConfig(WithMaxAttempts(3), WithInitialBackoff(time.Millisecond))
		result := Do(cfg, func() (string, error) {
			calls++
			if calls < 2 {
				return "", Transient(errBusy, "")
			}
			return "success", nil
		})

		if result.Err != nil {
			t.Errorf("Unexpected error: %v", result.Err)
		}
		if result.Attempts != 2 {
			t.Errorf("Attempts = %d, want 2", result.Attempts)
		}
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		cfg := NewConfig(WithMaxAttempts(3), WithInitialBackoff(time.Millisecond))
		result := Do(cfg, func() (string, error) {
			return "", Transient(errBusy, "")
		})

		if result.Err == nil {
			t.Fatal("Expected error after max attempts")
		}
		if result.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", result.Attempts)
		}
		if !errors.Is(result.Err, errBusy) {
			t.Errorf("final error %v should wrap the cause", result.Err)
		}
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		calls := 0
		result := Do(NewConfig(WithMaxAttempts(3)), func() (string, error) {
			calls++
			return "", errors.New("constraint failed")
		})

		if result.Err == nil {
			t.Error("Expected error")
		}
		if calls != 1 {
			t.Errorf("Calls = %d, want 1 (should not retry permanent error)", calls)
		}
	})

	t.Run("custom retryable func", func(t *testing.T) {
		calls := 0
		cfg := NewConfig(
			WithMaxAttempts(3),
			WithInitialBackoff(time.Millisecond),
			WithRetryableFunc(func(err error) bool { return errors.Is(err, errBusy) }),
		)
		result := Do(cfg, func() (int, error) {
			calls++
			return 0, errBusy
		})

		if calls != 3 {
			t.Errorf("Calls = %d, want 3 (custom func should retry)", calls)
		}
		if result.Attempts != 3 {
			t.Errorf("Attempts = %d, want 3", result.Attempts)
		}
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		Do(Config{}, func() (int, error) {
			calls++
			return 0, nil
		})
		if calls != 1 {
			t.Errorf("Calls = %d, want 1", calls)
		}
	})
}

func TestDoContext(t *testing.T) {
	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result := DoContext(ctx, NewConfig(WithMaxAttempts(3)), func(_ context.Context) (string, error) {
			return "never reached", nil
		})

		if result.Err == nil {
			t.Error("Expected error from cancelled context")
		}
		if result.Attempts != 0 {
			t.Errorf("Attempts = %d, want 0", result.Attempts)
		}
	})

	t.Run("cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0

		cfg := NewConfig(
			WithMaxAttempts(5),
			WithInitialBackoff(100*time.Millisecond),
			WithMaxBackoff(time.Second),
		)

		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		result := DoContext(ctx, cfg, func(_ context.Context) (string, error) {
			calls++
			return "", Transient(errBusy, "")
		})

		if result.Err == nil {
			t.Error("Expected error from cancelled context")
		}
		if calls > 2 {
			t.Errorf("Calls = %d, expected <= 2 (should cancel during backoff)", calls)
		}
	})
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig(
		WithMaxAttempts(7),
		WithInitialBackoff(2*time.Millisecond),
		WithMaxBackoff(60*time.Millisecond),
		WithBackoffFactor(3.0),
		WithJitter(0.2),
	)

	if cfg.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %d, want 7", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != 2*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 2ms", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 60*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 60ms", cfg.MaxBackoff)
	}
	if cfg.BackoffFactor != 3.0 {
		t.Errorf("BackoffFactor = %f, want 3.0", cfg.BackoffFactor)
	}
	if cfg.Jitter != 0.2 {
		t.Errorf("Jitter = %f, want 0.2", cfg.Jitter)
	}
	if None.MaxAttempts != 1 {
		t.Errorf("None.MaxAttempts = %d, want 1", None.MaxAttempts)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := calculateBackoff(10*time.Millisecond, 0); got != 10*time.Millisecond {
		t.Errorf("no jitter: got %v", got)
	}
	for i := 0; i < 50; i++ {
		got := calculateBackoff(10*time.Millisecond, 0.5)
		if got < 5*time.Millisecond || got > 15*time.Millisecond {
			t.Fatalf("jittered backoff %v out of range", got)
		}
	}
}
