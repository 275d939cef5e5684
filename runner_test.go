package warden

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var _ Runner = (*BackgroundRunner)(nil)

func TestBackgroundRunnerLifecycle(t *testing.T) {
	var ticks atomic.Int32
	started := make(chan struct{})
	runner := NewBackgroundRunner("cache-sweep", func(ctx context.Context) error {
		close(started)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				ticks.Add(1)
			}
		}
	}, nil)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("runner function did not start")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := runner.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := runner.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	after := ticks.Load()
	time.Sleep(5 * time.Millisecond)
	if ticks.Load() != after {
		t.Error("runner kept working after Stop")
	}
}

func TestBackgroundRunnerLogsFailure(t *testing.T) {
	log := &recordLogger{}
	runner := NewBackgroundRunner("cache-sweep", func(context.Context) error {
		return errors.New("sweep failed")
	}, log)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := runner.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !log.contains("background runner failed") {
		t.Errorf("failure not logged: %v", log.entries)
	}
}

func TestBackgroundRunnerStopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	runner := NewBackgroundRunner("stuck", func(context.Context) error {
		<-release
		return nil
	}, nil)

	if err := runner.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := runner.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() error = %v, want deadline exceeded", err)
	}
}

func TestBackgroundRunnerNilFunc(t *testing.T) {
	runner := NewBackgroundRunner("empty", nil, nil)
	if err := runner.Start(context.Background()); err != nil {
		t.Errorf("Start() error = %v", err)
	}
	if err := runner.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
