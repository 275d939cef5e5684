package warden

import (
	"context"
	"errors"
	"testing"
)

var (
	_ Startable = LifecycleHooks{}
	_ Stoppable = LifecycleHooks{}
)

func TestLifecycleHooks(t *testing.T) {
	hookErr := errors.New("store closed")
	tests := []struct {
		name      string
		hooks     LifecycleHooks
		wantStart error
		wantStop  error
	}{
		{name: "empty"},
		{
			name: "hooks called",
			hooks: LifecycleHooks{
				OnStart: func(context.Context) error { return nil },
				OnStop:  func(context.Context) error { return hookErr },
			},
			wantStop: hookErr,
		},
		{
			name: "start error",
			hooks: LifecycleHooks{
				OnStart: func(context.Context) error { return hookErr },
			},
			wantStart: hookErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.hooks.Start(context.Background()); !errors.Is(err, tt.wantStart) {
				t.Errorf("Start() error = %v, want %v", err, tt.wantStart)
			}
			if err := tt.hooks.Stop(context.Background()); !errors.Is(err, tt.wantStop) {
				t.Errorf("Stop() error = %v, want %v", err, tt.wantStop)
			}
		})
	}
}
