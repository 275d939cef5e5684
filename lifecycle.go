package warden

import "context"

type Startable interface {
	Start(context.Context) error
}

type Stoppable interface {
	Stop(context.Context) error
}

// LifecycleHooks adapts plain functions to Startable/Stoppable so callers can
// wire arbitrary logic, such as closing a store, into the App lifecycle.
type LifecycleHooks struct {
	OnStart func(context.Context) error
	OnStop  func(context.Context) error
}

func (h LifecycleHooks) Start(ctx context.Context) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx)
}

func (h LifecycleHooks) Stop(ctx context.Context) error {
	if h.OnStop == nil {
		return nil
	}
	return h.OnStop(ctx)
}
