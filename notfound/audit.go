package notfound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/events"
)

// AuditLog returns an events handler that logs every executed redirect.
// Subscribe it to EventRedirected.
func AuditLog(log warden.Logger) events.HandlerFunc {
	if log == nil {
		log = warden.NewNoopLogger()
	}
	return func(_ context.Context, msg []byte) error {
		var ev RedirectedEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", EventRedirected, err)
		}
		log.Info("404 redirected",
			"event_id", ev.ID,
			"type", ev.Type,
			"source", ev.Source,
			"method", ev.Method,
			"path", ev.Path,
			"request_id", ev.RequestID,
		)
		return nil
	}
}

// Actions carried by RulesChangedEvent.
const (
	ChangeSaved    = "saved"
	ChangeDeleted  = "deleted"
	ChangeReloaded = "reloaded"
	ChangeFlushed  = "flushed"
)

// RulesChangedEvent is published when stored rules change. Subject is empty
// when the change is not tied to one subject, e.g. a rule file reload.
type RulesChangedEvent struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	Subject string    `json:"subject,omitempty"`
	At      time.Time `json:"at"`
}

// PublishRulesChanged announces a rule change on EventRulesChanged.
func (s *Service) PublishRulesChanged(ctx context.Context, action, subjectKey string) {
	payload, err := json.Marshal(RulesChangedEvent{
		ID:      uuid.NewString(),
		Action:  action,
		Subject: subjectKey,
		At:      time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("cannot encode rules event", "error", err)
		return
	}
	if err := s.deps.PubSub.Publish(ctx, EventRulesChanged, payload); err != nil {
		s.log.Error("cannot publish rules event", "action", action, "error", err)
	}
}

// AuditRuleChanges logs rule changes. Subscribe it to EventRulesChanged.
func AuditRuleChanges(log warden.Logger) events.HandlerFunc {
	if log == nil {
		log = warden.NewNoopLogger()
	}
	return func(_ context.Context, msg []byte) error {
		var ev RulesChangedEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			return fmt.Errorf("decode %s: %w", EventRulesChanged, err)
		}
		log.Info("404 redirect rules changed",
			"event_id", ev.ID,
			"action", ev.Action,
			"subject", ev.Subject,
		)
		return nil
	}
}
