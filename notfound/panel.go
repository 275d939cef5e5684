package notfound

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aquamarinepk/warden"
	"github.com/aquamarinepk/warden/catalog"
	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/rulestore"
	"github.com/aquamarinepk/warden/subject"
)

const (
	ruleResource = "rule"
	maxRuleBody  = 64 << 10
)

// RuleView is the admin representation of a rule. Options is the settings
// form encoding; Stored is false when the subject has no rule of its own.
type RuleView struct {
	Subject   string            `json:"subject"`
	Type      redirect.Type     `json:"type"`
	Options   map[string]string `json:"options"`
	Stored    bool              `json:"stored"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// EffectiveView answers which rule a visitor gets and where it comes from.
type EffectiveView struct {
	Chain  []string `json:"chain"`
	Source string   `json:"source,omitempty"`
	Rule   RuleView `json:"rule"`
}

// PanelRoutes serves the settings panel API, mounted under
// catalog.PanelPath(PanelID):
//
//	GET    /rules
//	GET    /rules/{subjectType}/{subjectID}
//	PUT    /rules/{subjectType}/{subjectID}
//	DELETE /rules/{subjectType}/{subjectID}
//	GET    /effective?user=42&roles=editor,author
//	DELETE /cache?prefix=role:           (only with WithCache)
//
// subjectID is "-" for the visitor and default subjects.
func (s *Service) PanelRoutes(r chi.Router) {
	r.Get("/rules", s.handleListRules)
	r.Route("/rules/{subjectType}/{subjectID}", func(r chi.Router) {
		r.Get("/", s.handleGetRule)
		r.Put("/", s.handlePutRule)
		r.Delete("/", s.handleDeleteRule)
	})
	r.Get("/effective", s.handleEffective)
	if s.cache != nil {
		r.Delete("/cache", s.handleFlushCache)
	}
}

func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		s.log.Error("cannot list rules", "error", err)
		warden.RespondError(w, http.StatusInternalServerError, "cannot list rules")
		return
	}
	views := make([]RuleView, 0, len(records))
	for _, rec := range records {
		views = append(views, storedView(rec))
	}
	warden.RespondSuccess(w, views, warden.CollectionLinksFor(panelBase(), ruleResource)...)
}

func (s *Service) handleGetRule(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, rulestore.ErrNotFound):
		warden.RespondSuccess(w, defaultView(key), ruleLinks(key)...)
	case err != nil:
		s.log.Error("cannot read rule", "subject", key.String(), "error", err)
		warden.RespondError(w, http.StatusInternalServerError, "cannot read rule")
	default:
		warden.RespondSuccess(w, storedView(rec), ruleLinks(key)...)
	}
}

func (s *Service) handlePutRule(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}

	var options map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRuleBody)).Decode(&options); err != nil {
		warden.RespondError(w, http.StatusBadRequest, "request body must be a JSON object of string options")
		return
	}
	rule, err := redirect.Decode(options)
	if err != nil {
		warden.Error(w, http.StatusBadRequest, "invalid_rule", "rule rejected", ruleValidationError(options, err))
		return
	}

	rec, err := s.store.Save(r.Context(), key, rule)
	if err != nil {
		s.log.Error("cannot save rule", "subject", key.String(), "error", err)
		warden.RespondError(w, http.StatusInternalServerError, "cannot save rule")
		return
	}
	s.log.Info("404 redirect rule saved", "subject", rec.Key, "type", rec.Rule.Type)
	s.PublishRulesChanged(r.Context(), ChangeSaved, rec.Key)
	warden.RespondSuccess(w, storedView(rec), ruleLinks(key)...)
}

func (s *Service) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	err := s.store.Delete(r.Context(), key)
	switch {
	case errors.Is(err, rulestore.ErrNotFound):
		warden.RespondError(w, http.StatusNotFound, "no rule stored for "+key.String())
	case err != nil:
		s.log.Error("cannot delete rule", "subject", key.String(), "error", err)
		warden.RespondError(w, http.StatusInternalServerError, "cannot delete rule")
	default:
		s.log.Info("404 redirect rule reset", "subject", key.String())
		s.PublishRulesChanged(r.Context(), ChangeDeleted, key.String())
		warden.Respond(w, http.StatusNoContent, nil, nil)
	}
}

func (s *Service) handleEffective(w http.ResponseWriter, r *http.Request) {
	visitor := subject.Subject{UserID: strings.TrimSpace(r.URL.Query().Get("user"))}
	if !visitor.Anonymous() {
		for _, role := range strings.Split(r.URL.Query().Get("roles"), ",") {
			if role = strings.TrimSpace(role); role != "" {
				visitor.Roles = append(visitor.Roles, role)
			}
		}
	}

	chain := visitor.Chain()
	view := EffectiveView{Chain: make([]string, 0, len(chain))}
	for _, key := range chain {
		view.Chain = append(view.Chain, key.String())
	}

	rec, found, err := rulestore.Effective(r.Context(), s.store, chain)
	if err != nil {
		s.log.Error("cannot resolve effective rule", "error", err)
		warden.RespondError(w, http.StatusInternalServerError, "cannot resolve effective rule")
		return
	}
	if found {
		view.Source = rec.Key
		view.Rule = storedView(rec)
	} else {
		view.Rule = defaultView(subject.Default)
	}
	warden.RespondSuccess(w, view)
}

// handleFlushCache drops cached rules, e.g. after another instance wrote to
// a shared store.
func (s *Service) handleFlushCache(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	s.cache.Invalidate(prefix)
	s.log.Info("404 redirect rule cache flushed", "prefix", prefix)
	s.PublishRulesChanged(r.Context(), ChangeFlushed, prefix)
	warden.Respond(w, http.StatusNoContent, nil, nil)
}

func keyParam(w http.ResponseWriter, r *http.Request) (subject.Key, bool) {
	typ := strings.ToLower(chi.URLParam(r, "subjectType"))
	id := chi.URLParam(r, "subjectID")
	if id == "-" {
		id = ""
	}
	key := subject.Key{Type: subject.Type(typ), ID: id}
	if err := key.Validate(); err != nil {
		warden.Error(w, http.StatusBadRequest, "invalid_subject", err.Error(),
			warden.ValidationError{Field: "subject", Message: err.Error()})
		return subject.Key{}, false
	}
	return key, true
}

func ruleValidationError(options map[string]string, err error) warden.ValidationError {
	field := redirect.OptionType
	if errors.Is(err, redirect.ErrMissingPayload) || errors.Is(err, redirect.ErrInvalidURL) {
		field = redirect.OptionPrefix + strings.ToLower(strings.TrimSpace(options[redirect.OptionType]))
	}
	return warden.ValidationError{Field: field, Message: err.Error()}
}

func storedView(rec rulestore.Record) RuleView {
	at := rec.UpdatedAt
	return RuleView{
		Subject:   rec.Key,
		Type:      rec.Rule.Type,
		Options:   rec.Rule.Options(),
		Stored:    true,
		UpdatedAt: &at,
	}
}

func defaultView(key subject.Key) RuleView {
	rule := redirect.Default()
	return RuleView{Subject: key.String(), Type: rule.Type, Options: rule.Options()}
}

func panelBase() string {
	return catalog.PanelPath(PanelID)
}

func ruleLinks(key subject.Key) []warden.Link {
	id := key.ID
	if id == "" {
		id = "-"
	}
	return warden.ItemLinksFor(panelBase(), ruleResource, string(key.Type)+"/"+id)
}
