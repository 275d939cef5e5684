package rulestore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/aquamarinepk/warden/redirect"
	"github.com/aquamarinepk/warden/seed"
	"github.com/aquamarinepk/warden/subject"
)

// SeedRule is one entry of the notfound.rules config list.
type SeedRule struct {
	Subject  string `koanf:"subject"`
	Type     string `koanf:"type"`
	URL      string `koanf:"url"`
	Page     string `koanf:"page"`
	Callback string `koanf:"callback"`
	Message  string `koanf:"message"`
}

// Rule validates the entry and returns its subject key and rule.
func (s SeedRule) Rule() (subject.Key, redirect.Rule, error) {
	key, err := subject.ParseKey(s.Subject)
	if err != nil {
		return subject.Key{}, redirect.Rule{}, err
	}
	typ := redirect.Type(strings.ToLower(strings.TrimSpace(s.Type)))
	rule := redirect.Rule{Type: typ, URL: s.URL, Page: s.Page, Callback: s.Callback, Message: s.Message}
	if rule.Type == "" {
		rule.Type = redirect.TypeDefault
	}
	// Keep only the payload that belongs to the type.
	rule, err = redirect.Decode(rule.Options())
	if err != nil {
		return subject.Key{}, redirect.Rule{}, fmt.Errorf("seed rule %s: %w", key, err)
	}
	return key, rule, nil
}

// Seeds turns configured rules into run-once seeds. A seed never overwrites a
// rule that already exists for its subject, so edits made through the admin
// panel survive restarts. Changing a configured rule changes its digest, which
// lets the seed recreate the rule if it was deleted since.
func Seeds(store Store, rules []SeedRule) ([]seed.Seed, error) {
	seeds := make([]seed.Seed, 0, len(rules))
	for _, sr := range rules {
		key, rule, err := sr.Rule()
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, seed.Seed{
			ID:          "404-redirect:" + key.String(),
			Description: fmt.Sprintf("initial 404 redirect rule for %s", key),
			Digest:      ruleDigest(key, rule),
			Run: func(ctx context.Context) error {
				_, err := store.Get(ctx, key)
				if err == nil {
					return nil
				}
				if !errors.Is(err, ErrNotFound) {
					return err
				}
				_, err = store.Save(ctx, key, rule)
				return err
			},
		})
	}
	return seeds, nil
}

func ruleDigest(key subject.Key, rule redirect.Rule) string {
	sum := blake2b.Sum256([]byte(key.String() + "\x00" + string(rule.Type) + "\x00" + rule.Payload()))
	return hex.EncodeToString(sum[:8])
}
