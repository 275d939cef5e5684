// Package redirect defines redirect rules and the executor that turns a rule
// into an HTTP response.
package redirect

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Type selects what a rule does.
type Type string

const (
	TypeDefault  Type = "default"
	TypeURL      Type = "url"
	TypePage     Type = "page"
	TypeCallback Type = "callback"
	TypeLogin    Type = "login"
	TypeMessage  Type = "message"
)

// Option keys used by the settings form and option-map storage. The payload
// of a rule of type T lives under OptionPrefix+T, e.g. "404.redirect.url".
const (
	OptionPrefix = "404.redirect."
	OptionType   = OptionPrefix + "type"
)

var (
	ErrUnknownType    = errors.New("redirect: unknown rule type")
	ErrMissingPayload = errors.New("redirect: rule payload is missing")
	ErrInvalidURL     = errors.New("redirect: invalid target url")
)

// Rule is a decoded redirect rule. Only the payload field matching Type is
// meaningful; default and login rules carry none.
type Rule struct {
	Type     Type   `json:"type" bson:"type" yaml:"type"`
	URL      string `json:"url,omitempty" bson:"url,omitempty" yaml:"url,omitempty"`
	Page     string `json:"page,omitempty" bson:"page,omitempty" yaml:"page,omitempty"`
	Callback string `json:"callback,omitempty" bson:"callback,omitempty" yaml:"callback,omitempty"`
	Message  string `json:"message,omitempty" bson:"message,omitempty" yaml:"message,omitempty"`
}

func Default() Rule               { return Rule{Type: TypeDefault} }
func ToURL(target string) Rule    { return Rule{Type: TypeURL, URL: target} }
func ToPage(id string) Rule       { return Rule{Type: TypePage, Page: id} }
func ToCallback(name string) Rule { return Rule{Type: TypeCallback, Callback: name} }
func ToLogin() Rule               { return Rule{Type: TypeLogin} }
func WithMessage(msg string) Rule { return Rule{Type: TypeMessage, Message: msg} }

// IsDefault reports whether the rule leaves the host's 404 untouched.
func (r Rule) IsDefault() bool {
	return r.Type == "" || r.Type == TypeDefault
}

// Payload returns the value carried for the rule's type.
func (r Rule) Payload() string {
	switch r.Type {
	case TypeURL:
		return r.URL
	case TypePage:
		return r.Page
	case TypeCallback:
		return r.Callback
	case TypeMessage:
		return r.Message
	default:
		return ""
	}
}

// Metadata returns the payload keyed by type, {"url": "https://..."}, the
// shape handed to executors and published in events.
func (r Rule) Metadata() map[string]string {
	if r.IsDefault() || r.Type == TypeLogin {
		return map[string]string{}
	}
	return map[string]string{string(r.Type): r.Payload()}
}

// Validate checks that the type is known and its payload is present and well
// formed.
func (r Rule) Validate() error {
	switch r.Type {
	case "", TypeDefault, TypeLogin:
		return nil
	case TypeURL:
		if strings.TrimSpace(r.URL) == "" {
			return fmt.Errorf("%w: %s", ErrMissingPayload, OptionPrefix+string(r.Type))
		}
		return ValidateTarget(r.URL)
	case TypePage, TypeCallback, TypeMessage:
		if strings.TrimSpace(r.Payload()) == "" {
			return fmt.Errorf("%w: %s", ErrMissingPayload, OptionPrefix+string(r.Type))
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, r.Type)
	}
}

// ValidateTarget accepts absolute http(s) URLs and rooted local paths.
// Protocol-relative targets ("//host", and "/\\host" which browsers read the
// same way) are rejected.
func ValidateTarget(target string) error {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "/") {
		if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
			return fmt.Errorf("%w: %q", ErrInvalidURL, target)
		}
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, target)
	}
	return nil
}

// Options encodes the rule into the option-map form.
func (r Rule) Options() map[string]string {
	typ := r.Type
	if typ == "" {
		typ = TypeDefault
	}
	opts := map[string]string{OptionType: string(typ)}
	if payload := r.Payload(); payload != "" {
		opts[OptionPrefix+string(typ)] = payload
	}
	return opts
}

// Decode reads a rule from the option-map form. A missing type decodes to the
// default rule. A non-default type whose payload key is missing or empty is
// rejected with ErrMissingPayload instead of being passed on empty.
func Decode(options map[string]string) (Rule, error) {
	raw, ok := options[OptionType]
	typ := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !ok || typ == "" {
		return Default(), nil
	}

	payload, ok := options[OptionPrefix+string(typ)]
	if !ok {
		payload = options[OptionPrefix+strings.TrimSpace(raw)]
	}
	payload = strings.TrimSpace(payload)
	var rule Rule
	switch typ {
	case TypeDefault:
		return Default(), nil
	case TypeLogin:
		rule = ToLogin()
	case TypeURL:
		rule = ToURL(payload)
	case TypePage:
		rule = ToPage(payload)
	case TypeCallback:
		rule = ToCallback(payload)
	case TypeMessage:
		rule = WithMessage(payload)
	default:
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownType, raw)
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}
