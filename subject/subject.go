// Package subject models who a request acts for and the keys under which
// per-user and per-role settings are stored.
package subject

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Type classifies a settings owner.
type Type string

const (
	TypeUser    Type = "user"
	TypeRole    Type = "role"
	TypeVisitor Type = "visitor"
	TypeDefault Type = "default"
)

// Key identifies the owner of a stored setting. ID is empty for visitor and
// default keys.
type Key struct {
	Type Type   `json:"type" bson:"type"`
	ID   string `json:"id,omitempty" bson:"id,omitempty"`
}

func User(id string) Key { return Key{Type: TypeUser, ID: id} }
func Role(id string) Key { return Key{Type: TypeRole, ID: id} }

var (
	Visitor = Key{Type: TypeVisitor}
	Default = Key{Type: TypeDefault}
)

// String renders the storage form: "user:42", "role:editor", "visitor", "default".
func (k Key) String() string {
	if k.ID == "" {
		return string(k.Type)
	}
	return string(k.Type) + ":" + k.ID
}

// Validate checks the type and that only user and role keys carry an ID.
func (k Key) Validate() error {
	switch k.Type {
	case TypeUser, TypeRole:
		if strings.TrimSpace(k.ID) == "" {
			return fmt.Errorf("subject: %s key requires an id", k.Type)
		}
	case TypeVisitor, TypeDefault:
		if k.ID != "" {
			return fmt.Errorf("subject: %s key takes no id", k.Type)
		}
	default:
		return fmt.Errorf("subject: unknown type %q", k.Type)
	}
	return nil
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	typ, id, _ := strings.Cut(strings.TrimSpace(s), ":")
	k := Key{Type: Type(strings.ToLower(typ)), ID: id}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Subject is the visitor a request is served for.
type Subject struct {
	UserID string
	Roles  []string
}

// Anonymous reports whether the visitor is not signed in.
func (s Subject) Anonymous() bool {
	return s.UserID == ""
}

// Chain returns the lookup order for effective settings: the user, each role
// in order, then visitor (anonymous only) and finally default.
func (s Subject) Chain() []Key {
	chain := make([]Key, 0, len(s.Roles)+2)
	if s.Anonymous() {
		chain = append(chain, Visitor)
	} else {
		chain = append(chain, User(s.UserID))
		for _, role := range s.Roles {
			if role = strings.TrimSpace(role); role != "" {
				chain = append(chain, Role(role))
			}
		}
	}
	return append(chain, Default)
}

type subjectKeyType struct{}

var subjectKey subjectKeyType

// WithSubject stores the resolved subject in ctx.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

// From returns the subject stored in ctx, if any.
func From(ctx context.Context) (Subject, bool) {
	if ctx == nil {
		return Subject{}, false
	}
	s, ok := ctx.Value(subjectKey).(Subject)
	return s, ok
}

// Resolver determines the current visitor of a request.
type Resolver interface {
	Resolve(r *http.Request) (Subject, error)
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(r *http.Request) (Subject, error)

func (f ResolverFunc) Resolve(r *http.Request) (Subject, error) { return f(r) }

const (
	DefaultUserHeader  = "X-User-ID"
	DefaultRolesHeader = "X-User-Roles"
)

// HeaderResolver reads identity set by an upstream authenticating proxy.
type HeaderResolver struct {
	UserHeader  string
	RolesHeader string
}

// NewHeaderResolver returns a resolver using the given headers, falling back
// to X-User-ID and X-User-Roles.
func NewHeaderResolver(userHeader, rolesHeader string) HeaderResolver {
	if userHeader == "" {
		userHeader = DefaultUserHeader
	}
	if rolesHeader == "" {
		rolesHeader = DefaultRolesHeader
	}
	return HeaderResolver{UserHeader: userHeader, RolesHeader: rolesHeader}
}

func (h HeaderResolver) Resolve(r *http.Request) (Subject, error) {
	if s, ok := From(r.Context()); ok {
		return s, nil
	}
	s := Subject{UserID: strings.TrimSpace(r.Header.Get(h.UserHeader))}
	if s.Anonymous() {
		return s, nil
	}
	for _, role := range strings.Split(r.Header.Get(h.RolesHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			s.Roles = append(s.Roles, role)
		}
	}
	return s, nil
}

// Middleware resolves the subject once and stores it in the request context.
// Resolution failures leave the request anonymous.
func Middleware(resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := From(r.Context()); ok || resolver == nil {
				next.ServeHTTP(w, r)
				return
			}
			s, err := resolver.Resolve(r)
			if err != nil {
				s = Subject{}
			}
			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), s)))
		})
	}
}
