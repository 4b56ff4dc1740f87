// Package session carries the acting user through context as an explicit
// tagged variant instead of an ambient "current user" blob.
package session

import "context"

// Role identifies which kind of actor is operating on the record pool.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleClinician Role = "clinician"
	RoleFrontDesk Role = "frontdesk"
)

// Valid reports whether the role is one of the three known variants.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClinician, RoleFrontDesk:
		return true
	}
	return false
}

// Session is the resolved actor for one request. ActorID and ActorName are
// empty for admin sessions; clinician and front-desk sessions carry their
// profile so writes can be attributed.
type Session struct {
	Role      Role
	ActorID   string
	ActorName string
}

// Admin returns an administrator session.
func Admin() Session {
	return Session{Role: RoleAdmin}
}

// Clinician returns a clinician session for the given profile.
func Clinician(id, name string) Session {
	return Session{Role: RoleClinician, ActorID: id, ActorName: name}
}

// FrontDesk returns a front-desk session for the given profile.
func FrontDesk(id, name string) Session {
	return Session{Role: RoleFrontDesk, ActorID: id, ActorName: name}
}

type ctxKey string

const sessionKey ctxKey = "clinic.session"

// WithSession stores the session in context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext extracts the session if present.
func FromContext(ctx context.Context) (Session, bool) {
	val := ctx.Value(sessionKey)
	if val == nil {
		return Session{}, false
	}
	s, ok := val.(Session)
	return s, ok && s.Role.Valid()
}
