package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opdstack/clinic-platform/internal/session"
)

// SessionClaims are the JWT claims the frontend login issues: the actor's
// role plus display name on top of the registered subject.
type SessionClaims struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// RoleSession resolves the caller's session and stores it on the request
// context. With a secret configured it requires an HMAC-signed bearer
// token. With an empty secret (development mode) it accepts the plain
// X-Session header, "role:actorID:actorName".
//
// Requests without a resolvable session pass through without one; handlers
// that need a session reject them there.
func RoleSession(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := resolveSession(r, secret)
			if ok {
				r = r.WithContext(session.WithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func resolveSession(r *http.Request, secret string) (session.Session, bool) {
	if secret == "" {
		return parseDevHeader(r.Header.Get("X-Session"))
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return session.Session{}, false
	}
	claims := SessionClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return session.Session{}, false
	}

	sess := session.Session{
		Role:      session.Role(claims.Role),
		ActorID:   claims.Subject,
		ActorName: claims.Name,
	}
	if !sess.Role.Valid() {
		return session.Session{}, false
	}
	return sess, true
}

func parseDevHeader(raw string) (session.Session, bool) {
	if raw == "" {
		return session.Session{}, false
	}
	parts := strings.SplitN(raw, ":", 3)
	sess := session.Session{Role: session.Role(parts[0])}
	if len(parts) > 1 {
		sess.ActorID = parts[1]
	}
	if len(parts) > 2 {
		sess.ActorName = parts[2]
	}
	if !sess.Role.Valid() {
		return session.Session{}, false
	}
	return sess, true
}
