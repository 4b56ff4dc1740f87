package session

import (
	"context"
	"testing"
)

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleAdmin, RoleClinician, RoleFrontDesk} {
		if !r.Valid() {
			t.Errorf("role %q should be valid", r)
		}
	}
	if Role("receptionist").Valid() {
		t.Error("unknown role should be invalid")
	}
	if Role("").Valid() {
		t.Error("empty role should be invalid")
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithSession(context.Background(), Clinician("doc-1", "Dr. Mehta"))

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected session in context")
	}
	if got.Role != RoleClinician || got.ActorID != "doc-1" || got.ActorName != "Dr. Mehta" {
		t.Errorf("unexpected session: %+v", got)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("empty context should not yield a session")
	}
}

func TestFromContextInvalidRole(t *testing.T) {
	ctx := WithSession(context.Background(), Session{Role: "ghost"})
	if _, ok := FromContext(ctx); ok {
		t.Error("session with unknown role should not be returned")
	}
}
