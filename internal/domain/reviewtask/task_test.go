package reviewtask

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusRunning, StatusPending, false},
		{StatusCompleted, StatusRunning, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestCreateRequestValidate(t *testing.T) {
	valid := CreateRequest{
		ProjectID: "p1",
		Scope:     ScopeFile,
		Name:      "security pass",
		Type:      TypeSecurity,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	bad := []CreateRequest{
		{Scope: ScopeFile, Type: TypeFull},                               // no name
		{Name: "x", Scope: "workspace", Type: TypeFull},                  // bad scope
		{Name: "x", Scope: ScopeProject, Type: "style"},                  // bad type
		{Name: string(make([]byte, 65)), Scope: ScopeFile, Type: "full"}, // long name
	}
	for i, req := range bad {
		if err := req.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
