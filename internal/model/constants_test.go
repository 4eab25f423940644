package model

import "testing"

func TestRoleCapabilities(t *testing.T) {
	cases := []struct {
		role                    Role
		canView, canEdit, canAdmin bool
	}{
		{RoleNone, false, false, false},
		{RoleView, true, false, false},
		{RoleEdit, true, true, false},
		{RoleAdmin, true, true, true},
	}
	for _, c := range cases {
		if c.role.CanView() != c.canView {
			t.Errorf("%s.CanView() = %v, want %v", c.role, c.role.CanView(), c.canView)
		}
		if c.role.CanEdit() != c.canEdit {
			t.Errorf("%s.CanEdit() = %v, want %v", c.role, c.role.CanEdit(), c.canEdit)
		}
		if c.role.CanAdmin() != c.canAdmin {
			t.Errorf("%s.CanAdmin() = %v, want %v", c.role, c.role.CanAdmin(), c.canAdmin)
		}
	}
}

func TestParseRoleUnknownIsNone(t *testing.T) {
	if got := ParseRole("owner"); got != RoleNone {
		t.Errorf("ParseRole(owner) = %q, want none", got)
	}
	if got := ParseRole(""); got != RoleNone {
		t.Errorf("ParseRole(empty) = %q, want none", got)
	}
	if got := ParseRole("edit"); got != RoleEdit {
		t.Errorf("ParseRole(edit) = %q, want edit", got)
	}
}
