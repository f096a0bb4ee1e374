package models

import "testing"

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from    ApplicationStatus
		to      ApplicationStatus
		allowed bool
	}{
		{StatusPending, StatusSubmitted, true},
		{StatusPending, StatusAccepted, false},
		{StatusPending, StatusRejected, false},
		{StatusSubmitted, StatusAccepted, true},
		{StatusSubmitted, StatusRejected, true},
		{StatusSubmitted, StatusPending, false},
		{StatusAccepted, StatusRejected, false},
		{StatusAccepted, StatusSubmitted, false},
		{StatusRejected, StatusAccepted, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if StatusPending.IsTerminal() || StatusSubmitted.IsTerminal() {
		t.Error("pending and submitted are not terminal")
	}
	if !StatusAccepted.IsTerminal() || !StatusRejected.IsTerminal() {
		t.Error("accepted and rejected are terminal")
	}
}

func TestIsCompanyMember(t *testing.T) {
	company := &User{ID: "u1", Role: RoleCompany, CompanyID: "c1"}
	if !company.IsCompanyMember("c1") {
		t.Error("company user should match own company")
	}
	if company.IsCompanyMember("c2") {
		t.Error("company user should not match another company")
	}
	if company.IsCompanyMember("") {
		t.Error("empty company id never matches")
	}

	student := &User{ID: "u2", Role: RoleStudent}
	if student.IsCompanyMember("c1") {
		t.Error("students are never company members")
	}
}
