package access

import "testing"

func TestAdminSeesEveryDepartment(t *testing.T) {
	t.Parallel()

	session := Session{TenantID: "t1", Role: RoleAdmin}
	if !session.IsAdmin() {
		t.Fatal("expected admin session")
	}
	if depts := session.Departments(); depts != nil {
		t.Fatalf("expected nil department filter for admin, got %v", depts)
	}
	for _, dept := range []string{"GERAL", "FINANCEIRO", "SUPORTE"} {
		if !session.CanView(dept) {
			t.Fatalf("admin should view %s", dept)
		}
	}
}

func TestAgentSeesOwnDepartmentAndDefault(t *testing.T) {
	t.Parallel()

	session := Session{TenantID: "t1", Role: RoleAgent, Department: "FINANCEIRO"}
	depts := session.Departments()
	if len(depts) != 2 || depts[0] != "FINANCEIRO" || depts[1] != DefaultDepartment {
		t.Fatalf("unexpected departments: %v", depts)
	}
	if !session.CanView("FINANCEIRO") {
		t.Fatal("agent should view own department")
	}
	if !session.CanView(DefaultDepartment) {
		t.Fatal("agent should view the default intake queue")
	}
	if session.CanView("SUPORTE") {
		t.Fatal("agent should not view another department")
	}
}

func TestAgentWithoutDepartmentSeesOnlyDefault(t *testing.T) {
	t.Parallel()

	session := Session{TenantID: "t1", Role: RoleAgent}
	depts := session.Departments()
	if len(depts) != 1 || depts[0] != DefaultDepartment {
		t.Fatalf("unexpected departments: %v", depts)
	}
	if session.CanView("FINANCEIRO") {
		t.Fatal("departmentless agent should not view named departments")
	}
}

func TestDefaultDepartmentAgentHasNoDuplicate(t *testing.T) {
	t.Parallel()

	session := Session{TenantID: "t1", Role: RoleAgent, Department: "geral"}
	if depts := session.Departments(); len(depts) != 1 {
		t.Fatalf("expected single department, got %v", depts)
	}
}

func TestCanViewIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	session := Session{TenantID: "t1", Role: RoleAgent, Department: "Financeiro"}
	if !session.CanView("FINANCEIRO") {
		t.Fatal("department comparison should ignore case")
	}
	if !session.CanView("financeiro") {
		t.Fatal("stored mixed-case departments should still match")
	}
}

func TestDepartmentsFilterIsCanonical(t *testing.T) {
	t.Parallel()

	// The list query filters with SQL equality, so the filter values must be
	// in the same canonical form the stores write.
	session := Session{TenantID: "t1", Role: RoleAgent, Department: " Financeiro "}
	depts := session.Departments()
	if len(depts) != 2 || depts[0] != "FINANCEIRO" || depts[1] != DefaultDepartment {
		t.Fatalf("expected canonical department filter, got %v", depts)
	}
}

func TestCanonicalDepartment(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Financeiro": "FINANCEIRO",
		" suporte ":  "SUPORTE",
		"GERAL":      "GERAL",
		"":           "",
	}
	for raw, want := range cases {
		if got := CanonicalDepartment(raw); got != want {
			t.Fatalf("CanonicalDepartment(%q) = %q, want %q", raw, got, want)
		}
	}
}
