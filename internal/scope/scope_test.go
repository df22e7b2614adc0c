package scope

import (
	"errors"
	"testing"
)

func adminProfile() Profile {
	return Profile{UserID: "u1", Role: RoleCompanyAdmin, CompanyID: "c1", Status: StatusActive}
}

func userProfile() Profile {
	return Profile{UserID: "u2", Role: RoleUser, CompanyID: "c1", DepartmentID: "d1", Status: StatusActive}
}

func TestComputeDefaultPath(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"company admin lands on company root", adminProfile(), "company-c1/"},
		{"user lands on personal subtree", userProfile(), "company-c1/users/u2/"},
		{"hr lands on personal subtree", Profile{UserID: "u3", Role: RoleHR, CompanyID: "c1"}, "company-c1/users/u3/"},
		{"super admin lands on root", Profile{UserID: "u4", Role: RoleSuperAdmin}, ""},
	}

	for _, tt := range tests {
		s := Compute(tt.profile)
		if got := s.DefaultPath(); got != tt.want {
			t.Errorf("%s: DefaultPath() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestComputeAdminDefaultEqualsBasePath(t *testing.T) {
	s := Compute(adminProfile())
	if s.DefaultPath() != CompanyBasePath("c1") {
		t.Errorf("admin DefaultPath %q != CompanyBasePath %q", s.DefaultPath(), CompanyBasePath("c1"))
	}

	u := Compute(userProfile())
	if u.DefaultPath() != UserPersonalPath("c1", "u2") {
		t.Errorf("user DefaultPath %q != UserPersonalPath %q", u.DefaultPath(), UserPersonalPath("c1", "u2"))
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		path    string
		allowed bool
	}{
		{"user own personal subtree", userProfile(), "company-c1/users/u2/docs/", true},
		{"user own personal file key", userProfile(), "company-c1/users/u2/a.txt", true},
		{"user company shared", userProfile(), "company-c1/shared/", true},
		{"user nested shared", userProfile(), "company-c1/shared/reports/q3/", true},
		{"user denied admin subtree", userProfile(), "company-c1/admin/", false},
		{"user denied other user personal", userProfile(), "company-c1/users/u9/", false},
		{"user denied foreign tenant shared", userProfile(), "company-c2/shared/", false},
		{"user denied company root", userProfile(), "company-c1/", false},
		{"admin company root", adminProfile(), "company-c1/", true},
		{"admin admin subtree", adminProfile(), "company-c1/admin/", true},
		{"admin denied foreign tenant", adminProfile(), "company-c2/", false},
		{"super admin anything", Profile{UserID: "u4", Role: RoleSuperAdmin}, "company-c9/admin/secrets/", true},
		{"super admin root", Profile{UserID: "u4", Role: RoleSuperAdmin}, "", true},
	}

	for _, tt := range tests {
		err := Compute(tt.profile).ValidatePath(tt.path)
		if tt.allowed && err != nil {
			t.Errorf("%s: ValidatePath(%q) = %v, want nil", tt.name, tt.path, err)
		}
		if !tt.allowed {
			if err == nil {
				t.Errorf("%s: ValidatePath(%q) = nil, want denial", tt.name, tt.path)
			} else if !errors.Is(err, ErrAccessDenied) {
				t.Errorf("%s: error %v is not ErrAccessDenied", tt.name, err)
			}
		}
	}
}

func TestValidatePathSegmentBoundaries(t *testing.T) {
	// A grant on company-1 must not leak into company-10.
	s := Compute(Profile{UserID: "u1", Role: RoleCompanyAdmin, CompanyID: "1"})
	if err := s.ValidatePath("company-1/shared/x.txt"); err != nil {
		t.Errorf("expected company-1 path allowed, got %v", err)
	}
	if err := s.ValidatePath("company-10/shared/x.txt"); err == nil {
		t.Error("company-10 path allowed under a company-1 grant")
	}
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	paths := []string{
		"company-c1/shared/../admin/",
		"../company-c1/shared/",
		"company-c1/shared/./x",
	}
	s := Compute(userProfile())
	for _, p := range paths {
		if err := s.ValidatePath(p); !errors.Is(err, ErrAccessDenied) {
			t.Errorf("ValidatePath(%q) = %v, want ErrAccessDenied", p, err)
		}
	}

	// Even super_admin never accepts traversal segments.
	sa := Compute(Profile{UserID: "u4", Role: RoleSuperAdmin})
	if err := sa.ValidatePath("company-c1/../x"); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("super_admin accepted traversal: %v", err)
	}
}

func TestPathBuilders(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{CompanyBasePath("42"), "company-42/"},
		{CompanySharedPath("42"), "company-42/shared/"},
		{CompanyAdminPath("42"), "company-42/admin/"},
		{UserPersonalPath("42", "7"), "company-42/users/7/"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
		if tt.got[len(tt.got)-1] != '/' {
			t.Errorf("prefix %q does not end with /", tt.got)
		}
	}
}

func TestTenantOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"company-c1/shared/a.txt", "c1"},
		{"company-c1/", "c1"},
		{"company-10/users/u2/", "10"},
		{"shared/a.txt", ""},
		{"company-/x", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := TenantOf(tt.path); got != tt.want {
			t.Errorf("TenantOf(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParentPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"company-c1/shared/a.txt", "company-c1/shared/"},
		{"company-c1/shared/docs/", "company-c1/shared/"},
		{"company-c1/", ""},
		{"a.txt", ""},
	}
	for _, tt := range tests {
		if got := ParentPath(tt.path); got != tt.want {
			t.Errorf("ParentPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestValidFileName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.pdf", true},
		{"a b (final).txt", true},
		{".keep", true},
		{"", false},
		{".", false},
		{"..", false},
		{"docs/inner.txt", false},
		{"../escape.txt", false},
		{`back\slash.txt`, false},
	}
	for _, tt := range tests {
		if got := ValidFileName(tt.name); got != tt.want {
			t.Errorf("ValidFileName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
