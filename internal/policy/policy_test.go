package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
)

func TestCanPerform(t *testing.T) {
	p := New(nil)
	tests := []struct {
		op   Operation
		role domain.Role
		want bool
	}{
		{OpCreate, domain.RoleAgent, true},
		{OpView, domain.RoleCoach, true},
		{OpComment, domain.RoleAgent, true},
		{OpEscalate, domain.RoleAgent, true},
		{OpClose, domain.RoleAgent, true},
		{OpEdit, domain.RoleAgent, false},
		{OpEdit, domain.RolePod, true},
		{OpAssign, domain.RoleHumanResources, false},
		{OpAssign, domain.RoleDirector, true},
		{OpDelete, domain.RoleDirector, false},
		{OpDelete, domain.RoleAdmin, true},
		{OpCreate, "", false},
	}
	for _, tt := range tests {
		if got := p.CanPerform(tt.op, tt.role); got != tt.want {
			t.Errorf("CanPerform(%s, %q): got %v, want %v", tt.op, tt.role, got, tt.want)
		}
	}
}

func TestParseYAML(t *testing.T) {
	p, err := Parse([]byte("roles:\n  escalate: [Pod, admin]\n  delete: [admin]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.CanPerform(OpEscalate, domain.RoleAgent) {
		t.Error("agent should not escalate under restricted policy")
	}
	if !p.CanPerform(OpEscalate, domain.RolePod) {
		t.Error("pod should escalate")
	}
	if p.CanPerform(OpEdit, domain.RoleAgent) || p.CanPerform(OpAssign, domain.RoleAgent) {
		t.Error("edit and assign keep management defaults when the file omits them")
	}
	if !p.CanPerform(OpEdit, domain.RolePod) {
		t.Error("pod should edit under defaults")
	}
}

func TestPartialPolicyKeepsRestrictedDefaults(t *testing.T) {
	p, err := Parse([]byte("roles:\n  close: [director]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	tests := []struct {
		op   Operation
		role domain.Role
		want bool
	}{
		{OpEdit, domain.RoleAgent, false},
		{OpAssign, domain.RoleAgent, false},
		{OpDelete, domain.RoleAgent, false},
		{OpDelete, domain.RoleDirector, false},
		{OpDelete, domain.RoleAdmin, true},
		{OpEscalate, domain.RoleAgent, true},
		{OpClose, domain.RoleAgent, false},
	}
	for _, tt := range tests {
		if got := p.CanPerform(tt.op, tt.role); got != tt.want {
			t.Errorf("CanPerform(%s, %s): got %v, want %v", tt.op, tt.role, got, tt.want)
		}
	}
}

func TestEmptyRestrictedRoleSetsAreRejected(t *testing.T) {
	docs := []string{
		"roles:\n  edit: []\n",
		"roles:\n  assign:\n",
		"roles:\n  delete: [\" \"]\n",
		"roles:\n  delete: [wizard]\n",
	}
	for _, doc := range docs {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q): expected error", doc)
		}
	}

	if _, err := FromConfig(config.PolicyConfig{
		EditRoles:   nil,
		AssignRoles: []string{"admin"},
		DeleteRoles: []string{"admin"},
	}); err == nil {
		t.Error("FromConfig: expected error for empty edit roles")
	}

	p, err := Parse([]byte("roles:\n  escalate: []\n"))
	if err != nil {
		t.Fatalf("Parse open escalate: %v", err)
	}
	if !p.CanPerform(OpEscalate, domain.RoleAgent) {
		t.Error("empty escalate set should stay open")
	}
}

func TestNewIgnoresEmptyRestrictedLists(t *testing.T) {
	p := New(map[Operation][]domain.Role{OpEdit: {}, OpDelete: nil})
	if p.CanPerform(OpEdit, domain.RoleAgent) || p.CanPerform(OpDelete, domain.RolePod) {
		t.Error("empty lists must not open edit or delete")
	}
	if !p.CanPerform(OpDelete, domain.RoleAdmin) {
		t.Error("admin should delete under defaults")
	}
}

func TestParseRejectsFixedOperations(t *testing.T) {
	if _, err := Parse([]byte("roles:\n  create: [admin]\n")); err == nil {
		t.Fatal("expected error for non-configurable operation")
	}
}

func TestFromConfigPrefersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  close: [director]\n"), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	p, err := FromConfig(config.PolicyConfig{File: path, CloseRoles: []string{"agent"}})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if p.CanPerform(OpClose, domain.RoleAgent) {
		t.Error("file policy should override env lists")
	}
	if !p.CanPerform(OpClose, domain.RoleDirector) {
		t.Error("director should close")
	}
}
