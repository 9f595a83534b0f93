package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/followup/ticket-service/internal/config"
	"github.com/followup/ticket-service/internal/domain"
)

// Operation names a lifecycle operation subject to authorization.
type Operation string

const (
	OpCreate   Operation = "create"
	OpView     Operation = "view"
	OpComment  Operation = "comment"
	OpEscalate Operation = "escalate"
	OpClose    Operation = "close"
	OpEdit     Operation = "edit"
	OpAssign   Operation = "assign"
	OpDelete   Operation = "delete"
)

// configurable lists the operations whose role sets come from configuration.
// Create, view and comment are open to every authenticated actor.
var configurable = []Operation{OpEscalate, OpClose, OpEdit, OpAssign, OpDelete}

// ManagementRoles may edit and assign tickets unless configured otherwise.
var ManagementRoles = []domain.Role{
	domain.RoleAdmin,
	domain.RoleDirector,
	domain.RoleSrOperationsManager,
	domain.RoleOperationsManager,
	domain.RolePod,
}

// Defaults returns the built-in role sets. Edit, assign and delete are always
// restricted; escalate and close are open.
func Defaults() map[Operation][]domain.Role {
	return map[Operation][]domain.Role{
		OpEdit:   append([]domain.Role(nil), ManagementRoles...),
		OpAssign: append([]domain.Role(nil), ManagementRoles...),
		OpDelete: {domain.RoleAdmin},
	}
}

// alwaysRestricted reports whether op must keep a non-empty role set.
func alwaysRestricted(op Operation) bool {
	return op == OpEdit || op == OpAssign || op == OpDelete
}

// Policy maps operations to the roles allowed to perform them. Escalate and
// close with no role set are open to any authenticated actor.
type Policy struct {
	roles map[Operation]map[domain.Role]struct{}
}

// New builds a policy from explicit role lists laid over Defaults. An empty
// list opens escalate or close; edit, assign and delete fall back to their
// defaults.
func New(roles map[Operation][]domain.Role) *Policy {
	merged := Defaults()
	for op, list := range roles {
		if len(list) == 0 && alwaysRestricted(op) {
			continue
		}
		merged[op] = list
	}

	p := &Policy{roles: make(map[Operation]map[domain.Role]struct{})}
	for _, op := range configurable {
		list := merged[op]
		if len(list) == 0 {
			continue
		}
		set := make(map[domain.Role]struct{}, len(list))
		for _, role := range list {
			set[role] = struct{}{}
		}
		p.roles[op] = set
	}
	return p
}

// CanPerform reports whether an actor holding role may run op. An empty role
// means no authenticated actor and is always refused.
func (p *Policy) CanPerform(op Operation, role domain.Role) bool {
	if role == "" {
		return false
	}
	set, restricted := p.roles[op]
	if !restricted {
		return true
	}
	_, ok := set[role]
	return ok
}

// Roles returns the configured roles for op, nil when unrestricted.
func (p *Policy) Roles(op Operation) []domain.Role {
	set := p.roles[op]
	if len(set) == 0 {
		return nil
	}
	out := make([]domain.Role, 0, len(set))
	for role := range set {
		out = append(out, role)
	}
	return out
}

type fileDocument struct {
	Roles map[string][]string `yaml:"roles"`
}

// FromConfig loads the policy from cfg.File when set, otherwise from the role
// lists in cfg.
func FromConfig(cfg config.PolicyConfig) (*Policy, error) {
	if cfg.File != "" {
		return LoadFile(cfg.File)
	}
	roles := map[Operation][]domain.Role{
		OpEdit:     toRoles(cfg.EditRoles),
		OpAssign:   toRoles(cfg.AssignRoles),
		OpDelete:   toRoles(cfg.DeleteRoles),
		OpEscalate: toRoles(cfg.EscalateRoles),
		OpClose:    toRoles(cfg.CloseRoles),
	}
	if err := checkRoles(roles); err != nil {
		return nil, err
	}
	return New(roles), nil
}

// LoadFile reads a YAML policy document of the form
//
//	roles:
//	  edit: [admin, pod]
//	  delete: [admin]
func LoadFile(path string) (*Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML policy document.
func Parse(raw []byte) (*Policy, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	roles := make(map[Operation][]domain.Role, len(doc.Roles))
	for name, list := range doc.Roles {
		op := Operation(strings.ToLower(strings.TrimSpace(name)))
		if !isConfigurable(op) {
			return nil, fmt.Errorf("policy: operation %q is not configurable", name)
		}
		roles[op] = toRoles(list)
	}
	if err := checkRoles(roles); err != nil {
		return nil, err
	}
	return New(roles), nil
}

// checkRoles rejects unknown roles and an explicitly empty set for an
// operation that must stay restricted.
func checkRoles(roles map[Operation][]domain.Role) error {
	for op, list := range roles {
		if len(list) == 0 && alwaysRestricted(op) {
			return fmt.Errorf("policy: %s needs at least one role", op)
		}
		for _, role := range list {
			if !role.Valid() {
				return fmt.Errorf("policy: unknown role %q for %s", role, op)
			}
		}
	}
	return nil
}

func isConfigurable(op Operation) bool {
	for _, candidate := range configurable {
		if candidate == op {
			return true
		}
	}
	return false
}

func toRoles(values []string) []domain.Role {
	out := make([]domain.Role, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, domain.Role(strings.ToLower(v)))
		}
	}
	return out
}
