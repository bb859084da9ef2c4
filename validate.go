package kaybee

import (
	"context"
	"fmt"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// CheckFunc is a single rule's predicate. store is nil when the rule
// runs in structural (pre-write) mode, since structural rules must be
// decidable from (name, attrs) alone (spec.md 4.7).
type CheckFunc func(store *Store, name string, attrs frontmatter.Attrs) []Violation

// Rule is one entry in a Validator's ordered rule list: a type filter
// (empty matches every type), the check itself, and whether it is
// structural (cheap, pre-write) or relational (needs store state,
// deferred to an explicit Validate pass).
type Rule struct {
	Name       string
	TypeFilter string
	Structural bool
	Check      CheckFunc
}

// Validator is an ordered collection of rules acting as the write-path
// gatekeeper and as the basis of a full consistency pass.
type Validator struct {
	rules []Rule
}

// NewValidator returns an empty Validator ready for Add calls.
func NewValidator() *Validator { return &Validator{} }

// Add appends r and returns the Validator for chaining.
func (v *Validator) Add(r Rule) *Validator {
	v.rules = append(v.rules, r)

	return v
}

func (r Rule) matches(typ string) bool {
	return r.TypeFilter == "" || r.TypeFilter == typ
}

// runStructural runs only the structural rules matching typ, used by
// the node engine's write-path gatekeeper. A non-empty result means
// the write must be aborted atomically.
func (v *Validator) runStructural(typ, name string, attrs frontmatter.Attrs) []Violation {
	var out []Violation

	for _, r := range v.rules {
		if !r.Structural || !r.matches(typ) {
			continue
		}

		out = append(out, r.Check(nil, name, attrs)...)
	}

	return out
}

// Validate runs every rule (structural and relational) against every
// node currently in store, returning all violations found. This
// resolves spec.md's open question about whether a full pass re-checks
// structural rules: it does, so a full Validate reflects the same
// ruleset a write-time gatekeeper would have enforced, not just the
// relational subset.
func (v *Validator) Validate(ctx context.Context, s *Store) ([]Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil, wrap(ErrClosed, withOp("Validate"))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM nodes`)
	if err != nil {
		return nil, wrap(err, withOp("Validate"))
	}

	type nt struct{ name, typ string }

	var nodes []nt

	for rows.Next() {
		var n nt
		if err := rows.Scan(&n.name, &n.typ); err != nil {
			rows.Close()

			return nil, wrap(err, withOp("Validate"))
		}

		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		rows.Close()

		return nil, wrap(err, withOp("Validate"))
	}

	rows.Close()

	var violations []Violation

	for _, n := range nodes {
		_, attrs, found, err := s.backend.readRow(ctx, s.db, n.typ, n.name)
		if err != nil {
			return nil, wrap(err, withOp("Validate"), withName(n.name))
		}

		if !found {
			continue
		}

		for _, r := range v.rules {
			if !r.matches(n.typ) {
				continue
			}

			violations = append(violations, r.Check(s, n.name, attrs)...)
		}
	}

	return violations, nil
}

// Check runs Validate and returns a *ValidationError if any violation
// was found.
func (v *Validator) Check(ctx context.Context, s *Store) error {
	violations, err := v.Validate(ctx, s)
	if err != nil {
		return err
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}

	return nil
}

// RequiresField builds a structural rule requiring attrs[key] to be
// present with a truthy value (non-empty scalar, non-empty list/map).
func RequiresField(typ, key string) Rule {
	return Rule{
		Name:       fmt.Sprintf("requires_field(%s,%s)", typ, key),
		TypeFilter: typ,
		Structural: true,
		Check: func(_ *Store, name string, attrs frontmatter.Attrs) []Violation {
			v, ok := attrs.Get(key)
			if !ok || !truthy(v) {
				return []Violation{{Node: name, Rule: "requires_field", Message: fmt.Sprintf("missing required field %q", key)}}
			}

			return nil
		},
	}
}

// RequiresTag builds a structural rule requiring attrs["tags"] to be a
// non-empty list.
func RequiresTag(typ string) Rule {
	return Rule{
		Name:       fmt.Sprintf("requires_tag(%s)", typ),
		TypeFilter: typ,
		Structural: true,
		Check: func(_ *Store, name string, attrs frontmatter.Attrs) []Violation {
			v, ok := attrs.Get("tags")
			if !ok || v.Kind != frontmatter.List || len(v.List) == 0 {
				return []Violation{{Node: name, Rule: "requires_tag", Message: "missing non-empty tags list"}}
			}

			return nil
		},
	}
}

// FreezeSchema builds a structural rule rejecting any attrs key
// outside allowed.
func FreezeSchema(typ string, allowed []string) Rule {
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}

	return Rule{
		Name:       fmt.Sprintf("freeze_schema(%s)", typ),
		TypeFilter: typ,
		Structural: true,
		Check: func(_ *Store, name string, attrs frontmatter.Attrs) []Violation {
			var out []Violation

			for _, key := range attrs.Keys() {
				if !allowedSet[key] {
					out = append(out, Violation{Node: name, Rule: "freeze_schema", Message: fmt.Sprintf("key %q not in allowed schema", key)})
				}
			}

			return out
		},
	}
}

// RequiresLink builds a relational rule requiring at least one
// outgoing link from the node, optionally to a node of targetType.
func RequiresLink(typ, targetType string) Rule {
	return Rule{
		Name:       fmt.Sprintf("requires_link(%s,%s)", typ, targetType),
		TypeFilter: typ,
		Structural: false,
		Check: func(s *Store, name string, _ frontmatter.Attrs) []Violation {
			if s == nil {
				return nil
			}

			var query string

			args := []any{name}
			if targetType == "" {
				query = `SELECT COUNT(*) FROM _links l JOIN nodes n ON n.name = l.target_resolved WHERE l.source = ?`
			} else {
				query = `SELECT COUNT(*) FROM _links l JOIN nodes n ON n.name = l.target_resolved WHERE l.source = ? AND n.type = ?`
				args = append(args, targetType)
			}

			var count int
			if err := s.db.QueryRow(query, args...).Scan(&count); err != nil || count == 0 {
				msg := "no outgoing link"
				if targetType != "" {
					msg = fmt.Sprintf("no outgoing link to type %q", targetType)
				}

				return []Violation{{Node: name, Rule: "requires_link", Message: msg}}
			}

			return nil
		},
	}
}

// NoOrphans builds a relational rule requiring at least one incoming
// or outgoing resolved link. An empty typ matches every type.
func NoOrphans(typ string) Rule {
	return Rule{
		Name:       fmt.Sprintf("no_orphans(%s)", typ),
		TypeFilter: typ,
		Structural: false,
		Check: func(s *Store, name string, _ frontmatter.Attrs) []Violation {
			if s == nil {
				return nil
			}

			var count int

			err := s.db.QueryRow(
				`SELECT COUNT(*) FROM _links WHERE source = ? OR target_resolved = ?`, name, name).Scan(&count)
			if err != nil || count == 0 {
				return []Violation{{Node: name, Rule: "no_orphans", Message: "node has no incoming or outgoing links"}}
			}

			return nil
		},
	}
}

// Custom wraps a user-supplied predicate as a named rule.
func Custom(typ, name string, fn CheckFunc, structural bool) Rule {
	return Rule{Name: name, TypeFilter: typ, Structural: structural, Check: fn}
}

func truthy(v frontmatter.Value) bool {
	switch v.Kind {
	case frontmatter.List:
		return len(v.List) > 0
	case frontmatter.Map:
		return len(v.Map) > 0
	default:
		return v.Scalar != ""
	}
}
