package kaybee

import (
	"context"
	"errors"
	"testing"
)

func TestStructuralRuleBlocksWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UseValidator(NewValidator().Add(RequiresField("task", "owner")))

	err := s.Write(ctx, "t1", "---\ntype: task\n---\nno owner here\n")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}

	exists, existsErr := s.Exists(ctx, "t1")
	if existsErr != nil {
		t.Fatalf("Exists: %v", existsErr)
	}

	if exists {
		t.Fatalf("rejected write must not create the node")
	}
}

func TestStructuralRuleAllowsPassingWrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UseValidator(NewValidator().Add(RequiresField("task", "owner")))

	if err := s.Write(ctx, "t1", "---\ntype: task\nowner: alice\n---\nbody\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestStructuralRuleScopedByType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UseValidator(NewValidator().Add(RequiresField("task", "owner")))

	if err := s.Write(ctx, "note1", "---\ntype: note\n---\nno owner needed\n"); err != nil {
		t.Fatalf("write to unrelated type should pass: %v", err)
	}
}

func TestFreezeSchemaRejectsUnknownKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.UseValidator(NewValidator().Add(FreezeSchema("task", []string{"owner"})))

	err := s.Write(ctx, "t1", "---\ntype: task\nowner: alice\nextra: not-allowed\n---\nbody\n")
	if !errors.As(err, new(*ValidationError)) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestRequiresLinkRelationalRule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := NewValidator().Add(RequiresLink("task", ""))

	if err := s.Write(ctx, "t1", "---\ntype: task\n---\nno links at all\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	violations, err := v.Validate(ctx, s)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %v", violations)
	}

	if err := s.Write(ctx, "dep", "dependency"); err != nil {
		t.Fatalf("Write dep: %v", err)
	}

	if err := s.Write(ctx, "t1", "---\ntype: task\n---\nsee [[dep]]\n"); err != nil {
		t.Fatalf("Write t1 with link: %v", err)
	}

	violations, err = v.Validate(ctx, s)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(violations) != 0 {
		t.Fatalf("expected no violations once linked, got %v", violations)
	}
}

func TestNoOrphansRelationalRule(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	v := NewValidator().Add(NoOrphans(""))

	if err := s.Write(ctx, "lonely", "nothing links here"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	violations, err := v.Validate(ctx, s)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	found := false

	for _, vi := range violations {
		if vi.Node == "lonely" {
			found = true
		}
	}

	if !found {
		t.Fatalf("expected a no_orphans violation for lonely, got %v", violations)
	}
}

func TestValidateRechecksStructuralRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Write before attaching a validator so the structural rule never
	// runs at write time; a full Validate pass must still catch it.
	if err := s.Write(ctx, "t1", "---\ntype: task\n---\nno owner\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v := NewValidator().Add(RequiresField("task", "owner"))

	violations, err := v.Validate(ctx, s)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if len(violations) != 1 {
		t.Fatalf("expected Validate to re-run structural rules, got %v", violations)
	}
}

func TestCheckReturnsValidationErrorOnFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Write(ctx, "t1", "---\ntype: task\n---\nno owner\n"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	v := NewValidator().Add(RequiresField("task", "owner"))

	err := v.Check(ctx, s)
	if !errors.As(err, new(*ValidationError)) {
		t.Fatalf("expected *ValidationError from Check, got %v", err)
	}
}
