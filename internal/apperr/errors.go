package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized: the role may not send, or no requested recipient is authorized.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrScopeEmpty: the role may send but currently has no scope assignment.
	ErrScopeEmpty = errors.New("scope empty")
	// ErrInvariantViolation: the write guard rejected a mutation.
	ErrInvariantViolation = errors.New("invariant violation")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
)

// Violation describes one guard rejection. errors.Is(v, ErrInvariantViolation) is true.
type Violation struct {
	Rule   string
	Entity string
	Reason string
}

// Guard rule names.
const (
	RuleTenantIsolation     = "tenant_isolation"
	RuleLifecycle           = "lifecycle"
	RulePrivilegeEscalation = "privilege_escalation"
	RuleStructure           = "structure"
)

func (v *Violation) Error() string {
	return fmt.Sprintf("invariant violation: %s on %s: %s", v.Rule, v.Entity, v.Reason)
}

func (v *Violation) Unwrap() error {
	return ErrInvariantViolation
}

// Violate returns a *Violation.
func Violate(rule, entity, reason string) error {
	return &Violation{Rule: rule, Entity: entity, Reason: reason}
}

// Unauthorized wraps ErrUnauthorized with a reason.
func Unauthorized(reason string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, reason)
}

// Invalid wraps ErrInvalidInput with a reason.
func Invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}
