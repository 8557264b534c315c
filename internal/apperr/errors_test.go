package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestViolationUnwrapsToSentinel(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("create activist: %w", Violate(RuleTenantIsolation, "activist", "city mismatch"))

	require.True(t, errors.Is(err, ErrInvariantViolation))
	require.False(t, errors.Is(err, ErrUnauthorized))

	var v *Violation
	require.True(t, errors.As(err, &v))
	require.Equal(t, RuleTenantIsolation, v.Rule)
	require.Contains(t, err.Error(), "city mismatch")
}

func TestReasonHelpers(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, Unauthorized("role may not send"), ErrUnauthorized)
	require.ErrorIs(t, Invalid("title is required"), ErrInvalidInput)
}
