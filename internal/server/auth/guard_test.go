package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_Exact(t *testing.T) {
	g := NewGuard(ExactMatch())
	user := Principal{Subject: "u1", Role: RoleUser}
	admin := Principal{Subject: "a1", Role: RoleAdmin}

	require.NoError(t, g.Authorize(user, RoleUser))
	require.NoError(t, g.Authorize(admin, RoleAdmin))

	err := g.Authorize(user, RoleAdmin)
	require.ErrorIs(t, err, ErrInsufficientRole)

	err = g.Authorize(admin, RoleUser)
	require.ErrorIs(t, err, ErrInsufficientRole, "exact policy does not infer hierarchy")
}

func TestGuard_Ordered(t *testing.T) {
	g := NewGuard(Ordered(RoleUser, RoleAdmin))
	user := Principal{Subject: "u1", Role: RoleUser}
	admin := Principal{Subject: "a1", Role: RoleAdmin}
	auditor := Principal{Subject: "x1", Role: "auditor"}

	require.NoError(t, g.Authorize(admin, RoleUser))
	require.NoError(t, g.Authorize(admin, RoleAdmin))
	require.NoError(t, g.Authorize(user, RoleUser))
	require.NoError(t, g.Authorize(auditor, "auditor"))

	err := g.Authorize(user, RoleAdmin)
	require.ErrorIs(t, err, ErrInsufficientRole)

	err = g.Authorize(auditor, RoleUser)
	require.ErrorIs(t, err, ErrInsufficientRole, "roles outside the table only match themselves")
}

func TestGuard_ErrorNamesRoles(t *testing.T) {
	g := NewGuard(ExactMatch())
	err := g.Authorize(Principal{Role: RoleUser}, RoleAdmin)

	var ae *Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, RoleAdmin, ae.Required)
	assert.Equal(t, RoleUser, ae.Actual)
	assert.Equal(t, CategoryAuthorization, CategoryOf(err))
	assert.Contains(t, err.Error(), `required "admin"`)
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "exact", ExactMatch().String())
	assert.Equal(t, "ordered(user<admin)", Ordered(RoleUser, RoleAdmin).String())
}
