package security

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWithIdentityRoundTrip verifies that an identity attached to a context
// is observable through FromContext.
func TestWithIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Principal: "alice"})

	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "alice", id.Principal)
}

// TestFromContextWithoutIdentity verifies that a bare context carries no
// identity.
func TestFromContextWithoutIdentity(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	// A zero identity attached explicitly is treated as absent too.
	ctx := WithIdentity(context.Background(), Identity{})
	_, ok = FromContext(ctx)
	assert.False(t, ok)
}

// TestRunAsPropagatesIdentity verifies that the unit of work observes the
// caller's identity on its context.
func TestRunAsPropagatesIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{Principal: "bob"})

	seen, err := RunAs(ctx, "probe", func(ctx context.Context) (string, error) {
		id, ok := FromContext(ctx)
		require.True(t, ok)
		return id.Principal, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", seen)
}

// TestRunAsPropagatesFailure verifies that failures from the unit of work
// surface unchanged.
func TestRunAsPropagatesFailure(t *testing.T) {
	wantErr := errors.New("remote failure")

	_, err := RunAs(context.Background(), "probe", func(context.Context) (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

// TestLoginRequiresKeytabAndPrincipal verifies that a login with missing
// configuration is rejected outright rather than attempted.
func TestLoginRequiresKeytabAndPrincipal(t *testing.T) {
	t.Cleanup(resetLogin)

	assert.Error(t, Login(LoginConfig{Principal: "nn@EXAMPLE.COM"}))
	assert.Error(t, Login(LoginConfig{KeytabPath: "/tmp/nn.keytab"}))
	assert.True(t, LoginIdentity().IsZero())
}

// TestLoginFailureDoesNotInstallIdentity verifies that a failed keytab load
// leaves the ambient identity untouched.
func TestLoginFailureDoesNotInstallIdentity(t *testing.T) {
	t.Cleanup(resetLogin)

	err := Login(LoginConfig{
		KeytabPath: "/nonexistent/path.keytab",
		Principal:  "nn/host@EXAMPLE.COM",
	})
	require.Error(t, err)
	assert.True(t, LoginIdentity().IsZero())
	assert.Nil(t, KerberosClient())
}

// TestSplitPrincipal verifies realm extraction from principal names.
func TestSplitPrincipal(t *testing.T) {
	tests := []struct {
		principal string
		username  string
		realm     string
	}{
		{"alice", "alice", ""},
		{"alice@EXAMPLE.COM", "alice", "EXAMPLE.COM"},
		{"nn/namenode.example.com@EXAMPLE.COM", "nn/namenode.example.com", "EXAMPLE.COM"},
	}

	for _, tt := range tests {
		username, realm := splitPrincipal(tt.principal)
		assert.Equal(t, tt.username, username)
		assert.Equal(t, tt.realm, realm)
	}
}
