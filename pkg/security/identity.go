// Package security provides the secure-execution discipline for remote
// storage calls: an explicit Identity value threaded through context, a
// runner that executes a unit of work under that identity, and a
// process-wide Kerberos keytab login for the master/worker roles.
package security

import (
	"context"
	"os/user"
)

// Identity is the principal a unit of work runs under.
//
// For path operations this is the calling context's identity (impersonation
// semantics). For the connect-time hooks it is the statically logged-in
// master or worker principal.
type Identity struct {
	// Principal is the Kerberos-style principal name, e.g. "alice" or
	// "nn/namenode.example.com@EXAMPLE.COM". For non-secured clusters this
	// is a plain username.
	Principal string
}

// IsZero reports whether the identity carries no principal.
func (id Identity) IsZero() bool {
	return id.Principal == ""
}

type identityKey struct{}

// WithIdentity returns a context carrying the given identity. Operations
// executed through RunAs under the returned context run as that principal.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached to the context, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && !id.IsZero()
}

// CurrentIdentity resolves the identity for a calling context.
//
// Resolution order:
//  1. identity explicitly attached with WithIdentity
//  2. the process-wide login identity installed by Login
//  3. the operating-system user running the process
func CurrentIdentity(ctx context.Context) Identity {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	if id := LoginIdentity(); !id.IsZero() {
		return id
	}
	if u, err := user.Current(); err == nil {
		return Identity{Principal: u.Username}
	}
	return Identity{}
}
