// Package identity resolves the principal attached to a connection.
//
// A principal is either authenticated (a user id and username) or anonymous.
// The transport resolves it once during the handshake and it does not change
// for the lifetime of the connection.
package identity

import (
	"net/http"
	"strconv"
)

// Principal identifies the user behind a connection. The zero value is the
// anonymous principal.
type Principal struct {
	ID       int64
	Username string
}

// Anonymous is the principal of connections without valid credentials.
var Anonymous = Principal{}

// Authenticated reports whether p names a real user.
func (p Principal) Authenticated() bool {
	return p.ID > 0
}

func (p Principal) String() string {
	if !p.Authenticated() {
		return "anonymous"
	}
	return p.Username + "#" + strconv.FormatInt(p.ID, 10)
}

// Resolver yields the principal for an incoming handshake request.
type Resolver interface {
	Resolve(r *http.Request) Principal
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(r *http.Request) Principal

func (f ResolverFunc) Resolve(r *http.Request) Principal { return f(r) }

// Static always resolves to p. Used by tests and single-user setups.
func Static(p Principal) Resolver {
	return ResolverFunc(func(*http.Request) Principal { return p })
}
