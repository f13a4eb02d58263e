// Package session holds the authenticated session shared between the request
// client and the realtime connection manager. The hosting application owns
// the Store; the core components only read the credential from it.
package session

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Principal identifies the authenticated user.
type Principal struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Credential is an opaque bearer token plus the principal it belongs to.
// It is created by a successful login, replaced on refresh, and cleared on
// sign-out or unrecoverable authentication failure.
type Credential struct {
	Token     string
	Principal Principal
}

// Store is a mutex-guarded holder for the current credential.
//
// Watchers registered with Watch are invoked with the new bearer token
// (empty string on clear) every time the credential changes, in registration
// order. This is how the hosting application wires credential rotation into
// the connection manager without the two components referencing each other.
type Store struct {
	mu       sync.RWMutex
	cred     Credential
	present  bool
	watchers []func(token string)
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the current credential and notifies watchers.
func (s *Store) Set(cred Credential) {
	s.mu.Lock()
	s.cred = cred
	s.present = true
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		w(cred.Token)
	}
}

// Clear removes the current credential and notifies watchers with an empty token.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cred = Credential{}
	s.present = false
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()

	for _, w := range watchers {
		w("")
	}
}

// Get returns the current credential and whether one is present.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred, s.present
}

// Token returns the current bearer token, or an empty string if signed out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return ""
	}
	return s.cred.Token
}

// Watch registers a function invoked on every credential change.
// Watchers are called synchronously from Set/Clear, in registration order.
func (s *Store) Watch(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// PrincipalFromToken extracts the principal from the bearer token's JWT
// claims without verifying the signature. The client has no access to the
// signing secret; verification is the server's job. A token that does not
// parse as a JWT yields an empty principal, not an error.
func PrincipalFromToken(raw string) Principal {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return Principal{}
	}

	var p Principal
	if sub, err := claims.GetSubject(); err == nil {
		p.Email = sub
	}
	if role, ok := claims["role"].(string); ok {
		p.Role = role
	}
	return p
}
