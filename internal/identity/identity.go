// Package identity answers "who is the current user" for the operations that
// key data by user. Callers inject a Provider instead of reading global auth
// state.
package identity

import (
	"context"
	"errors"
	"strings"
)

// AnonymousSubject keys data for callers without an authenticated identity.
const AnonymousSubject = "anonymous"

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is an authenticated (or anonymous) user.
type Identity struct {
	Subject   string
	Email     string
	Name      string
	Anonymous bool
}

// Anonymous returns the identity used when nobody is signed in.
func Anonymous() Identity {
	return Identity{Subject: AnonymousSubject, Anonymous: true}
}

// Provider resolves the current user.
type Provider interface {
	CurrentUser(ctx context.Context) (Identity, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Identity, error)

func (f ProviderFunc) CurrentUser(ctx context.Context) (Identity, error) { return f(ctx) }

// Static always returns the same identity.
type Static Identity

func (s Static) CurrentUser(context.Context) (Identity, error) { return Identity(s), nil }

type contextKey struct{}

// WithIdentity stores id on ctx for ContextProvider.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored on ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// ContextProvider reads the identity placed on the context by the HTTP auth
// middleware or the worker. Without one it falls back to anonymous.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (Identity, error) {
	if id, ok := FromContext(ctx); ok && strings.TrimSpace(id.Subject) != "" {
		return id, nil
	}
	return Anonymous(), nil
}

// Subject resolves the storage key for the current user, using the anonymous
// key when the provider reports nobody signed in.
func Subject(ctx context.Context, p Provider) (string, error) {
	id, err := p.CurrentUser(ctx)
	if errors.Is(err, ErrUnauthenticated) {
		return AnonymousSubject, nil
	}
	if err != nil {
		return "", err
	}
	if id.Anonymous || strings.TrimSpace(id.Subject) == "" {
		return AnonymousSubject, nil
	}
	return id.Subject, nil
}
