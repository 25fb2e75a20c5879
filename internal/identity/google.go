package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// GoogleVerifier validates Google access tokens against the tokeninfo endpoint.
type GoogleVerifier struct {
	svc      *goauth2.Service
	audience string
}

// NewGoogleVerifier builds a verifier. When audience is set, tokens issued to
// another client are rejected.
func NewGoogleVerifier(ctx context.Context, audience string, opts ...option.ClientOption) (*GoogleVerifier, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithHTTPClient(http.DefaultClient)}
	}
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create oauth2 service: %w", err)
	}
	return &GoogleVerifier{svc: svc, audience: audience}, nil
}

func (v *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	info, err := v.svc.Tokeninfo().AccessToken(token).Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("validate token: %w", err)
	}
	if info.UserId == "" {
		return Identity{}, errors.New("validate token: missing user id")
	}
	if info.Email != "" && !info.VerifiedEmail {
		return Identity{}, errors.New("validate token: email not verified")
	}
	if v.audience != "" && info.Audience != v.audience {
		return Identity{}, fmt.Errorf("validate token: unexpected audience %q", info.Audience)
	}

	return Identity{Subject: info.UserId, Email: info.Email}, nil
}
