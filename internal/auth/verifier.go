package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"capstan/internal/github"
)

// Verifier resolves the identity behind a bearer credential and enforces the
// single-account allowlist.
type Verifier struct {
	client       github.Client
	allowedLogin string
}

// NewVerifier builds a Verifier for the configured allowlisted login.
func NewVerifier(client github.Client, allowedLogin string) *Verifier {
	return &Verifier{client: client, allowedLogin: strings.TrimSpace(allowedLogin)}
}

// Verify resolves the credential's identity. Outcomes:
//   - rejected credential: ErrCredentialInvalid
//   - identity outside the allowlist: DeniedError carrying the observed login
//   - transport failure: ErrVerificationUnavailable
//
// In every failure case the caller must discard the credential.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	user, err := v.client.FetchUser(ctx, token)
	if err != nil {
		if errors.Is(err, github.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	if !strings.EqualFold(user.Login, v.allowedLogin) {
		return nil, &DeniedError{Login: user.Login}
	}

	return &Identity{
		Login:       user.Login,
		DisplayName: user.Name,
		AvatarURL:   user.AvatarURL,
		ProfileURL:  user.HTMLURL,
	}, nil
}
