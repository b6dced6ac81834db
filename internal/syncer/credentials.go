package syncer

import (
	"context"
	"errors"
	"fmt"

	custom_errors "skill-profiler/internal/errors"
	"skill-profiler/internal/model"
)

// CredentialStore reads stored access tokens.
type CredentialStore interface {
	GetCredential(ctx context.Context, studentID, kind string) (string, error)
}

// ResolveToken picks the access token for a student in a fixed order: the
// student's OAuth token, then a stored integration token, then the static
// fallback. The returned source tells callers which one was used. With no
// token anywhere the student must reauthorize.
func ResolveToken(ctx context.Context, creds CredentialStore, studentID, staticToken string) (string, string, error) {
	for _, kind := range []string{model.CredentialSourceOAuth, model.CredentialSourceIntegration} {
		token, err := creds.GetCredential(ctx, studentID, kind)
		if err == nil && token != "" {
			return token, kind, nil
		}
		if err != nil && !errors.Is(err, custom_errors.ErrNotFound) {
			return "", "", fmt.Errorf("resolve %s credential: %w", kind, err)
		}
	}
	if staticToken != "" {
		return staticToken, model.CredentialSourceStatic, nil
	}
	return "", "", custom_errors.ErrReauthRequired
}
