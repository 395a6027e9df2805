package ads

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenSource loads refreshable credentials for the reporting API. The file may
// hold an authorized_user (refresh token) or service_account key; an empty
// path falls back to Application Default Credentials.
func TokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	path := strings.TrimSpace(credentialsFile)
	if path == "" {
		creds, err := google.FindDefaultCredentials(ctx, Scope)
		if err != nil {
			return nil, fmt.Errorf("find default ads credentials: %w", err)
		}
		return creds.TokenSource, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ads credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, raw, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse ads credentials %s: %w", path, err)
	}
	return creds.TokenSource, nil
}
