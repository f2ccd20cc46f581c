// Package secrets resolves credentials from the environment or Secret Manager.
package secrets

import (
	"context"
	"encoding/base64"
	"fmt"

	secretmanager "google.golang.org/api/secretmanager/v1"
)

// Accessor reads the latest version of a named secret
type Accessor interface {
	Access(ctx context.Context, projectID, secretID string) (string, error)
}

// Resolve returns value when it is set and otherwise reads secretID through the accessor
func Resolve(ctx context.Context, a Accessor, value, projectID, secretID string) (string, error) {
	if value != "" {
		return value, nil
	}
	if a == nil || projectID == "" || secretID == "" {
		return "", fmt.Errorf("secret %q unavailable: no value and no secret manager configured", secretID)
	}
	return a.Access(ctx, projectID, secretID)
}

type SecretManager struct {
	svc *secretmanager.Service
}

func NewSecretManager(ctx context.Context) (*SecretManager, error) {
	svc, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManager{svc: svc}, nil
}

func (m *SecretManager) Access(ctx context.Context, projectID, secretID string) (string, error) {
	name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", projectID, secretID)
	resp, err := m.svc.Projects.Secrets.Versions.Access(name).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", secretID, err)
	}
	if resp.Payload == nil {
		return "", fmt.Errorf("secret %s has no payload", secretID)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("decode secret %s: %w", secretID, err)
	}
	return string(data), nil
}
