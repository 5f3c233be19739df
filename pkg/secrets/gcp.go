package secrets

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"path"
	"strings"

	"google.golang.org/api/googleapi"
	secretmanager "google.golang.org/api/secretmanager/v1"
)

type gcpStore struct {
	service *secretmanager.Service
	project string
}

func newGCPStore(ctx context.Context, project string) (*gcpStore, error) {
	if project == "" {
		return nil, fmt.Errorf("gcp secret store requires a project id")
	}
	service, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	return &gcpStore{service: service, project: project}, nil
}

func (s *gcpStore) Provider() string {
	return "gcp"
}

// Put ensures the secret container exists, then adds the value as a new
// version. Secret Manager has no in-place update, so upsert is
// create-if-missing plus add-version.
func (s *gcpStore) Put(ctx context.Context, name, value string) error {
	secret := &secretmanager.Secret{
		Replication: &secretmanager.Replication{
			Automatic: &secretmanager.Automatic{},
		},
	}
	_, err := s.service.Projects.Secrets.Create(s.parent(), secret).
		SecretId(name).Context(ctx).Do()
	if err != nil && !isGoogleAPIStatus(err, 409) {
		return fmt.Errorf("failed to create secret %q: %w", name, err)
	}

	payload := &secretmanager.AddSecretVersionRequest{
		Payload: &secretmanager.SecretPayload{
			Data: base64.StdEncoding.EncodeToString([]byte(value)),
		},
	}
	_, err = s.service.Projects.Secrets.AddVersion(s.secretName(name), payload).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write secret %q: %w", name, err)
	}
	return nil
}

func (s *gcpStore) Get(ctx context.Context, name string) (string, error) {
	version := s.secretName(name) + "/versions/latest"
	resp, err := s.service.Projects.Secrets.Versions.Access(version).
		Context(ctx).Do()
	if err != nil {
		if isGoogleAPIStatus(err, 404) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret %q: %w", name, err)
	}
	return string(data), nil
}

func (s *gcpStore) Delete(ctx context.Context, name string) error {
	_, err := s.service.Projects.Secrets.Delete(s.secretName(name)).
		Context(ctx).Do()
	if err != nil {
		if isGoogleAPIStatus(err, 404) {
			return nil
		}
		return fmt.Errorf("failed to delete secret %q: %w", name, err)
	}
	return nil
}

// List filters client-side on the short name: the API's filter syntax
// matches full resource names, which would force callers to know the
// project path.
func (s *gcpStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.service.Projects.Secrets.List(s.parent()).Pages(ctx,
		func(resp *secretmanager.ListSecretsResponse) error {
			for _, secret := range resp.Secrets {
				short := path.Base(secret.Name)
				if strings.HasPrefix(short, prefix) {
					names = append(names, short)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	return names, nil
}

func (s *gcpStore) parent() string {
	return "projects/" + s.project
}

func (s *gcpStore) secretName(name string) string {
	return s.parent() + "/secrets/" + name
}

func isGoogleAPIStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return stderrors.As(err, &apiErr) && apiErr.Code == code
}

var _ Store = (*gcpStore)(nil)
