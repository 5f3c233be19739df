package secrets

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

type azureStore struct {
	client   *azsecrets.Client
	vaultURI string
}

func newAzureStore(vaultURI string) (*azureStore, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load azure credentials: %w", err)
	}
	client, err := azsecrets.NewClient(vaultURI, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create key vault client for %q: %w", vaultURI, err)
	}
	return &azureStore{client: client, vaultURI: vaultURI}, nil
}

func (s *azureStore) Provider() string {
	return "azure"
}

// Put relies on Key Vault's native upsert: setting an existing name adds
// a new version.
func (s *azureStore) Put(ctx context.Context, name, value string) error {
	params := azsecrets.SetSecretParameters{Value: &value}
	if _, err := s.client.SetSecret(ctx, name, params, nil); err != nil {
		return fmt.Errorf("failed to write secret %q: %w", name, err)
	}
	return nil
}

func (s *azureStore) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		if isAzureStatus(err, http.StatusNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read secret %q: %w", name, err)
	}
	if resp.Value == nil {
		return "", nil
	}
	return *resp.Value, nil
}

func (s *azureStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteSecret(ctx, name, nil)
	if err != nil {
		if isAzureStatus(err, http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete secret %q: %w", name, err)
	}
	return nil
}

func (s *azureStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	pager := s.client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list secrets: %w", err)
		}
		for _, item := range page.Value {
			if item.ID == nil {
				continue
			}
			name := item.ID.Name()
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func isAzureStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return stderrors.As(err, &respErr) && respErr.StatusCode == code
}

var _ Store = (*azureStore)(nil)
