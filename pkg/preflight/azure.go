package preflight

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

type azureChecker struct {
	cfg config.DeploymentConfig
}

func (c *azureChecker) Verify(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return "", errors.AuthError("azure", "not authenticated: no credential source available (run `az login`)", err)
	}

	subscriptionID := c.cfg.Location().Account
	client, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return "", errors.AuthError("azure", "failed to build subscription client", err)
	}

	sub, err := client.Get(ctx, subscriptionID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if stderrors.As(err, &respErr) {
			switch respErr.StatusCode {
			case 401:
				return "", errors.AuthError("azure", "not authenticated: credentials rejected", err)
			case 403, 404:
				return "", errors.CapabilityError("azure", []string{fmt.Sprintf("access to subscription %s", subscriptionID)})
			}
		}
		return "", errors.AuthError("azure", fmt.Sprintf("failed to verify access to subscription %s", subscriptionID), err)
	}

	name := subscriptionID
	if sub.DisplayName != nil {
		name = *sub.DisplayName
	}
	return fmt.Sprintf("Subscription: %s (%s)", name, subscriptionID), nil
}

func (c *azureChecker) RequiredCapabilities() []Capability {
	return []Capability{
		Capability("subscription " + c.cfg.Location().Account),
		"Microsoft.ContainerService",
		"Microsoft.Network",
		"Microsoft.DBforPostgreSQL",
		"Microsoft.KeyVault",
	}
}

// MissingCapabilities relies on Verify's subscription probe; resource
// provider registration failures surface at plan time with an actionable
// message from the tool itself.
func (c *azureChecker) MissingCapabilities(ctx context.Context) ([]Capability, error) {
	return nil, nil
}

var _ CredentialChecker = (*azureChecker)(nil)
