package preflight

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/cloudresourcemanager/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/serviceusage/v1"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

// gcpRequiredAPIs must be enabled on the target project before the GKE
// stack can provision.
var gcpRequiredAPIs = []Capability{
	"compute.googleapis.com",
	"container.googleapis.com",
	"cloudresourcemanager.googleapis.com",
	"iam.googleapis.com",
	"iamcredentials.googleapis.com",
	"secretmanager.googleapis.com",
	"sqladmin.googleapis.com",
	"servicenetworking.googleapis.com",
	"logging.googleapis.com",
	"monitoring.googleapis.com",
}

type gcpChecker struct {
	cfg config.DeploymentConfig
}

func (c *gcpChecker) Verify(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	project := c.cfg.Location().Account
	svc, err := cloudresourcemanager.NewService(ctx)
	if err != nil {
		return "", errors.AuthError("gcp", "not authenticated: no application default credentials found (run `gcloud auth application-default login`)", err)
	}

	proj, err := svc.Projects.Get(project).Context(ctx).Do()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok {
			switch gerr.Code {
			case 401:
				return "", errors.AuthError("gcp", "not authenticated: credentials rejected", err)
			case 403, 404:
				return "", errors.CapabilityError("gcp", []string{fmt.Sprintf("access to project %s", project)})
			}
		}
		return "", errors.AuthError("gcp", fmt.Sprintf("failed to verify access to project %s", project), err)
	}
	return fmt.Sprintf("Project: %s (%s)", proj.Name, proj.ProjectId), nil
}

func (c *gcpChecker) RequiredCapabilities() []Capability {
	return append([]Capability{}, gcpRequiredAPIs...)
}

// MissingCapabilities diffs the required APIs against the project's
// enabled services.
func (c *gcpChecker) MissingCapabilities(ctx context.Context) ([]Capability, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	project := c.cfg.Location().Account
	svc, err := serviceusage.NewService(ctx)
	if err != nil {
		return nil, errors.AuthError("gcp", "failed to build serviceusage client", err)
	}

	enabled := make(map[string]bool)
	call := svc.Services.List("projects/" + project).Filter("state:ENABLED").PageSize(200)
	err = call.Pages(ctx, func(resp *serviceusage.ListServicesResponse) error {
		for _, s := range resp.Services {
			name := s.Name
			if idx := strings.LastIndex(name, "/"); idx >= 0 {
				name = name[idx+1:]
			}
			enabled[name] = true
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAuth, fmt.Sprintf("failed to list enabled APIs on project %s", project), err)
	}

	var missing []Capability
	for _, api := range gcpRequiredAPIs {
		if !enabled[string(api)] {
			missing = append(missing, api)
		}
	}
	return missing, nil
}

var _ CredentialChecker = (*gcpChecker)(nil)
