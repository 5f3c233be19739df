package preflight

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

type awsChecker struct {
	cfg config.DeploymentConfig
}

func (c *awsChecker) Verify(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	loc := c.cfg.Location()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(loc.Region),
		awsconfig.WithSharedConfigProfile(loc.Account),
	)
	if err != nil {
		return "", errors.AuthError("aws", fmt.Sprintf("failed to load credentials for profile %q", loc.Account), err)
	}

	out, err := sts.NewFromConfig(awsCfg).GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.AuthError("aws", fmt.Sprintf("not authenticated: profile %q failed identity verification", loc.Account), err)
	}
	return fmt.Sprintf("Account: %s, Identity: %s", aws.ToString(out.Account), aws.ToString(out.Arn)), nil
}

func (c *awsChecker) RequiredCapabilities() []Capability {
	return []Capability{
		"eks",
		"ec2",
		"rds",
		"elasticloadbalancing",
		"iam",
		"secretsmanager",
	}
}

// MissingCapabilities reports nothing beyond identity on AWS: IAM
// entitlements only surface when the plan touches each service, so the
// plan itself is the capability probe.
func (c *awsChecker) MissingCapabilities(ctx context.Context) ([]Capability, error) {
	return nil, nil
}

var _ CredentialChecker = (*awsChecker)(nil)
