package config

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// AWSConfig describes an n8n deployment on EKS.
type AWSConfig struct {
	CloudProvider Provider `yaml:"cloud_provider" json:"cloud_provider" validate:"required,eq=aws"`

	AWSProfile string `yaml:"aws_profile" json:"aws_profile" validate:"required"`
	AWSRegion  string `yaml:"aws_region" json:"aws_region" validate:"required"`

	ClusterName    string `yaml:"cluster_name" json:"cluster_name" validate:"required"`
	ClusterVersion string `yaml:"cluster_version" json:"cluster_version"`

	NodeInstanceTypes []string `yaml:"node_instance_types" json:"node_instance_types" validate:"min=1"`
	NodeDesiredSize   int      `yaml:"node_desired_size" json:"node_desired_size" validate:"min=1,gtefield=NodeMinSize,ltefield=NodeMaxSize"`
	NodeMinSize       int      `yaml:"node_min_size" json:"node_min_size" validate:"min=1"`
	NodeMaxSize       int      `yaml:"node_max_size" json:"node_max_size" validate:"gtefield=NodeMinSize"`

	RDSInstanceClass    string `yaml:"rds_instance_class" json:"rds_instance_class"`
	RDSAllocatedStorage int    `yaml:"rds_allocated_storage" json:"rds_allocated_storage" validate:"omitempty,min=20"`
	RDSMultiAZ          bool   `yaml:"rds_multi_az" json:"rds_multi_az"`

	EnableNginxIngress bool `yaml:"enable_nginx_ingress" json:"enable_nginx_ingress"`

	AppOptions      `yaml:",inline"`
	SecurityOptions `yaml:",inline"`
}

// NewAWSConfig returns an AWS config with the stack defaults applied.
// Region, profile, and host still have to come from the operator.
func NewAWSConfig() *AWSConfig {
	return &AWSConfig{
		CloudProvider:     ProviderAWS,
		AWSProfile:        "default",
		ClusterName:       "n8n-eks-cluster",
		ClusterVersion:    "1.31",
		NodeInstanceTypes: []string{"t3.medium"},
		NodeDesiredSize:   2,
		NodeMinSize:       1,
		NodeMaxSize:       5,
		RDSInstanceClass:  "db.t3.micro",
		RDSAllocatedStorage: 20,
		EnableNginxIngress: true,
		AppOptions: AppOptions{
			Namespace:       "n8n",
			PersistenceSize: "10Gi",
			Timezone:        "America/Bahia",
			Database:        DatabaseEmbedded,
		},
		SecurityOptions: SecurityOptions{
			CertificateSource:      CertificateNone,
			LetsEncryptEnvironment: "production",
			BasicAuthUsername:      "admin",
		},
	}
}

func (c *AWSConfig) Provider() Provider {
	return ProviderAWS
}

func (c *AWSConfig) Location() Location {
	return Location{
		Account: c.AWSProfile,
		Region:  c.AWSRegion,
	}
}

func (c *AWSConfig) Cluster() ClusterSettings {
	machineType := ""
	if len(c.NodeInstanceTypes) > 0 {
		machineType = c.NodeInstanceTypes[0]
	}
	return ClusterSettings{
		Name:        c.ClusterName,
		Version:     c.ClusterVersion,
		MachineType: machineType,
		MinNodes:    c.NodeMinSize,
		MaxNodes:    c.NodeMaxSize,
	}
}

func (c *AWSConfig) Validate() error {
	if err := runValidation(c); err != nil {
		return err
	}
	if c.Database == DatabaseManaged && c.RDSInstanceClass == "" {
		return errors.ValidationError(
			"rds_instance_class is required when database_type is managed",
			map[string]interface{}{"field": "rds_instance_class"},
		)
	}
	return c.validateHardening()
}

// Variables projects onto the EKS stack's variable names. The portable
// database type becomes sqlite/postgresql here.
func (c *AWSConfig) Variables() map[string]cty.Value {
	instanceTypes := cty.ListValEmpty(cty.String)
	if len(c.NodeInstanceTypes) > 0 {
		vals := make([]cty.Value, 0, len(c.NodeInstanceTypes))
		for _, t := range c.NodeInstanceTypes {
			vals = append(vals, strVal(t))
		}
		instanceTypes = cty.ListVal(vals)
	}
	return map[string]cty.Value{
		"aws_profile":           strVal(c.AWSProfile),
		"region":                strVal(c.AWSRegion),
		"cluster_name":          strVal(c.ClusterName),
		"cluster_version":       strVal(c.ClusterVersion),
		"node_instance_types":   instanceTypes,
		"node_desired_size":     intVal(c.NodeDesiredSize),
		"node_min_size":         intVal(c.NodeMinSize),
		"node_max_size":         intVal(c.NodeMaxSize),
		"n8n_host":              strVal(c.Host),
		"n8n_namespace":         strVal(c.Namespace),
		"n8n_persistence_size":  strVal(c.PersistenceSize),
		"timezone":              strVal(c.Timezone),
		"n8n_encryption_key":    strVal(c.EncryptionKey.Reveal()),
		"database_type":         strVal(awsDatabaseType(c.Database)),
		"rds_instance_class":    strVal(c.RDSInstanceClass),
		"rds_allocated_storage": intVal(c.RDSAllocatedStorage),
		"rds_multi_az":          boolVal(c.RDSMultiAZ),
		"enable_nginx_ingress":  boolVal(c.EnableNginxIngress),
		"enable_basic_auth":     boolVal(c.EnableBasicAuth),
	}
}

func awsDatabaseType(t DatabaseType) string {
	if t == DatabaseManaged {
		return "postgresql"
	}
	return "sqlite"
}

var _ DeploymentConfig = (*AWSConfig)(nil)
