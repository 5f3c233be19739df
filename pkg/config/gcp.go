package config

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// GCPConfig describes an n8n deployment on GKE.
type GCPConfig struct {
	CloudProvider Provider `yaml:"cloud_provider" json:"cloud_provider" validate:"required,eq=gcp"`

	ProjectID string `yaml:"gcp_project_id" json:"gcp_project_id" validate:"required"`
	GCPRegion string `yaml:"gcp_region" json:"gcp_region" validate:"required"`
	GCPZone   string `yaml:"gcp_zone" json:"gcp_zone" validate:"required"`

	ClusterName     string `yaml:"cluster_name" json:"cluster_name" validate:"required"`
	NodeMachineType string `yaml:"node_machine_type" json:"node_machine_type" validate:"required"`
	NodeCount       int    `yaml:"node_count" json:"node_count" validate:"min=1"`

	VPCName    string `yaml:"vpc_name" json:"vpc_name" validate:"required"`
	SubnetName string `yaml:"subnet_name" json:"subnet_name" validate:"required"`

	CloudSQLInstanceName string `yaml:"cloudsql_instance_name" json:"cloudsql_instance_name"`
	CloudSQLTier         string `yaml:"cloudsql_tier" json:"cloudsql_tier"`

	AppOptions      `yaml:",inline"`
	SecurityOptions `yaml:",inline"`
}

// NewGCPConfig returns a GCP config with the stack defaults applied.
func NewGCPConfig() *GCPConfig {
	return &GCPConfig{
		CloudProvider:   ProviderGCP,
		GCPRegion:       "us-central1",
		GCPZone:         "us-central1-a",
		ClusterName:     "n8n-gke-cluster",
		NodeMachineType: "e2-medium",
		NodeCount:       1,
		VPCName:         "n8n-vpc",
		SubnetName:      "n8n-subnet",
		CloudSQLTier:    "db-f1-micro",
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

func (c *GCPConfig) Provider() Provider {
	return ProviderGCP
}

func (c *GCPConfig) Location() Location {
	return Location{
		Account: c.ProjectID,
		Region:  c.GCPRegion,
		Zone:    c.GCPZone,
	}
}

func (c *GCPConfig) Cluster() ClusterSettings {
	return ClusterSettings{
		Name:        c.ClusterName,
		MachineType: c.NodeMachineType,
		MinNodes:    c.NodeCount,
		MaxNodes:    c.NodeCount,
	}
}

func (c *GCPConfig) Validate() error {
	if err := runValidation(c); err != nil {
		return err
	}
	if c.Database == DatabaseManaged && c.CloudSQLInstanceName == "" {
		return errors.ValidationError(
			"cloudsql_instance_name is required when database_type is managed",
			map[string]interface{}{"field": "cloudsql_instance_name"},
		)
	}
	return c.validateHardening()
}

// Variables projects onto the GKE stack's variable names. The portable
// database type becomes sqlite/cloudsql here.
func (c *GCPConfig) Variables() map[string]cty.Value {
	return map[string]cty.Value{
		"gcp_project_id":         strVal(c.ProjectID),
		"gcp_region":             strVal(c.GCPRegion),
		"gcp_zone":               strVal(c.GCPZone),
		"cluster_name":           strVal(c.ClusterName),
		"node_machine_type":      strVal(c.NodeMachineType),
		"node_count":             intVal(c.NodeCount),
		"vpc_name":               strVal(c.VPCName),
		"subnet_name":            strVal(c.SubnetName),
		"n8n_host":               strVal(c.Host),
		"n8n_namespace":          strVal(c.Namespace),
		"n8n_persistence_size":   strVal(c.PersistenceSize),
		"timezone":               strVal(c.Timezone),
		"n8n_encryption_key":     strVal(c.EncryptionKey.Reveal()),
		"database_type":          strVal(gcpDatabaseType(c.Database)),
		"cloudsql_instance_name": strVal(c.CloudSQLInstanceName),
		"cloudsql_tier":          strVal(c.CloudSQLTier),
		"enable_basic_auth":      boolVal(c.EnableBasicAuth),
	}
}

func gcpDatabaseType(t DatabaseType) string {
	if t == DatabaseManaged {
		return "cloudsql"
	}
	return "sqlite"
}

var _ DeploymentConfig = (*GCPConfig)(nil)
