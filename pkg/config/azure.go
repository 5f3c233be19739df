package config

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// AzureConfig describes an n8n deployment on AKS.
type AzureConfig struct {
	CloudProvider Provider `yaml:"cloud_provider" json:"cloud_provider" validate:"required,eq=azure"`

	SubscriptionID string `yaml:"azure_subscription_id" json:"azure_subscription_id" validate:"required,uuid4"`
	AzureLocation  string `yaml:"azure_location" json:"azure_location" validate:"required"`

	ResourceGroupName string `yaml:"resource_group_name" json:"resource_group_name" validate:"required"`
	ProjectTag        string `yaml:"project_tag" json:"project_tag"`
	VNetCIDR          string `yaml:"vnet_cidr" json:"vnet_cidr" validate:"required,cidrv4"`

	ClusterName       string `yaml:"cluster_name" json:"cluster_name" validate:"required"`
	KubernetesVersion string `yaml:"kubernetes_version" json:"kubernetes_version"`

	NodeVMSize        string `yaml:"node_vm_size" json:"node_vm_size" validate:"required"`
	NodeCount         int    `yaml:"node_count" json:"node_count" validate:"min=1"`
	NodeMinCount      int    `yaml:"node_min_count" json:"node_min_count" validate:"min=1"`
	NodeMaxCount      int    `yaml:"node_max_count" json:"node_max_count" validate:"gtefield=NodeMinCount"`
	EnableAutoScaling bool   `yaml:"enable_auto_scaling" json:"enable_auto_scaling"`

	PostgresSKU              string `yaml:"postgres_sku" json:"postgres_sku"`
	PostgresStorageGB        int    `yaml:"postgres_storage_gb" json:"postgres_storage_gb" validate:"omitempty,min=32"`
	PostgresHighAvailability bool   `yaml:"postgres_high_availability" json:"postgres_high_availability"`
	PostgresVersion          string `yaml:"postgres_version" json:"postgres_version"`

	EnableNginxIngress bool `yaml:"enable_nginx_ingress" json:"enable_nginx_ingress"`
	EnableCertManager  bool `yaml:"enable_cert_manager" json:"enable_cert_manager"`

	AppOptions      `yaml:",inline"`
	SecurityOptions `yaml:",inline"`
}

// NewAzureConfig returns an Azure config with the stack defaults applied.
func NewAzureConfig() *AzureConfig {
	return &AzureConfig{
		CloudProvider:     ProviderAzure,
		ResourceGroupName: "n8n-rg",
		ProjectTag:        "n8n-app",
		VNetCIDR:          "10.0.0.0/16",
		ClusterName:       "n8n-aks-cluster",
		KubernetesVersion: "1.29",
		NodeVMSize:        "Standard_D2s_v3",
		NodeCount:         2,
		NodeMinCount:      1,
		NodeMaxCount:      5,
		EnableAutoScaling: true,
		PostgresSKU:        "B_Standard_B1ms",
		PostgresStorageGB:  32,
		PostgresVersion:    "15",
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

func (c *AzureConfig) Provider() Provider {
	return ProviderAzure
}

func (c *AzureConfig) Location() Location {
	return Location{
		Account: c.SubscriptionID,
		Region:  c.AzureLocation,
	}
}

func (c *AzureConfig) Cluster() ClusterSettings {
	return ClusterSettings{
		Name:        c.ClusterName,
		Version:     c.KubernetesVersion,
		MachineType: c.NodeVMSize,
		MinNodes:    c.NodeMinCount,
		MaxNodes:    c.NodeMaxCount,
	}
}

func (c *AzureConfig) Validate() error {
	if err := runValidation(c); err != nil {
		return err
	}
	if c.Database == DatabaseManaged && c.PostgresSKU == "" {
		return errors.ValidationError(
			"postgres_sku is required when database_type is managed",
			map[string]interface{}{"field": "postgres_sku"},
		)
	}
	return c.validateHardening()
}

// Variables projects onto the AKS stack's variable names.
func (c *AzureConfig) Variables() map[string]cty.Value {
	return map[string]cty.Value{
		"azure_subscription_id":      strVal(c.SubscriptionID),
		"azure_location":             strVal(c.AzureLocation),
		"resource_group_name":        strVal(c.ResourceGroupName),
		"project_tag":                strVal(c.ProjectTag),
		"vnet_cidr":                  strVal(c.VNetCIDR),
		"cluster_name":               strVal(c.ClusterName),
		"kubernetes_version":         strVal(c.KubernetesVersion),
		"node_vm_size":               strVal(c.NodeVMSize),
		"node_count":                 intVal(c.NodeCount),
		"node_min_count":             intVal(c.NodeMinCount),
		"node_max_count":             intVal(c.NodeMaxCount),
		"enable_auto_scaling":        boolVal(c.EnableAutoScaling),
		"n8n_host":                   strVal(c.Host),
		"n8n_namespace":              strVal(c.Namespace),
		"n8n_persistence_size":       strVal(c.PersistenceSize),
		"timezone":                   strVal(c.Timezone),
		"n8n_encryption_key":         strVal(c.EncryptionKey.Reveal()),
		"database_type":              strVal(azureDatabaseType(c.Database)),
		"postgres_sku":               strVal(c.PostgresSKU),
		"postgres_storage_gb":        intVal(c.PostgresStorageGB),
		"postgres_high_availability": boolVal(c.PostgresHighAvailability),
		"postgres_version":           strVal(c.PostgresVersion),
		"enable_nginx_ingress":       boolVal(c.EnableNginxIngress),
		"enable_basic_auth":          boolVal(c.EnableBasicAuth),
		"enable_cert_manager":        boolVal(c.EnableCertManager),
	}
}

func azureDatabaseType(t DatabaseType) string {
	if t == DatabaseManaged {
		return "postgresql"
	}
	return "sqlite"
}

var _ DeploymentConfig = (*AzureConfig)(nil)
