package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

func validAWSConfig() *AWSConfig {
	cfg := NewAWSConfig()
	cfg.AWSRegion = "us-east-1"
	cfg.Host = "n8n.example.com"
	return cfg
}

func validGCPConfig() *GCPConfig {
	cfg := NewGCPConfig()
	cfg.ProjectID = "acme-prod-123"
	cfg.Host = "n8n.example.com"
	return cfg
}

func validAzureConfig() *AzureConfig {
	cfg := NewAzureConfig()
	cfg.SubscriptionID = "7f3c8e2a-1b4d-4f6a-9c8e-2a1b4d4f6a9c"
	cfg.AzureLocation = "eastus"
	cfg.Host = "n8n.example.com"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validAWSConfig().Validate())
	require.NoError(t, validGCPConfig().Validate())
	require.NoError(t, validAzureConfig().Validate())
}

func TestValidateRejectsMissingHost(t *testing.T) {
	cfg := validAWSConfig()
	cfg.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestValidateRejectsBadNodeBounds(t *testing.T) {
	cfg := validAWSConfig()
	cfg.NodeDesiredSize = 10 // above max of 5
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestValidateTLSRules(t *testing.T) {
	cfg := validGCPConfig()
	cfg.EnableTLS = true
	cfg.CertificateSource = CertificateAutomatic
	err := cfg.Validate()
	require.Error(t, err, "automatic issuance without a contact email must fail")

	cfg.LetsEncryptEmail = "ops@example.com"
	require.NoError(t, cfg.Validate())

	custom := validAWSConfig()
	custom.EnableTLS = true
	custom.CertificateSource = CertificateCustom
	require.Error(t, custom.Validate(), "custom source without cert files must fail")

	custom.CertificateFile = "/etc/certs/tls.crt"
	custom.PrivateKeyFile = "/etc/certs/tls.key"
	require.NoError(t, custom.Validate())

	none := validAzureConfig()
	none.EnableTLS = true
	none.CertificateSource = CertificateNone
	require.Error(t, none.Validate(), "enable_tls with source none must fail")
}

func TestValidateManagedDatabaseRequirements(t *testing.T) {
	cfg := validGCPConfig()
	cfg.Database = DatabaseManaged
	require.Error(t, cfg.Validate(), "managed database without a CloudSQL instance name must fail")

	cfg.CloudSQLInstanceName = "n8n-postgres"
	require.NoError(t, cfg.Validate())
}

func TestVariablesTranslateDatabaseType(t *testing.T) {
	aws := validAWSConfig()
	aws.Database = DatabaseManaged
	assert.Equal(t, cty.StringVal("postgresql"), aws.Variables()["database_type"])

	aws.Database = DatabaseEmbedded
	assert.Equal(t, cty.StringVal("sqlite"), aws.Variables()["database_type"])

	gcp := validGCPConfig()
	gcp.Database = DatabaseManaged
	assert.Equal(t, cty.StringVal("cloudsql"), gcp.Variables()["database_type"])

	azure := validAzureConfig()
	azure.Database = DatabaseManaged
	assert.Equal(t, cty.StringVal("postgresql"), azure.Variables()["database_type"])
}

func TestVariablesUseProviderKeyNames(t *testing.T) {
	gcp := validGCPConfig()
	vars := gcp.Variables()
	assert.Equal(t, cty.StringVal("acme-prod-123"), vars["gcp_project_id"])
	assert.Equal(t, cty.StringVal("n8n-gke-cluster"), vars["cluster_name"])
	assert.Equal(t, cty.StringVal("n8n.example.com"), vars["n8n_host"])
	assert.Equal(t, cty.NumberIntVal(1), vars["node_count"])

	aws := validAWSConfig()
	awsVars := aws.Variables()
	assert.Equal(t, cty.StringVal("us-east-1"), awsVars["region"])
	assert.Equal(t, cty.ListVal([]cty.Value{cty.StringVal("t3.medium")}), awsVars["node_instance_types"])
	assert.Equal(t, cty.NumberIntVal(2), awsVars["node_desired_size"])
}

func TestDecodeSelectsVariant(t *testing.T) {
	raw := []byte(`
cloud_provider: gcp
gcp_project_id: acme-prod-123
n8n_host: n8n.example.com
database_type: managed
cloudsql_instance_name: n8n-postgres
`)
	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, ProviderGCP, cfg.Provider())

	gcp, ok := cfg.(*GCPConfig)
	require.True(t, ok)
	assert.Equal(t, "acme-prod-123", gcp.ProjectID)
	// defaults fill what the file omits
	assert.Equal(t, "us-central1", gcp.GCPRegion)
	assert.Equal(t, "n8n", gcp.Namespace)
	assert.Equal(t, DatabaseManaged, gcp.Database)
}

func TestDecodeRejectsUnknownProvider(t *testing.T) {
	_, err := Decode([]byte("cloud_provider: digitalocean\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeValidation))
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode([]byte(`
cloud_provider: aws
aws_region: us-east-1
n8n_host: n8n.example.com
n8n_hostname: typo.example.com
`))
	require.Error(t, err, "unknown keys are typos until proven otherwise")
}

func TestConfigSerializationRedactsAllSecretFields(t *testing.T) {
	cfg := validAWSConfig()
	cfg.EncryptionKey = "f00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dfacef00dface"
	cfg.EnableBasicAuth = true
	cfg.BasicAuthPassword = "hunter2-cleartext"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	serialized := string(data)
	assert.False(t, strings.Contains(serialized, "f00dface"), "encryption key leaked")
	assert.False(t, strings.Contains(serialized, "hunter2"), "basic auth password leaked")
	assert.Contains(t, serialized, RedactedPlaceholder)
}

func TestConfigRoundTripPreservesNonSecretFields(t *testing.T) {
	cfg := validAzureConfig()
	cfg.NodeCount = 3
	cfg.Database = DatabaseManaged
	cfg.EncryptionKey = "the-key-material"

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	restored, err := DecodeJSON(ProviderAzure, data)
	require.NoError(t, err)

	back, ok := restored.(*AzureConfig)
	require.True(t, ok)
	assert.Equal(t, cfg.SubscriptionID, back.SubscriptionID)
	assert.Equal(t, cfg.NodeCount, back.NodeCount)
	assert.Equal(t, cfg.Database, back.Database)
	assert.Equal(t, cfg.Host, back.Host)
	// secrets are redacted on the way out, so they come back empty
	assert.True(t, back.EncryptionKey.IsZero())
}
