package terraform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

func awsTestConfig(db config.DatabaseType) *config.AWSConfig {
	cfg := config.NewAWSConfig()
	cfg.AWSRegion = "us-east-1"
	cfg.Host = "n8n.example.com"
	cfg.Database = db
	return cfg
}

func gcpTestConfig(db config.DatabaseType) *config.GCPConfig {
	cfg := config.NewGCPConfig()
	cfg.ProjectID = "acme-prod"
	cfg.Host = "n8n.example.com"
	cfg.Database = db
	if db == config.DatabaseManaged {
		cfg.CloudSQLInstanceName = "n8n-postgres"
	}
	return cfg
}

func TestTranslateOutputsAWSManaged(t *testing.T) {
	raw := []byte(`{
		"configure_kubectl": {"sensitive": false, "type": "string", "value": "aws eks update-kubeconfig --region us-east-1 --name n8n-eks-cluster --profile default"},
		"n8n_encryption_key": {"sensitive": true, "type": "string", "value": "0123abcd"},
		"encryption_key_secret_arn": {"sensitive": false, "type": "string", "value": "arn:aws:secretsmanager:us-east-1:123:secret:n8n-key"},
		"rds_address": {"sensitive": false, "type": "string", "value": "n8n.abc123.us-east-1.rds.amazonaws.com"},
		"rds_port": {"sensitive": false, "type": "number", "value": 5432},
		"rds_database_name": {"sensitive": false, "type": "string", "value": "n8n"},
		"rds_username": {"sensitive": false, "type": "string", "value": "n8nadmin"},
		"rds_password_secret_arn": {"sensitive": false, "type": "string", "value": "arn:aws:secretsmanager:us-east-1:123:secret:n8n-db"}
	}`)

	out, err := translateOutputs(awsTestConfig(config.DatabaseManaged), raw)
	require.NoError(t, err)

	assert.Contains(t, out.ClusterAccessCommand, "update-kubeconfig")
	assert.Equal(t, "0123abcd", out.EncryptionKey.Reveal())
	require.NotNil(t, out.Database)
	assert.Equal(t, "n8n.abc123.us-east-1.rds.amazonaws.com", out.Database.Host)
	assert.Equal(t, 5432, out.Database.Port)
	assert.Equal(t, "n8n", out.Database.Name)
	assert.Equal(t, "n8nadmin", out.Database.User)
	assert.Equal(t, "arn:aws:secretsmanager:us-east-1:123:secret:n8n-db", out.Database.CredentialsRef)
	assert.False(t, out.Database.RequiresProxy)
}

func TestTranslateOutputsEmbeddedSkipsDatabase(t *testing.T) {
	raw := []byte(`{
		"configure_kubectl": {"sensitive": false, "type": "string", "value": "aws eks update-kubeconfig --region us-east-1 --name n8n"}
	}`)
	out, err := translateOutputs(awsTestConfig(config.DatabaseEmbedded), raw)
	require.NoError(t, err)
	assert.Nil(t, out.Database)
}

func TestTranslateOutputsGCPProxy(t *testing.T) {
	raw := []byte(`{
		"kubectl_config_command": {"sensitive": false, "type": "string", "value": "gcloud container clusters get-credentials n8n-gke-cluster --zone us-central1-a --project acme-prod"},
		"n8n_encryption_key": {"sensitive": true, "type": "string", "value": "feedface"},
		"cloudsql_database_name": {"sensitive": false, "type": "string", "value": "n8n"},
		"cloudsql_username": {"sensitive": false, "type": "string", "value": "n8n"},
		"cloudsql_password_secret_ref": {"sensitive": false, "type": "string", "value": "projects/acme-prod/secrets/n8n-db-password"},
		"cloudsql_connection_name": {"sensitive": false, "type": "string", "value": "acme-prod:us-central1:n8n-postgres"}
	}`)

	out, err := translateOutputs(gcpTestConfig(config.DatabaseManaged), raw)
	require.NoError(t, err)
	require.NotNil(t, out.Database)
	assert.True(t, out.Database.RequiresProxy)
	assert.Equal(t, "acme-prod:us-central1:n8n-postgres", out.Database.ProxyConnection)
	assert.Equal(t, 5432, out.Database.Port)
}

func TestTranslateOutputsMissingClusterAccess(t *testing.T) {
	_, err := translateOutputs(awsTestConfig(config.DatabaseEmbedded), []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeResource))
}

func TestTranslateOutputsMissingDatabaseOutputs(t *testing.T) {
	raw := []byte(`{
		"configure_kubectl": {"sensitive": false, "type": "string", "value": "aws eks update-kubeconfig"}
	}`)
	_, err := translateOutputs(awsTestConfig(config.DatabaseManaged), raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeResource))
}

func TestTranslateOutputsLoadBalancerDefaults(t *testing.T) {
	raw := []byte(`{
		"configure_kubectl": {"sensitive": false, "type": "string", "value": "cmd"}
	}`)
	out, err := translateOutputs(awsTestConfig(config.DatabaseEmbedded), raw)
	require.NoError(t, err)
	assert.Equal(t, "ingress-nginx", out.LoadBalancer.Namespace)
	assert.Equal(t, "ingress-nginx-controller", out.LoadBalancer.Service)

	withOverride := []byte(`{
		"configure_kubectl": {"sensitive": false, "type": "string", "value": "cmd"},
		"load_balancer_namespace": {"sensitive": false, "type": "string", "value": "kube-system"},
		"load_balancer_service": {"sensitive": false, "type": "string", "value": "traefik"}
	}`)
	out, err = translateOutputs(awsTestConfig(config.DatabaseEmbedded), withOverride)
	require.NoError(t, err)
	assert.Equal(t, "kube-system", out.LoadBalancer.Namespace)
	assert.Equal(t, "traefik", out.LoadBalancer.Service)
}
