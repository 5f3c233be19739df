package terraform

import (
	"encoding/json"
	"fmt"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

// Outputs is the portable view of a provisioned stack, assembled from
// provider-specific output names.
type Outputs struct {
	// ClusterAccessCommand merges the cluster into the local kubeconfig
	// when run.
	ClusterAccessCommand string
	// EncryptionKey is set only on stacks that export the generated key
	// directly; others export a secret-store reference instead.
	EncryptionKey    config.Secret
	EncryptionKeyRef string
	// Database is nil when the deployment uses the embedded database.
	Database *DatabaseEndpoint
	// LoadBalancer locates the service whose external address fronts n8n.
	LoadBalancer ServiceRef
	// SecretStore locates the provisioned secret store where the provider
	// needs one (the Key Vault URI on Azure; empty elsewhere).
	SecretStore string
	// WorkloadIdentity carries provider identity bindings for pods.
	WorkloadIdentity map[string]string
}

// DatabaseEndpoint describes the managed database the app connects to.
// Credentials stay in the provider secret store; only the reference
// travels here.
type DatabaseEndpoint struct {
	Host            string
	Port            int
	Name            string
	User            string
	CredentialsRef  string
	RequiresProxy   bool
	ProxyConnection string
}

// ServiceRef names a Kubernetes service.
type ServiceRef struct {
	Namespace string
	Service   string
}

type rawOutput struct {
	Sensitive bool            `json:"sensitive"`
	Type      json.RawMessage `json:"type"`
	Value     json.RawMessage `json:"value"`
}

// outputNames maps the portable fields onto one stack's output names. An
// empty name means the stack does not produce that output.
type outputNames struct {
	clusterAccess    string
	encryptionKey    string
	encryptionKeyRef string
	secretStore      string
	dbHost           string
	dbPort           string
	dbName           string
	dbUser           string
	dbCredsRef       string
	proxyConnection  string
}

var stackOutputs = map[config.Provider]outputNames{
	config.ProviderAWS: {
		clusterAccess:    "configure_kubectl",
		encryptionKey:    "n8n_encryption_key",
		encryptionKeyRef: "encryption_key_secret_arn",
		dbHost:           "rds_address",
		dbPort:           "rds_port",
		dbName:           "rds_database_name",
		dbUser:           "rds_username",
		dbCredsRef:       "rds_password_secret_arn",
	},
	// The AKS stack never exports the key itself, only the vault
	// reference; the deployer falls back to the config-supplied key.
	config.ProviderAzure: {
		clusterAccess:    "kube_config_command",
		encryptionKeyRef: "encryption_key_secret_ref",
		secretStore:      "key_vault_uri",
		dbHost:           "postgres_server_fqdn",
		dbName:           "postgres_database_name",
		dbUser:           "postgres_admin_username",
		dbCredsRef:       "postgres_password_secret_ref",
	},
	config.ProviderGCP: {
		clusterAccess:    "kubectl_config_command",
		encryptionKey:    "n8n_encryption_key",
		encryptionKeyRef: "encryption_key_secret_id",
		dbHost:           "cloudsql_private_ip",
		dbName:           "cloudsql_database_name",
		dbUser:           "cloudsql_username",
		dbCredsRef:       "cloudsql_password_secret_ref",
		proxyConnection:  "cloudsql_connection_name",
	},
}

const defaultDBPort = 5432

// translateOutputs decodes `output -json` bytes and maps them to the
// portable shape. Outputs the next phase depends on must be present:
// cluster access always, the database endpoint when the config asked for
// a managed database.
func translateOutputs(cfg config.DeploymentConfig, raw []byte) (*Outputs, error) {
	var decoded map[string]rawOutput
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTool, "failed to parse terraform outputs", err)
	}

	names, ok := stackOutputs[cfg.Provider()]
	if !ok {
		return nil, errors.New(errors.ErrCodeValidation, "no output mapping for provider "+string(cfg.Provider()))
	}

	out := &Outputs{
		ClusterAccessCommand: getString(decoded, names.clusterAccess),
		EncryptionKey:        config.Secret(getString(decoded, names.encryptionKey)),
		EncryptionKeyRef:     getString(decoded, names.encryptionKeyRef),
		SecretStore:          getString(decoded, names.secretStore),
		LoadBalancer: ServiceRef{
			Namespace: "ingress-nginx",
			Service:   "ingress-nginx-controller",
		},
		WorkloadIdentity: getStringMap(decoded, "workload_identity"),
	}
	if ns := getString(decoded, "load_balancer_namespace"); ns != "" {
		out.LoadBalancer.Namespace = ns
	}
	if svc := getString(decoded, "load_balancer_service"); svc != "" {
		out.LoadBalancer.Service = svc
	}

	if out.ClusterAccessCommand == "" {
		return nil, errors.New(errors.ErrCodeResource,
			fmt.Sprintf("stack did not produce output %q; cluster access is required for deployment", names.clusterAccess))
	}

	if cfg.App().Database == config.DatabaseManaged {
		db := &DatabaseEndpoint{
			Host:            getString(decoded, names.dbHost),
			Port:            defaultDBPort,
			Name:            getString(decoded, names.dbName),
			User:            getString(decoded, names.dbUser),
			CredentialsRef:  getString(decoded, names.dbCredsRef),
			ProxyConnection: getString(decoded, names.proxyConnection),
		}
		if names.dbPort != "" {
			if port, ok := getInt(decoded, names.dbPort); ok {
				db.Port = port
			}
		}
		db.RequiresProxy = db.ProxyConnection != ""

		var absent []string
		if db.Host == "" && !db.RequiresProxy {
			absent = append(absent, names.dbHost)
		}
		if db.Name == "" {
			absent = append(absent, names.dbName)
		}
		if db.User == "" {
			absent = append(absent, names.dbUser)
		}
		if db.CredentialsRef == "" {
			absent = append(absent, names.dbCredsRef)
		}
		if len(absent) > 0 {
			return nil, errors.New(errors.ErrCodeResource,
				fmt.Sprintf("managed database requested but stack outputs are missing: %v", absent))
		}
		out.Database = db
	}

	return out, nil
}

func getString(outputs map[string]rawOutput, key string) string {
	if key == "" {
		return ""
	}
	raw, ok := outputs[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw.Value, &s); err != nil {
		return ""
	}
	return s
}

func getInt(outputs map[string]rawOutput, key string) (int, bool) {
	raw, ok := outputs[key]
	if !ok {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw.Value, &n); err != nil {
		// some stacks type ports as strings
		var s string
		if err := json.Unmarshal(raw.Value, &s); err != nil {
			return 0, false
		}
		if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
			return 0, false
		}
	}
	return n, true
}

func getStringMap(outputs map[string]rawOutput, key string) map[string]string {
	raw, ok := outputs[key]
	if !ok {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw.Value, &m); err != nil {
		return nil
	}
	return m
}
