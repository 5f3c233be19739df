// Package config defines the deployment configuration model: one variant
// per cloud provider, all exposing the same logical field set through the
// DeploymentConfig interface.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// Provider identifies a supported cloud provider.
type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
)

// ParseProvider validates a provider name from a flag or config file.
func ParseProvider(name string) (Provider, error) {
	switch Provider(name) {
	case ProviderAWS, ProviderAzure, ProviderGCP:
		return Provider(name), nil
	default:
		return "", errors.ValidationError(
			fmt.Sprintf("unknown cloud provider %q (expected aws, azure, or gcp)", name),
			map[string]interface{}{"provider": name},
		)
	}
}

// DatabaseType selects the n8n persistence backend.
type DatabaseType string

const (
	// DatabaseEmbedded stores workflows in SQLite on the n8n volume.
	DatabaseEmbedded DatabaseType = "embedded"
	// DatabaseManaged provisions the provider's managed PostgreSQL service.
	DatabaseManaged DatabaseType = "managed"
)

// CertificateSource selects how the TLS certificate is obtained.
type CertificateSource string

const (
	CertificateNone      CertificateSource = "none"
	CertificateCustom    CertificateSource = "custom"
	CertificateAutomatic CertificateSource = "automatic"
)

// Location identifies where a deployment lives. Account is the AWS
// profile, Azure subscription, or GCP project depending on the variant.
type Location struct {
	Account string
	Region  string
	Zone    string
}

// ClusterSettings describes the Kubernetes cluster independent of
// provider-specific naming.
type ClusterSettings struct {
	Name        string
	Version     string
	MachineType string
	MinNodes    int
	MaxNodes    int
}

// AppOptions holds the n8n application fields shared by every provider.
// Variants embed it so config files stay flat and the App accessor comes
// from a single definition.
type AppOptions struct {
	Namespace       string       `yaml:"n8n_namespace" json:"n8n_namespace" validate:"required"`
	Host            string       `yaml:"n8n_host" json:"n8n_host" validate:"required,fqdn"`
	PersistenceSize string       `yaml:"n8n_persistence_size" json:"n8n_persistence_size" validate:"required"`
	Timezone        string       `yaml:"timezone" json:"timezone" validate:"required"`
	Database        DatabaseType `yaml:"database_type" json:"database_type" validate:"required,oneof=embedded managed"`
	EncryptionKey   Secret       `yaml:"n8n_encryption_key" json:"n8n_encryption_key"`
}

// App returns the shared application settings.
func (a AppOptions) App() AppOptions {
	return a
}

// SecurityOptions holds the TLS and basic-auth hardening fields shared by
// every provider.
type SecurityOptions struct {
	EnableTLS              bool              `yaml:"enable_tls" json:"enable_tls"`
	CertificateSource      CertificateSource `yaml:"tls_certificate_source" json:"tls_certificate_source" validate:"omitempty,oneof=none custom automatic"`
	LetsEncryptEmail       string            `yaml:"letsencrypt_email" json:"letsencrypt_email" validate:"omitempty,email"`
	LetsEncryptEnvironment string            `yaml:"letsencrypt_environment" json:"letsencrypt_environment" validate:"omitempty,oneof=staging production"`
	CertificateFile        string            `yaml:"tls_certificate_file" json:"tls_certificate_file"`
	PrivateKeyFile         string            `yaml:"tls_private_key_file" json:"tls_private_key_file"`
	EnableBasicAuth        bool              `yaml:"enable_basic_auth" json:"enable_basic_auth"`
	BasicAuthUsername      string            `yaml:"basic_auth_username" json:"basic_auth_username"`
	BasicAuthPassword      Secret            `yaml:"basic_auth_password" json:"basic_auth_password"`
}

// Security returns the shared hardening settings.
func (s SecurityOptions) Security() SecurityOptions {
	return s
}

// validateHardening enforces the cross-field rules that struct tags cannot
// express: each certificate source requires its own inputs.
func (s SecurityOptions) validateHardening() error {
	if !s.EnableTLS {
		return nil
	}
	switch s.CertificateSource {
	case CertificateAutomatic:
		if s.LetsEncryptEmail == "" {
			return errors.ValidationError(
				"letsencrypt_email is required when tls_certificate_source is automatic",
				map[string]interface{}{"field": "letsencrypt_email"},
			)
		}
	case CertificateCustom:
		if s.CertificateFile == "" || s.PrivateKeyFile == "" {
			return errors.ValidationError(
				"tls_certificate_file and tls_private_key_file are required when tls_certificate_source is custom",
				map[string]interface{}{"field": "tls_certificate_file"},
			)
		}
	case CertificateNone, "":
		return errors.ValidationError(
			"enable_tls requires tls_certificate_source to be custom or automatic",
			map[string]interface{}{"field": "tls_certificate_source"},
		)
	}
	return nil
}

// DeploymentConfig is the provider-independent view of a deployment. Each
// variant struct implements every accessor, so adding a shared field means
// extending an option group and every provider picks it up at compile time.
type DeploymentConfig interface {
	Provider() Provider
	Location() Location
	Cluster() ClusterSettings
	App() AppOptions
	Security() SecurityOptions

	// Validate checks struct tags and cross-field rules.
	Validate() error

	// Variables projects the config onto the provider's infrastructure
	// variable names. Names are translated here and nowhere else.
	Variables() map[string]cty.Value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// runValidation converts validator tag failures into a structured
// validation error listing the offending fields.
func runValidation(cfg interface{}) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(errors.ErrCodeValidation, "config validation failed", err)
	}
	details := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		details[fe.Namespace()] = fe.Tag()
	}
	return errors.ValidationError("config validation failed", details).
		WithDetail("fields", len(verrs))
}

func boolVal(b bool) cty.Value {
	return cty.BoolVal(b)
}

func intVal(i int) cty.Value {
	return cty.NumberIntVal(int64(i))
}

func strVal(s string) cty.Value {
	return cty.StringVal(s)
}
