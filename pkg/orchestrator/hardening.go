package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/helm"
	"github.com/n8nops/n8nctl/pkg/kube"
	"github.com/n8nops/n8nctl/pkg/retry"
	"github.com/n8nops/n8nctl/pkg/secrets"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

const (
	// TLSSecretName holds the serving certificate, whether issued by
	// cert-manager or supplied by the operator.
	TLSSecretName = "n8n-tls"
	// BasicAuthSecretName holds the htpasswd data the ingress checks.
	BasicAuthSecretName = "n8n-basic-auth"

	certManagerRelease = "cert-manager"
	certManagerNS      = "cert-manager"
	certManagerRepo    = "https://charts.jetstack.io"
	certManagerVersion = "v1.14.5"

	letsEncryptStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	letsEncryptProductionURL = "https://acme-v02.api.letsencrypt.org/directory"
)

// harden runs phase 4. TLS and basic auth are independently skippable;
// skipping both is a valid terminal state, not an error.
func (o *Orchestrator) harden(ctx context.Context, cfg config.DeploymentConfig, outputs *terraform.Outputs, out io.Writer) error {
	sec := cfg.Security()
	if !sec.EnableTLS && !sec.EnableBasicAuth {
		fmt.Fprintf(out, "Hardening skipped; n8n stays reachable over plain HTTP.\n")
		return nil
	}
	if sec.EnableTLS {
		if err := o.configureTLS(ctx, cfg, out); err != nil {
			return err
		}
	}
	if sec.EnableBasicAuth {
		if err := o.configureBasicAuth(ctx, cfg, outputs, out); err != nil {
			return err
		}
	}
	return nil
}

// ConfigureTLS re-runs the TLS sub-step against an existing deployment.
func (o *Orchestrator) ConfigureTLS(ctx context.Context, cfg config.DeploymentConfig, opts RunOptions) error {
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	if !cfg.Security().EnableTLS {
		return errors.PreconditionError("tls", "enable_tls is false in the configuration; nothing to configure")
	}
	outputs, err := o.infra.Outputs(ctx, cfg)
	if err != nil {
		return err
	}
	if err := o.ensureClusterAccess(ctx, outputs, out); err != nil {
		return err
	}
	return o.configureTLS(ctx, cfg, out)
}

func (o *Orchestrator) configureTLS(ctx context.Context, cfg config.DeploymentConfig, out io.Writer) error {
	ns := cfg.App().Namespace
	host := cfg.App().Host
	sec := cfg.Security()

	switch sec.CertificateSource {
	case config.CertificateCustom:
		return o.installCustomCertificate(ctx, ns, host, sec, out)
	case config.CertificateAutomatic:
		return o.issueCertificate(ctx, ns, host, sec, out)
	default:
		return errors.PreconditionError("tls",
			fmt.Sprintf("certificate source %q cannot be configured", sec.CertificateSource))
	}
}

// installCustomCertificate loads the operator's certificate pair into the
// cluster and points the ingress at it.
func (o *Orchestrator) installCustomCertificate(ctx context.Context, ns, host string, sec config.SecurityOptions, out io.Writer) error {
	certPEM, err := os.ReadFile(sec.CertificateFile)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to read certificate file", err)
	}
	keyPEM, err := os.ReadFile(sec.PrivateKeyFile)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to read private key file", err)
	}

	manifest, err := kube.TLSSecretManifest(TLSSecretName, ns, certPEM, keyPEM)
	if err != nil {
		return err
	}
	if err := o.kube.ApplyManifest(ctx, manifest); err != nil {
		return err
	}
	if err := o.patchIngressTLS(ctx, ns, host); err != nil {
		return err
	}
	fmt.Fprintf(out, "TLS configured from the provided certificate.\n")
	return nil
}

// issueCertificate sets up cert-manager with a Let's Encrypt issuer and
// waits for the HTTP01-validated certificate. DNS may not have converged
// yet, so running out the wait window reports pending rather than
// failing the run.
func (o *Orchestrator) issueCertificate(ctx context.Context, ns, host string, sec config.SecurityOptions, out io.Writer) error {
	if err := o.ensureCertManager(ctx, out); err != nil {
		return err
	}

	issuer := issuerName(sec.LetsEncryptEnvironment)
	manifest, err := clusterIssuerManifest(issuer, acmeServerURL(sec.LetsEncryptEnvironment), sec.LetsEncryptEmail)
	if err != nil {
		return err
	}
	if err := o.kube.ApplyManifest(ctx, manifest); err != nil {
		return err
	}

	if err := o.kube.Annotate(ctx, "ingress", helm.ReleaseName, ns, map[string]string{
		"cert-manager.io/cluster-issuer": issuer,
	}); err != nil {
		return err
	}
	if err := o.patchIngressTLS(ctx, ns, host); err != nil {
		return err
	}

	fmt.Fprintf(out, "Waiting for certificate issuance (HTTP01 validation against %s)...\n", host)
	err = retry.Do(ctx, o.certWait, func(ctx context.Context) (bool, error) {
		return o.kube.ResourceExists(ctx, "secret", TLSSecretName, ns)
	})
	if err != nil {
		if stderrors.Is(err, retry.ErrExhausted) {
			fmt.Fprintf(out, "Certificate not ready yet; issuance continues in the background.\n")
			fmt.Fprintf(out, "Make sure the DNS record for %s points at the load balancer, then check:\n  kubectl -n %s describe certificate %s\n", host, ns, TLSSecretName)
			return nil
		}
		if ctx.Err() != nil {
			return errors.Wrap(errors.ErrCodeInterrupted, "certificate wait interrupted", err)
		}
		return err
	}
	fmt.Fprintf(out, "Certificate issued; n8n now serves HTTPS on %s.\n", host)
	return nil
}

// ensureCertManager installs cert-manager once; an existing release is
// left alone.
func (o *Orchestrator) ensureCertManager(ctx context.Context, out io.Writer) error {
	exists, err := o.helm.ReleaseExists(ctx, certManagerRelease, certManagerNS)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	fmt.Fprintf(out, "Installing cert-manager %s...\n", certManagerVersion)
	return o.helm.UpgradeInstall(ctx, certManagerRelease, "cert-manager", helm.InstallOptions{
		Namespace:       certManagerNS,
		CreateNamespace: true,
		Repo:            certManagerRepo,
		Version:         certManagerVersion,
		Set:             map[string]string{"installCRDs": "true"},
		Wait:            true,
		Timeout:         5 * time.Minute,
	})
}

func (o *Orchestrator) patchIngressTLS(ctx context.Context, ns, host string) error {
	patch, err := ingressTLSPatch(host, TLSSecretName)
	if err != nil {
		return err
	}
	return o.kube.Patch(ctx, "ingress", helm.ReleaseName, ns, patch)
}

// configureBasicAuth puts an htpasswd secret in front of the ingress and
// keeps a copy of the credentials in the provider's secret store so they
// survive outside the cluster.
func (o *Orchestrator) configureBasicAuth(ctx context.Context, cfg config.DeploymentConfig, outputs *terraform.Outputs, out io.Writer) error {
	ns := cfg.App().Namespace
	sec := cfg.Security()

	username := sec.BasicAuthUsername
	if username == "" {
		username = "admin"
	}
	password := sec.BasicAuthPassword.Reveal()
	generated := false
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return err
		}
		generated = true
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(errors.ErrCodeValidation, "failed to hash basic-auth password", err)
	}

	manifest, err := kube.SecretManifest(BasicAuthSecretName, ns, map[string][]byte{
		"auth": htpasswdLine(username, hash),
	})
	if err != nil {
		return err
	}
	if err := o.kube.ApplyManifest(ctx, manifest); err != nil {
		return err
	}

	if err := o.kube.Annotate(ctx, "ingress", helm.ReleaseName, ns, map[string]string{
		"nginx.ingress.kubernetes.io/auth-type":   "basic",
		"nginx.ingress.kubernetes.io/auth-secret": BasicAuthSecretName,
		"nginx.ingress.kubernetes.io/auth-realm":  "Authentication Required",
	}); err != nil {
		return err
	}

	o.storeCredentials(ctx, cfg, outputs, username, password, out)
	if generated {
		// Shown exactly once; every persisted copy is redacted or lives
		// in the secret store.
		fmt.Fprintf(out, "Generated basic-auth credentials (shown once):\n  username: %s\n  password: %s\n", username, password)
	}
	fmt.Fprintf(out, "Basic authentication enabled on the ingress.\n")
	return nil
}

type basicAuthRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// storeCredentials writes the credentials to the provider secret store.
// The cluster secret is the enforcing artifact, so a store failure is a
// warning, not an abort.
func (o *Orchestrator) storeCredentials(ctx context.Context, cfg config.DeploymentConfig, outputs *terraform.Outputs, username, password string, out io.Writer) {
	vaultURI := ""
	if outputs != nil {
		vaultURI = outputs.SecretStore
	}
	store, err := o.secretStore(ctx, cfg, vaultURI)
	if err != nil {
		fmt.Fprintf(out, "Warning: secret store unavailable, credentials not stored out-of-band: %v\n", err)
		return
	}

	name := BasicAuthCredentialName(cfg)
	payload, err := json.Marshal(basicAuthRecord{Username: username, Password: password})
	if err != nil {
		fmt.Fprintf(out, "Warning: failed to encode credentials for the secret store: %v\n", err)
		return
	}
	if err := store.Put(ctx, name, string(payload)); err != nil {
		fmt.Fprintf(out, "Warning: failed to store credentials in the %s secret store: %v\n", store.Provider(), err)
		return
	}
	fmt.Fprintf(out, "Credentials stored in the %s secret store as %q.\n", store.Provider(), name)
}

// BasicAuthCredentialName is the secret-store entry for a deployment's
// basic-auth credentials, scoped so teardown purge can find it.
func BasicAuthCredentialName(cfg config.DeploymentConfig) string {
	return secrets.SanitizeName(secrets.DeploymentPrefix(cfg), "basic-auth")
}

func issuerName(env string) string {
	if env == "staging" {
		return "letsencrypt-staging"
	}
	return "letsencrypt-production"
}

func acmeServerURL(env string) string {
	if env == "staging" {
		return letsEncryptStagingURL
	}
	return letsEncryptProductionURL
}

// generatePassword returns a 32-character URL-safe random password.
func generatePassword() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(errors.ErrCodeIO, "failed to generate password", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// htpasswdLine renders one bcrypt htpasswd entry, the format the nginx
// ingress auth module reads.
func htpasswdLine(username string, hash []byte) []byte {
	return []byte(fmt.Sprintf("%s:%s\n", username, hash))
}

type issuerRef struct {
	Name string `json:"name"`
}

type ingressSolver struct {
	Class string `json:"class"`
}

type httpSolver struct {
	Ingress ingressSolver `json:"ingress"`
}

type acmeSolver struct {
	HTTP01 httpSolver `json:"http01"`
}

type acmeSpec struct {
	Server              string       `json:"server"`
	Email               string       `json:"email"`
	PrivateKeySecretRef issuerRef    `json:"privateKeySecretRef"`
	Solvers             []acmeSolver `json:"solvers"`
}

type clusterIssuer struct {
	APIVersion string    `json:"apiVersion"`
	Kind       string    `json:"kind"`
	Metadata   issuerRef `json:"metadata"`
	Spec       struct {
		ACME acmeSpec `json:"acme"`
	} `json:"spec"`
}

func clusterIssuerManifest(name, server, email string) ([]byte, error) {
	issuer := clusterIssuer{
		APIVersion: "cert-manager.io/v1",
		Kind:       "ClusterIssuer",
		Metadata:   issuerRef{Name: name},
	}
	issuer.Spec.ACME = acmeSpec{
		Server:              server,
		Email:               email,
		PrivateKeySecretRef: issuerRef{Name: name + "-account-key"},
		Solvers: []acmeSolver{
			{HTTP01: httpSolver{Ingress: ingressSolver{Class: "nginx"}}},
		},
	}
	data, err := json.Marshal(issuer)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to encode cluster issuer", err)
	}
	return data, nil
}

type ingressTLSEntry struct {
	Hosts      []string `json:"hosts"`
	SecretName string   `json:"secretName"`
}

func ingressTLSPatch(host, secretName string) ([]byte, error) {
	patch := map[string]interface{}{
		"spec": map[string]interface{}{
			"tls": []ingressTLSEntry{{Hosts: []string{host}, SecretName: secretName}},
		},
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "failed to encode ingress TLS patch", err)
	}
	return data, nil
}
