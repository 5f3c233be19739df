package teardown

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/secrets"
	"github.com/n8nops/n8nctl/pkg/snapshot"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// callLog records collaborator invocations in order, shared across mocks
// so tests can assert cross-step ordering.
type callLog struct {
	calls []string
}

func (l *callLog) add(name string) {
	l.calls = append(l.calls, name)
}

func (l *callLog) has(name string) bool {
	return l.index(name) >= 0
}

func (l *callLog) index(name string) int {
	for i, c := range l.calls {
		if c == name {
			return i
		}
	}
	return -1
}

// mockInfra implements infraRunner for testing.
type mockInfra struct {
	log        *callLog
	statePath  string
	guarded    []string
	guardedErr error
	destroyErr error
	outputs    *terraform.Outputs
	outputsErr error
}

func (m *mockInfra) StatePath() string { return m.statePath }

func (m *mockInfra) Outputs(ctx context.Context, cfg config.DeploymentConfig) (*terraform.Outputs, error) {
	m.log.add("infra.outputs")
	if m.outputsErr != nil {
		return nil, m.outputsErr
	}
	return m.outputs, nil
}

func (m *mockInfra) GuardedResources(ctx context.Context) ([]string, error) {
	m.log.add("infra.guarded")
	return m.guarded, m.guardedErr
}

func (m *mockInfra) Destroy(ctx context.Context, cfg config.DeploymentConfig) error {
	m.log.add("infra.destroy")
	return m.destroyErr
}

// mockHelm implements releaseRemover for testing.
type mockHelm struct {
	log  *callLog
	errs map[string]error
}

func (m *mockHelm) Uninstall(ctx context.Context, release, namespace string) error {
	m.log.add("helm.uninstall:" + release + "@" + namespace)
	return m.errs[release]
}

// mockCleaner implements clusterCleaner for testing.
type mockCleaner struct {
	log *callLog
	err error
}

func (m *mockCleaner) DeletePVCs(ctx context.Context, namespace string) error {
	m.log.add("kube.pvcs:" + namespace)
	return m.err
}

func (m *mockCleaner) DeleteManagedSecrets(ctx context.Context, namespace string) error {
	m.log.add("kube.secrets:" + namespace)
	return m.err
}

func (m *mockCleaner) DeleteNamespace(ctx context.Context, name string) error {
	m.log.add("kube.namespace:" + name)
	return m.err
}

// mockSnapshots implements snapshotStore for testing.
type mockSnapshots struct {
	log        *callLog
	restoreErr error
	deleteErr  error
	restored   []string
}

func (m *mockSnapshots) Restore(ctx context.Context, provider, region, destPath string) (*snapshot.Handle, error) {
	m.log.add("snapshot.restore")
	if m.restoreErr != nil {
		return nil, m.restoreErr
	}
	m.restored = append(m.restored, provider+"/"+region+"->"+destPath)
	return &snapshot.Handle{Provider: provider, Region: region}, nil
}

func (m *mockSnapshots) Delete(ctx context.Context, provider, region string) error {
	m.log.add("snapshot.delete:" + provider + "/" + region)
	return m.deleteErr
}

// mockLedger implements ledger for testing.
type mockLedger struct {
	log *callLog
	err error
}

func (m *mockLedger) ClearCurrent() error {
	m.log.add("history.clear")
	return m.err
}

// mockStore implements secrets.Store for testing.
type mockStore struct {
	names     []string
	listErr   error
	deleteErr error
	deleted   []string
}

func (m *mockStore) Provider() string { return "aws" }

func (m *mockStore) Put(ctx context.Context, name, value string) error { return nil }

func (m *mockStore) Get(ctx context.Context, name string) (string, error) {
	return "", secrets.ErrSecretNotFound
}

func (m *mockStore) Delete(ctx context.Context, name string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockStore) List(ctx context.Context, prefix string) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.names, nil
}

type fixture struct {
	seq       *Sequencer
	log       *callLog
	infra     *mockInfra
	helm      *mockHelm
	kube      *mockCleaner
	snapshots *mockSnapshots
	ledger    *mockLedger
	store     *mockStore
	vaultURIs []string
	out       *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := &callLog{}

	f := &fixture{
		log:       log,
		infra:     &mockInfra{log: log, statePath: "/stacks/aws/terraform.tfstate"},
		helm:      &mockHelm{log: log},
		kube:      &mockCleaner{log: log},
		snapshots: &mockSnapshots{log: log},
		ledger:    &mockLedger{log: log},
		store:     &mockStore{},
		out:       &bytes.Buffer{},
	}

	f.seq = &Sequencer{
		infra:     f.infra,
		helm:      f.helm,
		kube:      f.kube,
		snapshots: f.snapshots,
		history:   f.ledger,
		log:       zerolog.Nop(),
		secretStore: func(ctx context.Context, cfg config.DeploymentConfig, vaultURI string) (secrets.Store, error) {
			f.vaultURIs = append(f.vaultURIs, vaultURI)
			return f.store, nil
		},
		gracePeriod: time.Millisecond,
	}
	return f
}

func (f *fixture) opts() Options {
	return Options{Output: f.out}
}

func testConfig() *config.AWSConfig {
	cfg := config.NewAWSConfig()
	cfg.AWSRegion = "us-east-1"
	cfg.Host = "n8n.example.com"
	cfg.EncryptionKey = config.Secret("test-encryption-key")
	return cfg
}

func TestRun_StepOrder(t *testing.T) {
	f := newFixture(t)

	result, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expected := []string{
		"helm.uninstall:n8n@n8n",
		"helm.uninstall:cert-manager@cert-manager",
		"kube.pvcs:n8n",
		"kube.secrets:n8n",
		"kube.namespace:n8n",
		"kube.namespace:cert-manager",
		"infra.guarded",
		"infra.destroy",
		"snapshot.delete:aws/us-east-1",
		"history.clear",
	}
	if len(f.log.calls) != len(expected) {
		t.Fatalf("calls = %v, want %v", f.log.calls, expected)
	}
	for i, want := range expected {
		if f.log.calls[i] != want {
			t.Fatalf("call %d = %q, want %q (all: %v)", i, f.log.calls[i], want, f.log.calls)
		}
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if !strings.Contains(f.out.String(), "Teardown complete.") {
		t.Errorf("output missing completion message:\n%s", f.out.String())
	}
}

func TestRun_DeletionProtectionAbortsBeforeDestroy(t *testing.T) {
	f := newFixture(t)
	f.infra.guarded = []string{"aws_rds_cluster.n8n", "aws_s3_bucket.backups"}

	_, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err == nil {
		t.Fatal("expected deletion-protection error")
	}
	if !errors.Is(err, errors.ErrCodePrecondition) {
		t.Errorf("error code = %v, want precondition", err)
	}
	if !strings.Contains(err.Error(), "aws_rds_cluster.n8n") {
		t.Errorf("error should name the guarded resource: %v", err)
	}
	if f.log.has("infra.destroy") {
		t.Error("destroy must not run while deletion protection is enabled")
	}
	if f.log.has("snapshot.delete:aws/us-east-1") || f.log.has("history.clear") {
		t.Error("bookkeeping must survive an aborted teardown")
	}
}

func TestRun_ClusterErrorsBecomeWarnings(t *testing.T) {
	f := newFixture(t)
	// A second run after the cluster is gone: every cluster-layer call
	// fails with a connection error, but the run still finishes.
	f.helm.errs = map[string]error{
		"n8n":          fmt.Errorf("Kubernetes cluster unreachable"),
		"cert-manager": fmt.Errorf("Kubernetes cluster unreachable"),
	}
	f.kube.err = fmt.Errorf("connection refused")

	result, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Warnings) != 6 {
		t.Errorf("warnings = %d, want 6: %v", len(result.Warnings), result.Warnings)
	}
	if !f.log.has("infra.destroy") {
		t.Error("destroy should still run after cluster-layer warnings")
	}
	if !strings.Contains(f.out.String(), "Teardown complete with 6 warning(s).") {
		t.Errorf("output missing warning summary:\n%s", f.out.String())
	}
}

func TestRun_MissingReleasesAreAlreadyRemoved(t *testing.T) {
	f := newFixture(t)
	f.helm.errs = map[string]error{
		"n8n":          errors.New(errors.ErrCodeResource, `release "n8n" not found in namespace "n8n"`),
		"cert-manager": errors.New(errors.ErrCodeResource, `release "cert-manager" not found in namespace "cert-manager"`),
	}

	result, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, w := range result.Warnings {
		if !strings.Contains(w, "already removed") {
			t.Errorf("warning should report already-removed, got %q", w)
		}
	}
	// Nothing drained, so the grace wait is skipped.
	if strings.Contains(f.out.String(), "Waiting") {
		t.Errorf("grace wait should be skipped when nothing drained:\n%s", f.out.String())
	}
}

func TestRun_GraceWaitOnlyAfterDrain(t *testing.T) {
	f := newFixture(t)

	_, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(f.out.String(), "Waiting") {
		t.Errorf("grace wait expected after a successful drain:\n%s", f.out.String())
	}
}

func TestRun_SelectedSnapshotRestoredFirst(t *testing.T) {
	f := newFixture(t)
	opts := f.opts()
	opts.RestoreProvider = "aws"
	opts.RestoreRegion = "eu-west-1"

	_, err := f.seq.Run(context.Background(), testConfig(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(f.snapshots.restored) != 1 || f.snapshots.restored[0] != "aws/eu-west-1->/stacks/aws/terraform.tfstate" {
		t.Errorf("restored = %v, want the selected snapshot at the stack state path", f.snapshots.restored)
	}
	if f.log.index("snapshot.restore") > f.log.index("helm.uninstall:n8n@n8n") {
		t.Error("snapshot restore must run before draining")
	}
}

func TestRun_SnapshotRestoreFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.snapshots.restoreErr = errors.NotFoundError("snapshot", "aws/eu-west-1")
	opts := f.opts()
	opts.RestoreProvider = "aws"
	opts.RestoreRegion = "eu-west-1"

	_, err := f.seq.Run(context.Background(), testConfig(), opts)
	if err == nil {
		t.Fatal("expected restore failure to abort")
	}
	if f.log.has("helm.uninstall:n8n@n8n") || f.log.has("infra.destroy") {
		t.Error("nothing should run after a failed snapshot restore")
	}
}

func TestRun_DestroyFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.infra.destroyErr = errors.ToolError("terraform", []string{"destroy"}, fmt.Errorf("exit status 1"), "")

	_, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err == nil {
		t.Fatal("expected destroy failure to abort")
	}
	if f.log.has("snapshot.delete:aws/us-east-1") || f.log.has("history.clear") {
		t.Error("bookkeeping must survive a failed destroy")
	}
}

func TestRun_GuardReadFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.infra.guardedErr = fmt.Errorf("state file unreadable")

	result, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "deletion-protection check") {
		t.Errorf("warnings = %v, want one deletion-protection check warning", result.Warnings)
	}
	if !f.log.has("infra.destroy") {
		t.Error("destroy should proceed when the guard check itself fails")
	}
}

func TestRun_PurgeSecrets(t *testing.T) {
	f := newFixture(t)
	f.store.names = []string{
		"n8nctl-aws-us-east-1-basic-auth",
		"n8nctl-aws-us-east-1-encryption-key",
	}
	opts := f.opts()
	opts.PurgeSecrets = true

	result, err := f.seq.Run(context.Background(), testConfig(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PurgedSecrets != 2 {
		t.Errorf("PurgedSecrets = %d, want 2", result.PurgedSecrets)
	}
	if len(f.store.deleted) != 2 {
		t.Errorf("deleted = %v, want both names", f.store.deleted)
	}
	if !strings.Contains(f.out.String(), "Purged 2 out-of-band secret(s)") {
		t.Errorf("output missing purge summary:\n%s", f.out.String())
	}
}

func TestRun_PurgeSkippedByDefault(t *testing.T) {
	f := newFixture(t)
	f.store.names = []string{"n8nctl-aws-us-east-1-basic-auth"}

	result, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PurgedSecrets != 0 || len(f.store.deleted) != 0 {
		t.Errorf("secrets purged without the purge flag: %v", f.store.deleted)
	}
}

func TestRun_PurgeStoreFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	f.store.listErr = fmt.Errorf("AccessDeniedException")
	opts := f.opts()
	opts.PurgeSecrets = true

	result, err := f.seq.Run(context.Background(), testConfig(), opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "list out-of-band secrets") {
		t.Errorf("warnings = %v, want one list warning", result.Warnings)
	}
}

func TestRun_AzureVaultReadBeforeDestroy(t *testing.T) {
	f := newFixture(t)
	f.infra.outputs = &terraform.Outputs{
		ClusterAccessCommand: "az aks get-credentials --resource-group n8n --name n8n-aks-cluster",
		SecretStore:          "https://n8n-vault.vault.azure.net/",
	}
	cfg := config.NewAzureConfig()
	cfg.AzureLocation = "eastus"
	cfg.Host = "n8n.example.com"
	cfg.EncryptionKey = config.Secret("test-encryption-key")
	opts := f.opts()
	opts.PurgeSecrets = true

	_, err := f.seq.Run(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.log.index("infra.outputs") > f.log.index("infra.destroy") {
		t.Error("vault URI must be read before destroy removes the stack outputs")
	}
	if len(f.vaultURIs) != 1 || f.vaultURIs[0] != "https://n8n-vault.vault.azure.net/" {
		t.Errorf("vaultURIs = %v, want the stack's key vault URI", f.vaultURIs)
	}
}

func TestRun_AzureVaultReadFailureSkipsPurgeQuietly(t *testing.T) {
	f := newFixture(t)
	f.infra.outputsErr = fmt.Errorf("no outputs in state")
	cfg := config.NewAzureConfig()
	cfg.AzureLocation = "eastus"
	cfg.Host = "n8n.example.com"
	cfg.EncryptionKey = config.Secret("test-encryption-key")

	_, err := f.seq.Run(context.Background(), cfg, f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !f.log.has("infra.destroy") {
		t.Error("destroy should proceed when the vault lookup fails")
	}
}

func TestRun_NonAzureSkipsVaultLookup(t *testing.T) {
	f := newFixture(t)

	_, err := f.seq.Run(context.Background(), testConfig(), f.opts())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if f.log.has("infra.outputs") {
		t.Error("AWS teardown should not query outputs for a vault URI")
	}
}

func TestRun_CancelledContextInterrupts(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.seq.Run(ctx, testConfig(), f.opts())
	if err == nil {
		t.Fatal("expected interrupt error")
	}
	if !errors.Is(err, errors.ErrCodeInterrupted) {
		t.Errorf("error code = %v, want interrupted", err)
	}
	if f.log.has("infra.destroy") {
		t.Error("destroy must not run after cancellation")
	}
}
