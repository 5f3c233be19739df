// Package orchestrator drives a deployment through its phases:
// infrastructure provisioning, application deployment, endpoint
// discovery, and security hardening. Phases run strictly in order and
// never roll a previous phase back; a failure aborts in place, restores
// the configuration files this run mutated, and leaves applied
// infrastructure standing.
package orchestrator

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/backup"
	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/helm"
	"github.com/n8nops/n8nctl/pkg/kube"
	"github.com/n8nops/n8nctl/pkg/preflight"
	"github.com/n8nops/n8nctl/pkg/retry"
	"github.com/n8nops/n8nctl/pkg/secrets"
	"github.com/n8nops/n8nctl/pkg/snapshot"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// Phase names one stage of a run, as printed in abort messages.
type Phase string

const (
	PhaseProvisioning Phase = "provisioning"
	PhaseDeployment   Phase = "deployment"
	PhaseDiscovery    Phase = "endpoint-discovery"
	PhaseHardening    Phase = "hardening"
)

// Backup groups. Infrastructure-layer files are only restored when
// provisioning itself fails; once apply has succeeded they describe real
// resources and reverting them would lie about what exists.
const (
	GroupInfrastructure = "infrastructure"
	GroupApplication    = "application"
)

type infraRunner interface {
	VarFilePath() string
	StatePath() string
	WriteVars(cfg config.DeploymentConfig) error
	EnsureInit(ctx context.Context) error
	Plan(ctx context.Context, cfg config.DeploymentConfig) (*terraform.PlanSummary, error)
	Apply(ctx context.Context, cfg config.DeploymentConfig) (*terraform.Outputs, error)
	Outputs(ctx context.Context, cfg config.DeploymentConfig) (*terraform.Outputs, error)
}

type appDeployer interface {
	Deploy(ctx context.Context, cfg config.DeploymentConfig, infra *terraform.Outputs) (*helm.DeployHealth, error)
}

type releaseInstaller interface {
	UpgradeInstall(ctx context.Context, release, chart string, opts helm.InstallOptions) error
	ReleaseExists(ctx context.Context, release, namespace string) (bool, error)
}

type clusterClient interface {
	ApplyManifest(ctx context.Context, manifest []byte) error
	ServiceIngress(ctx context.Context, namespace, service string) (string, error)
	Annotate(ctx context.Context, kind, name, namespace string, annotations map[string]string) error
	Patch(ctx context.Context, kind, name, namespace string, patch []byte) error
	ResourceExists(ctx context.Context, kind, name, namespace string) (bool, error)
}

type stateSaver interface {
	Save(ctx context.Context, cfg config.DeploymentConfig, statePath string) (*snapshot.Handle, error)
}

type ledger interface {
	Record(cfg config.DeploymentConfig) error
	SetCurrent(cfg config.DeploymentConfig) error
}

// Orchestrator owns one run at a time. Collaborators are injected once;
// the run-specific knobs travel in RunOptions.
type Orchestrator struct {
	infra     infraRunner
	deployer  appDeployer
	helm      releaseInstaller
	kube      clusterClient
	snapshots stateSaver
	history   ledger
	log       zerolog.Logger

	// preflightRun and secretStore are function seams so tests can run
	// phases without cloud credentials.
	preflightRun func(ctx context.Context, cfg config.DeploymentConfig) (*preflight.Report, error)
	secretStore  func(ctx context.Context, cfg config.DeploymentConfig, vaultURI string) (secrets.Store, error)
	execCommand  func(ctx context.Context, command string, stream io.Writer) error

	discovery retry.Options
	certWait  retry.Options
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Infra     *terraform.Runner
	Deployer  *helm.Deployer
	Helm      *helm.Runner
	Kube      *kube.Client
	Snapshots *snapshot.Manager
	History   *config.HistoryStore
	Logger    zerolog.Logger
}

// New wires an orchestrator with production collaborators and the
// standard polling bounds: endpoint discovery 30 attempts at 10s,
// certificate readiness bounded at 5 minutes.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		infra:        deps.Infra,
		deployer:     deps.Deployer,
		helm:         deps.Helm,
		kube:         deps.Kube,
		snapshots:    deps.Snapshots,
		history:      deps.History,
		log:          deps.Logger,
		preflightRun: preflight.Run,
		secretStore:  secrets.ForProvider,
		execCommand:  runShellCommand,
		discovery:    retry.Options{Attempts: 30, Interval: 10 * time.Second},
		certWait:     retry.Options{Interval: 10 * time.Second, Timeout: 5 * time.Minute},
	}
}

// RunOptions carries the per-run knobs.
type RunOptions struct {
	// WorkDir holds the history ledger and the backup live marker.
	WorkDir string

	// ConfigPath is the operator's config file, backed up alongside the
	// ledger files. Empty when the config came from history.
	ConfigPath string

	// SkipProvisioning enters at phase 2 against existing infrastructure.
	SkipProvisioning bool

	// AutoApprove skips the plan confirmation prompt.
	AutoApprove bool

	// Interactive reports whether a human can answer prompts. When false,
	// applying requires AutoApprove.
	Interactive bool

	// Output receives progress; Input answers prompts.
	Output io.Writer
	Input  io.Reader
}

// RunResult reports what a run produced. On abort the result still
// carries whatever the completed phases captured.
type RunResult struct {
	Phase           Phase
	Outputs         *terraform.Outputs
	Health          *helm.DeployHealth
	Endpoint        string
	EndpointPending bool
	Snapshot        *snapshot.Handle
	Duration        time.Duration
}

// Run executes the phases in order. The returned error is prefixed with
// the aborting phase; a nil error means the deployment reached a valid
// terminal state (hardening skipped or pending states included).
func (o *Orchestrator) Run(ctx context.Context, cfg config.DeploymentConfig, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	result := &RunResult{}
	defer func() { result.Duration = time.Since(start) }()

	if _, err := o.preflightRun(ctx, cfg); err != nil {
		return result, err
	}

	set, err := backup.Snapshot(opts.WorkDir, o.backupGroups(opts))
	if err != nil {
		return result, err
	}

	if opts.SkipProvisioning {
		result.Phase = PhaseProvisioning
		outputs, err := o.infra.Outputs(ctx, cfg)
		if err != nil {
			o.abort(out, PhaseProvisioning, set, err)
			return result, phaseError(PhaseProvisioning, err)
		}
		result.Outputs = outputs
		fmt.Fprintf(out, "Skipping provisioning; reusing existing infrastructure outputs.\n")
		o.recordHistory(cfg, out)
	} else {
		result.Phase = PhaseProvisioning
		outputs, err := o.provision(ctx, cfg, opts, out)
		if err != nil {
			o.abort(out, PhaseProvisioning, set, err)
			return result, phaseError(PhaseProvisioning, err)
		}
		result.Outputs = outputs
		result.Snapshot = o.saveSnapshot(ctx, cfg, out)
		o.recordHistory(cfg, out)
	}

	if err := o.ensureClusterAccess(ctx, result.Outputs, out); err != nil {
		o.abort(out, PhaseProvisioning, set, err)
		return result, phaseError(PhaseProvisioning, err)
	}

	result.Phase = PhaseDeployment
	health, err := o.deployer.Deploy(ctx, cfg, result.Outputs)
	result.Health = health
	if err != nil {
		o.abort(out, PhaseDeployment, set, err)
		o.printDeployRemediation(out, cfg, err)
		return result, phaseError(PhaseDeployment, err)
	}
	fmt.Fprintf(out, "Application deployed: %d/%d replicas ready.\n", health.ReadyReplicas, health.Desired)

	result.Phase = PhaseDiscovery
	endpoint, pending, err := o.discoverEndpoint(ctx, result.Outputs, out)
	if err != nil {
		o.abort(out, PhaseDiscovery, set, err)
		return result, phaseError(PhaseDiscovery, err)
	}
	result.Endpoint = endpoint
	result.EndpointPending = pending

	result.Phase = PhaseHardening
	if err := o.harden(ctx, cfg, result.Outputs, out); err != nil {
		o.abort(out, PhaseHardening, set, err)
		return result, phaseError(PhaseHardening, err)
	}

	if err := set.Discard(); err != nil {
		fmt.Fprintf(out, "Warning: failed to discard backups: %v\n", err)
	}
	o.printSummary(out, cfg, result)
	return result, nil
}

// backupGroups names every file this run may mutate, split by layer so
// phase 2–4 failures can restore the ledger without touching variable
// files that describe already-applied infrastructure.
func (o *Orchestrator) backupGroups(opts RunOptions) map[string][]string {
	groups := map[string][]string{
		GroupInfrastructure: {o.infra.VarFilePath()},
		GroupApplication: {
			filepath.Join(opts.WorkDir, config.HistoryFileName),
			filepath.Join(opts.WorkDir, config.CurrentFileName),
		},
	}
	if opts.ConfigPath != "" {
		groups[GroupApplication] = append(groups[GroupApplication], opts.ConfigPath)
	}
	return groups
}

// provision runs plan, confirmation, and apply, and returns the stack
// outputs.
func (o *Orchestrator) provision(ctx context.Context, cfg config.DeploymentConfig, opts RunOptions, out io.Writer) (*terraform.Outputs, error) {
	if err := o.infra.WriteVars(cfg); err != nil {
		return nil, err
	}
	if err := o.infra.EnsureInit(ctx); err != nil {
		return nil, err
	}

	summary, err := o.infra.Plan(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "\nPlan: %s\n", summary.String())

	if summary.HasChanges() {
		ok, err := o.confirmApply(opts, out)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(errors.ErrCodeInterrupted, "apply declined by operator")
		}
	} else {
		fmt.Fprintf(out, "No infrastructure changes required.\n")
	}

	outputs, err := o.infra.Apply(ctx, cfg)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Infrastructure ready.\n")
	return outputs, nil
}

// confirmApply gates apply behind the operator. Non-interactive runs
// must opt in explicitly; silently applying from automation is the one
// thing this tool must never do.
func (o *Orchestrator) confirmApply(opts RunOptions, out io.Writer) (bool, error) {
	if opts.AutoApprove {
		return true, nil
	}
	if !opts.Interactive || opts.Input == nil {
		return false, errors.PreconditionError("confirmation",
			"refusing to apply infrastructure changes without confirmation in a non-interactive session; re-run with --auto-approve")
	}

	fmt.Fprintf(out, "Apply these changes? [Y/n]: ")
	line, err := bufio.NewReader(opts.Input).ReadString('\n')
	if err != nil && line == "" {
		return false, errors.Wrap(errors.ErrCodeIO, "failed to read confirmation", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// saveSnapshot records the regional state artifact. Failure is a
// warning: the infrastructure already exists and aborting now would
// only add damage.
func (o *Orchestrator) saveSnapshot(ctx context.Context, cfg config.DeploymentConfig, out io.Writer) *snapshot.Handle {
	handle, err := o.snapshots.Save(ctx, cfg, o.infra.StatePath())
	if err != nil {
		fmt.Fprintf(out, "Warning: failed to save state snapshot: %v\n", err)
		o.log.Warn().Err(err).Msg("state snapshot not saved")
		return nil
	}
	fmt.Fprintf(out, "State snapshot saved for %s/%s.\n", handle.Provider, handle.Region)
	return handle
}

// recordHistory appends the redacted ledger entry and replaces the
// current pointer. Recording a config must never abort a deployment.
func (o *Orchestrator) recordHistory(cfg config.DeploymentConfig, out io.Writer) {
	if err := o.history.Record(cfg); err != nil {
		fmt.Fprintf(out, "Warning: failed to record deployment history: %v\n", err)
	}
	if err := o.history.SetCurrent(cfg); err != nil {
		fmt.Fprintf(out, "Warning: failed to update current deployment pointer: %v\n", err)
	}
}

// ensureClusterAccess merges the cluster into the local kubeconfig using
// the command the stack exported.
func (o *Orchestrator) ensureClusterAccess(ctx context.Context, outputs *terraform.Outputs, out io.Writer) error {
	if outputs == nil || outputs.ClusterAccessCommand == "" {
		return nil
	}
	o.log.Info().Str("command", outputs.ClusterAccessCommand).Msg("configuring cluster access")
	if err := o.execCommand(ctx, outputs.ClusterAccessCommand, out); err != nil {
		return errors.Wrap(errors.ErrCodeTool, "failed to configure cluster access", err)
	}
	return nil
}

// discoverEndpoint polls for the load balancer's external address.
// Exhausting the window is a pending condition, not a failure: the
// deployment works as soon as the provider assigns the address.
func (o *Orchestrator) discoverEndpoint(ctx context.Context, outputs *terraform.Outputs, out io.Writer) (string, bool, error) {
	lb := outputs.LoadBalancer
	fmt.Fprintf(out, "Waiting for load balancer address (%s/%s)...\n", lb.Namespace, lb.Service)

	var endpoint string
	err := retry.Do(ctx, o.discovery, func(ctx context.Context) (bool, error) {
		addr, err := o.kube.ServiceIngress(ctx, lb.Namespace, lb.Service)
		if err != nil {
			if errors.Is(err, errors.ErrCodeNotFound) {
				// Service not created yet; keep polling.
				return false, nil
			}
			return false, err
		}
		if addr == "" {
			return false, nil
		}
		endpoint = addr
		return true, nil
	})
	if err != nil {
		if stderrors.Is(err, retry.ErrExhausted) {
			fmt.Fprintf(out, "Load balancer address still pending. Check later with:\n  kubectl -n %s get svc %s -w\n", lb.Namespace, lb.Service)
			return "", true, nil
		}
		if ctx.Err() != nil {
			return "", false, errors.Wrap(errors.ErrCodeInterrupted, "endpoint discovery interrupted", err)
		}
		return "", false, err
	}
	fmt.Fprintf(out, "Load balancer address: %s\n", endpoint)
	return endpoint, false, nil
}

// abort restores the files this run mutated and reports what happened.
// Provisioning failures restore everything; later phases restore only
// the application-layer files, because the infrastructure inputs now
// describe real resources.
func (o *Orchestrator) abort(out io.Writer, phase Phase, set *backup.Set, cause error) {
	fmt.Fprintf(out, "\nPhase %s failed: %v\n", phase, cause)

	var restoreErr error
	if phase == PhaseProvisioning {
		restoreErr = set.Restore()
	} else {
		restoreErr = set.RestoreGroup(GroupApplication)
	}

	if restoreErr != nil {
		fmt.Fprintf(out, "Warning: configuration backups were not fully restored: %v\n", restoreErr)
		fmt.Fprintf(out, "Saved copies remain in %s for manual recovery.\n", set.Dir())
		return
	}

	fmt.Fprintf(out, "Configuration backups restored.\n")
	if phase == PhaseProvisioning {
		fmt.Fprintf(out, "Infrastructure resources may already exist; re-run deploy with the same configuration to continue, or run teardown to remove them.\n")
	}
	if err := set.Discard(); err != nil {
		fmt.Fprintf(out, "Warning: failed to discard backups: %v\n", err)
	}
}

// printDeployRemediation points the operator at the workload when the
// application phase fails. The infrastructure is intact; redeploying is
// cheap once the cause is fixed.
func (o *Orchestrator) printDeployRemediation(out io.Writer, cfg config.DeploymentConfig, err error) {
	ns := cfg.App().Namespace
	fmt.Fprintf(out, "Infrastructure is left intact.\n")
	if errors.Is(err, errors.ErrCodeHealth) {
		fmt.Fprintf(out, "The workload did not become ready. Inspect it with:\n")
		fmt.Fprintf(out, "  kubectl -n %s get pods\n", ns)
		fmt.Fprintf(out, "  kubectl -n %s logs deployment/%s\n", ns, helm.ReleaseName)
	}
	fmt.Fprintf(out, "Fix the cause and re-run with --skip-provisioning to redeploy the application only.\n")
}

func (o *Orchestrator) printSummary(out io.Writer, cfg config.DeploymentConfig, result *RunResult) {
	scheme := "http"
	if cfg.Security().EnableTLS {
		scheme = "https"
	}
	fmt.Fprintf(out, "\nDeployment complete.\n")
	fmt.Fprintf(out, "  URL: %s://%s\n", scheme, cfg.App().Host)
	if result.Endpoint != "" {
		fmt.Fprintf(out, "  Load balancer: %s\n", result.Endpoint)
		fmt.Fprintf(out, "  Point the DNS record for %s at the address above.\n", cfg.App().Host)
	}
	if result.EndpointPending {
		fmt.Fprintf(out, "  Load balancer address pending; DNS cannot be configured yet.\n")
	}
}

func phaseError(phase Phase, err error) error {
	return fmt.Errorf("phase %s: %w", phase, err)
}

// runShellCommand executes a provider CLI command exported by the stack
// (for example "aws eks update-kubeconfig --name ..."). Outputs never
// contain shell syntax, so field splitting is sufficient.
func runShellCommand(ctx context.Context, command string, stream io.Writer) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = stream
	cmd.Stderr = stream
	return cmd.Run()
}
