// Package teardown removes a deployment in reverse-dependency order:
// application releases first, then namespace-scoped resources, then the
// infrastructure, then the bookkeeping. Cluster-layer steps are
// best-effort so a re-run after partial completion walks through the
// already-removed resources with warnings and still exits cleanly.
package teardown

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/helm"
	"github.com/n8nops/n8nctl/pkg/kube"
	"github.com/n8nops/n8nctl/pkg/secrets"
	"github.com/n8nops/n8nctl/pkg/snapshot"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// certManagerRelease mirrors the hardening install so teardown removes
// what deploy created.
const (
	certManagerRelease = "cert-manager"
	certManagerNS      = "cert-manager"
)

type infraRunner interface {
	StatePath() string
	Outputs(ctx context.Context, cfg config.DeploymentConfig) (*terraform.Outputs, error)
	GuardedResources(ctx context.Context) ([]string, error)
	Destroy(ctx context.Context, cfg config.DeploymentConfig) error
}

type releaseRemover interface {
	Uninstall(ctx context.Context, release, namespace string) error
}

type clusterCleaner interface {
	DeletePVCs(ctx context.Context, namespace string) error
	DeleteManagedSecrets(ctx context.Context, namespace string) error
	DeleteNamespace(ctx context.Context, name string) error
}

type snapshotStore interface {
	Restore(ctx context.Context, provider, region, destPath string) (*snapshot.Handle, error)
	Delete(ctx context.Context, provider, region string) error
}

type ledger interface {
	ClearCurrent() error
}

// Sequencer walks the teardown steps for one deployment.
type Sequencer struct {
	infra     infraRunner
	helm      releaseRemover
	kube      clusterCleaner
	snapshots snapshotStore
	history   ledger
	log       zerolog.Logger

	secretStore func(ctx context.Context, cfg config.DeploymentConfig, vaultURI string) (secrets.Store, error)
	gracePeriod time.Duration
}

// Deps collects the sequencer's collaborators.
type Deps struct {
	Infra     *terraform.Runner
	Helm      *helm.Runner
	Kube      *kube.Client
	Snapshots *snapshot.Manager
	History   *config.HistoryStore
	Logger    zerolog.Logger
}

// New wires a sequencer with the standard 10s drain grace period.
func New(deps Deps) *Sequencer {
	return &Sequencer{
		infra:       deps.Infra,
		helm:        deps.Helm,
		kube:        deps.Kube,
		snapshots:   deps.Snapshots,
		history:     deps.History,
		log:         deps.Logger,
		secretStore: secrets.ForProvider,
		gracePeriod: 10 * time.Second,
	}
}

// Options carries the per-teardown knobs.
type Options struct {
	// RestoreProvider/RestoreRegion select a state snapshot to restore
	// into the stack directory before tearing down. Empty means the live
	// state is already the one to destroy.
	RestoreProvider string
	RestoreRegion   string

	// PurgeSecrets removes the out-of-band secret store entries. The
	// caller confirms this separately; it cannot be undone.
	PurgeSecrets bool

	// Output receives progress and warnings.
	Output io.Writer
}

// Result reports what the teardown did. A run with only warnings is a
// success.
type Result struct {
	Warnings      []string
	PurgedSecrets int
	Duration      time.Duration
}

// Run executes the teardown. Cluster-layer errors become warnings; the
// deletion-protection precondition and a failed destroy abort, because
// continuing past them would delete records for infrastructure that
// still exists.
func (s *Sequencer) Run(ctx context.Context, cfg config.DeploymentConfig, opts Options) (*Result, error) {
	start := time.Now()
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	result := &Result{}
	defer func() { result.Duration = time.Since(start) }()

	if opts.RestoreProvider != "" {
		handle, err := s.snapshots.Restore(ctx, opts.RestoreProvider, opts.RestoreRegion, s.infra.StatePath())
		if err != nil {
			return result, err
		}
		fmt.Fprintf(out, "Restored state snapshot %s/%s.\n", handle.Provider, handle.Region)
	}

	// The vault locator has to be read before destroy removes the stack
	// that exported it.
	vaultURI := s.vaultLocator(ctx, cfg)

	ns := cfg.App().Namespace
	loc := cfg.Location()

	fmt.Fprintf(out, "Draining application releases...\n")
	drained := false
	if err := s.step(ctx, out, result, "uninstall release "+helm.ReleaseName, func() error {
		if err := s.helm.Uninstall(ctx, helm.ReleaseName, ns); err != nil {
			return err
		}
		drained = true
		return nil
	}); err != nil {
		return result, err
	}
	if err := s.step(ctx, out, result, "uninstall release "+certManagerRelease, func() error {
		if err := s.helm.Uninstall(ctx, certManagerRelease, certManagerNS); err != nil {
			return err
		}
		drained = true
		return nil
	}); err != nil {
		return result, err
	}

	if drained {
		fmt.Fprintf(out, "Waiting %s for open connections to close...\n", s.gracePeriod)
		if err := s.wait(ctx); err != nil {
			return result, err
		}
	}

	fmt.Fprintf(out, "Removing namespace-scoped resources...\n")
	steps := []struct {
		name string
		fn   func() error
	}{
		{"delete persistent volume claims", func() error { return s.kube.DeletePVCs(ctx, ns) }},
		{"delete managed secrets", func() error { return s.kube.DeleteManagedSecrets(ctx, ns) }},
		{"delete namespace " + ns, func() error { return s.kube.DeleteNamespace(ctx, ns) }},
		{"delete namespace " + certManagerNS, func() error { return s.kube.DeleteNamespace(ctx, certManagerNS) }},
	}
	for _, st := range steps {
		if err := s.step(ctx, out, result, st.name, st.fn); err != nil {
			return result, err
		}
	}

	guarded, err := s.infra.GuardedResources(ctx)
	if err != nil {
		s.warn(out, result, "deletion-protection check", err)
	}
	if len(guarded) > 0 {
		return result, errors.PreconditionError("deletion-protection",
			fmt.Sprintf("deletion protection is still enabled on: %s — disable it and re-run teardown", strings.Join(guarded, ", ")))
	}

	fmt.Fprintf(out, "Destroying infrastructure...\n")
	if err := s.infra.Destroy(ctx, cfg); err != nil {
		return result, err
	}
	fmt.Fprintf(out, "Infrastructure destroyed.\n")

	if err := s.snapshots.Delete(ctx, string(cfg.Provider()), loc.Region); err != nil {
		s.warn(out, result, "delete state snapshot", err)
	}
	if err := s.history.ClearCurrent(); err != nil {
		s.warn(out, result, "clear current deployment pointer", err)
	}

	if opts.PurgeSecrets {
		result.PurgedSecrets = s.purgeSecrets(ctx, cfg, vaultURI, out, result)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "\nTeardown complete with %d warning(s).\n", len(result.Warnings))
	} else {
		fmt.Fprintf(out, "\nTeardown complete.\n")
	}
	return result, nil
}

// step runs one best-effort action. Errors become warnings unless the
// context was cancelled, which always aborts.
func (s *Sequencer) step(ctx context.Context, out io.Writer, result *Result, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInterrupted, "teardown interrupted", err)
	}
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return errors.Wrap(errors.ErrCodeInterrupted, "teardown interrupted", err)
	}
	if errors.Is(err, errors.ErrCodeResource) || errors.Is(err, errors.ErrCodeNotFound) {
		s.warn(out, result, name, fmt.Errorf("already removed"))
		return nil
	}
	s.warn(out, result, name, err)
	return nil
}

func (s *Sequencer) warn(out io.Writer, result *Result, step string, err error) {
	msg := fmt.Sprintf("%s: %v", step, err)
	result.Warnings = append(result.Warnings, msg)
	fmt.Fprintf(out, "Warning: %s\n", msg)
	s.log.Warn().Str("step", step).Err(err).Msg("teardown step skipped")
}

func (s *Sequencer) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.Wrap(errors.ErrCodeInterrupted, "teardown interrupted", ctx.Err())
	case <-time.After(s.gracePeriod):
		return nil
	}
}

// vaultLocator fetches the Azure Key Vault URI while the stack still
// exists. Providers without a vault output return empty, and a missing
// stack just means there is nothing to purge from.
func (s *Sequencer) vaultLocator(ctx context.Context, cfg config.DeploymentConfig) string {
	if cfg.Provider() != config.ProviderAzure {
		return ""
	}
	outputs, err := s.infra.Outputs(ctx, cfg)
	if err != nil {
		return ""
	}
	return outputs.SecretStore
}

// purgeSecrets removes the out-of-band entries this tool created for the
// deployment. Store failures are warnings: the infrastructure is already
// gone and the operator can purge manually.
func (s *Sequencer) purgeSecrets(ctx context.Context, cfg config.DeploymentConfig, vaultURI string, out io.Writer, result *Result) int {
	store, err := s.secretStore(ctx, cfg, vaultURI)
	if err != nil {
		s.warn(out, result, "open secret store", err)
		return 0
	}

	prefix := secrets.DeploymentPrefix(cfg)
	names, err := store.List(ctx, prefix)
	if err != nil {
		s.warn(out, result, "list out-of-band secrets", err)
		return 0
	}
	if len(names) == 0 {
		fmt.Fprintf(out, "No out-of-band secrets to purge.\n")
		return 0
	}

	purged := 0
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			s.warn(out, result, "purge secret "+name, err)
			continue
		}
		purged++
	}
	fmt.Fprintf(out, "Purged %d out-of-band secret(s) from the %s secret store.\n", purged, store.Provider())
	return purged
}
