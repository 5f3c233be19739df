// Package terraform drives the terraform binary for provisioning,
// teardown, and output capture. Provider-specific names stay inside this
// package: variable names on the way in, output names on the way out.
package terraform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

// VarFileName is the variable file each run regenerates from the config.
const VarFileName = "terraform.tfvars"

// StateFileName is the local state artifact snapshotted per region after a
// successful apply.
const StateFileName = "terraform.tfstate"

// Runner executes terraform in a fixed working directory (one per
// provider stack).
type Runner struct {
	binary string
	dir    string
	log    zerolog.Logger
	stream io.Writer
}

// Option customizes a Runner.
type Option func(*Runner)

// WithBinary overrides the terraform binary path.
func WithBinary(path string) Option {
	return func(r *Runner) { r.binary = path }
}

// WithStream mirrors terraform's stdout to w so the operator can watch
// long applies.
func WithStream(w io.Writer) Option {
	return func(r *Runner) { r.stream = w }
}

// NewRunner creates a runner for the stack in dir.
func NewRunner(dir string, logger zerolog.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{dir: dir, log: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.binary == "" {
		path, err := exec.LookPath("terraform")
		if err != nil {
			return nil, errors.PreconditionError("tools", "terraform binary not found in PATH")
		}
		r.binary = path
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, errors.NotFoundError("terraform directory", dir)
	}
	return r, nil
}

// Dir is the stack working directory.
func (r *Runner) Dir() string {
	return r.dir
}

// VarFilePath is where WriteVars places the generated variable file.
func (r *Runner) VarFilePath() string {
	return filepath.Join(r.dir, VarFileName)
}

// StatePath is where the stack keeps its local state artifact.
func (r *Runner) StatePath() string {
	return filepath.Join(r.dir, StateFileName)
}

// WriteVars projects the config onto the stack's variable file. The file
// contains the encryption key in cleartext, hence the tight mode.
func (r *Runner) WriteVars(cfg config.DeploymentConfig) error {
	return WriteVarFile(r.VarFilePath(), cfg.Variables())
}

// EnsureInit runs terraform init once per working directory. An existing
// .terraform directory means providers are already installed; init is
// skipped to keep repeat runs fast.
func (r *Runner) EnsureInit(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.dir, ".terraform")); err == nil {
		r.log.Debug().Str("dir", r.dir).Msg("terraform already initialized")
		return nil
	}
	r.log.Info().Str("dir", r.dir).Msg("initializing terraform")
	_, err := r.run(ctx, "init", "-input=false")
	return err
}

// Plan regenerates the variable file and produces a change summary.
// Out-of-band drift detected during refresh aborts with STATE_DRIFT; the
// operator reconciles before any apply.
func (r *Runner) Plan(ctx context.Context, cfg config.DeploymentConfig) (*PlanSummary, error) {
	if err := r.EnsureInit(ctx); err != nil {
		return nil, err
	}
	if err := r.WriteVars(cfg); err != nil {
		return nil, err
	}

	out, err := r.run(ctx, "plan", "-input=false", "-json")
	if err != nil {
		return nil, err
	}
	summary := parsePlanStream(out)
	if len(summary.Drifted) > 0 {
		return summary, errors.DriftError(
			"infrastructure changed outside this tool since the last run",
			summary.Drifted,
		)
	}
	return summary, nil
}

// Apply executes the planned changes. A failure partway through is
// reported as PARTIAL_APPLY with the addresses that did change, so the
// operator can fix the cause and re-run to continue; state is never
// rolled back here.
func (r *Runner) Apply(ctx context.Context, cfg config.DeploymentConfig) (*Outputs, error) {
	out, err := r.run(ctx, "apply", "-input=false", "-auto-approve", "-json")
	if err != nil {
		applied := parseAppliedAddresses(out)
		if len(applied) > 0 {
			return nil, errors.PartialApplyError(applied, err)
		}
		return nil, err
	}
	return r.Outputs(ctx, cfg)
}

// Destroy tears the stack down. The variable file must exist; teardown
// regenerates it from the recorded config first.
func (r *Runner) Destroy(ctx context.Context, cfg config.DeploymentConfig) error {
	if err := r.EnsureInit(ctx); err != nil {
		return err
	}
	if err := r.WriteVars(cfg); err != nil {
		return err
	}
	_, err := r.run(ctx, "destroy", "-input=false", "-auto-approve")
	return err
}

// Outputs reads the stack outputs and translates them into the portable
// shape the deployer consumes.
func (r *Runner) Outputs(ctx context.Context, cfg config.DeploymentConfig) (*Outputs, error) {
	out, err := r.run(ctx, "output", "-json")
	if err != nil {
		return nil, err
	}
	return translateOutputs(cfg, []byte(out))
}

// PullState returns the raw current state, regardless of where the stack
// stores it.
func (r *Runner) PullState(ctx context.Context) ([]byte, error) {
	out, err := r.run(ctx, "state", "pull")
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// run executes terraform with automation flags set, capturing stdout. On
// failure the stderr tail rides along in the structured error.
func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "TF_INPUT=0", "TF_IN_AUTOMATION=1")

	var stdout, stderr bytes.Buffer
	if r.stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	r.log.Debug().Strs("args", args).Str("dir", r.dir).Msg("running terraform")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), errors.Wrap(errors.ErrCodeInterrupted, fmt.Sprintf("terraform %s interrupted", args[0]), ctx.Err())
		}
		return stdout.String(), errors.ToolError("terraform", args, err, tail(stderr.String(), 2048))
	}
	return stdout.String(), nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
