// Package helm drives the helm binary to install and remove the n8n
// release and the hardening controllers. Deploys are idempotent by
// upgrade: an existing release is updated in place, never a name
// conflict.
package helm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// Runner executes helm commands.
type Runner struct {
	binary string
	log    zerolog.Logger
	stream io.Writer
}

// Option customizes a Runner.
type Option func(*Runner)

// WithBinary overrides the helm binary path.
func WithBinary(path string) Option {
	return func(r *Runner) { r.binary = path }
}

// WithStream mirrors helm output to w.
func WithStream(w io.Writer) Option {
	return func(r *Runner) { r.stream = w }
}

// NewRunner creates a helm runner.
func NewRunner(logger zerolog.Logger, opts ...Option) (*Runner, error) {
	r := &Runner{log: logger}
	for _, opt := range opts {
		opt(r)
	}
	if r.binary == "" {
		path, err := exec.LookPath("helm")
		if err != nil {
			return nil, errors.PreconditionError("tools", "helm binary not found in PATH")
		}
		r.binary = path
	}
	return r, nil
}

// InstallOptions configures an upgrade --install invocation.
type InstallOptions struct {
	Namespace       string
	CreateNamespace bool
	ValuesFile      string
	Repo            string
	Version         string
	Set             map[string]string
	Wait            bool
	Timeout         time.Duration
}

// UpgradeInstall installs the chart or upgrades the release in place.
// Secret values never travel through Set; they belong in the values file.
func (r *Runner) UpgradeInstall(ctx context.Context, release, chart string, opts InstallOptions) error {
	args := []string{"upgrade", "--install", release, chart}
	if opts.Namespace != "" {
		args = append(args, "--namespace", opts.Namespace)
	}
	if opts.CreateNamespace {
		args = append(args, "--create-namespace")
	}
	if opts.ValuesFile != "" {
		args = append(args, "-f", opts.ValuesFile)
	}
	if opts.Repo != "" {
		args = append(args, "--repo", opts.Repo)
	}
	if opts.Version != "" {
		args = append(args, "--version", opts.Version)
	}
	for _, kv := range sortedSet(opts.Set) {
		args = append(args, "--set", kv)
	}
	if opts.Wait {
		args = append(args, "--wait")
	}
	if opts.Timeout > 0 {
		args = append(args, "--timeout", opts.Timeout.String())
	}

	_, err := r.run(ctx, args...)
	return err
}

// ReleaseExists reports whether a release of that name lives in the
// namespace.
func (r *Runner) ReleaseExists(ctx context.Context, release, namespace string) (bool, error) {
	args := []string{"list", "--namespace", namespace, "-q", "--filter", "^" + release + "$"}
	out, err := r.run(ctx, args...)
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == release {
			return true, nil
		}
	}
	return false, nil
}

// Uninstall removes a release. A release that is already gone comes back
// as RESOURCE_MISSING so teardown can downgrade it to a warning.
func (r *Runner) Uninstall(ctx context.Context, release, namespace string) error {
	_, err := r.run(ctx, "uninstall", release, "--namespace", namespace)
	if err != nil {
		if isReleaseNotFound(err) {
			return errors.New(errors.ErrCodeResource, fmt.Sprintf("release %q not found in namespace %q", release, namespace))
		}
		return err
	}
	return nil
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	if r.stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.stream)
		cmd.Stderr = io.MultiWriter(&stderr, r.stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	r.log.Debug().Strs("args", args).Msg("running helm")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), errors.Wrap(errors.ErrCodeInterrupted, fmt.Sprintf("helm %s interrupted", args[0]), ctx.Err())
		}
		return stdout.String(), errors.ToolError("helm", args, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func isReleaseNotFound(err error) bool {
	e, ok := err.(*errors.Error)
	if !ok || e.Code != errors.ErrCodeTool {
		return false
	}
	stderr, _ := e.Details["stderr"].(string)
	return strings.Contains(stderr, "release: not found") ||
		strings.Contains(stderr, "not found")
}

func sortedSet(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+m[k])
	}
	return pairs
}
