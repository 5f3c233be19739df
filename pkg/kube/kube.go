// Package kube drives the kubectl binary for the handful of cluster
// operations that happen outside Terraform and Helm: endpoint discovery,
// secret material, annotations, and teardown cleanup. Secret values travel
// to kubectl as stdin manifests, never as command-line arguments.
package kube

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

// Client executes kubectl against whatever cluster the current kubeconfig
// points at.
type Client struct {
	binary string
	log    zerolog.Logger
	stream io.Writer
}

// Option customizes a Client.
type Option func(*Client)

// WithBinary overrides the kubectl binary path.
func WithBinary(path string) Option {
	return func(c *Client) { c.binary = path }
}

// WithStream mirrors kubectl output to w.
func WithStream(w io.Writer) Option {
	return func(c *Client) { c.stream = w }
}

// NewClient creates a kubectl client.
func NewClient(logger zerolog.Logger, opts ...Option) (*Client, error) {
	c := &Client{log: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.binary == "" {
		path, err := exec.LookPath("kubectl")
		if err != nil {
			return nil, errors.PreconditionError("tools", "kubectl binary not found in PATH")
		}
		c.binary = path
	}
	return c, nil
}

// ApplyManifest pipes a manifest to kubectl apply. Used for everything
// that carries secret data so values stay off the process argument list.
func (c *Client) ApplyManifest(ctx context.Context, manifest []byte) error {
	_, err := c.run(ctx, bytes.NewReader(manifest), "apply", "-f", "-")
	return err
}

// DeleteResource removes a resource, tolerating absence.
func (c *Client) DeleteResource(ctx context.Context, kind, name, namespace string) error {
	args := []string{"delete", kind, name, "--ignore-not-found"}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// ResourceExists reports whether the named resource exists.
func (c *Client) ResourceExists(ctx context.Context, kind, name, namespace string) (bool, error) {
	args := []string{"get", kind, name, "-o", "name"}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NamespaceExists reports whether the namespace exists.
func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	return c.ResourceExists(ctx, "namespace", name, "")
}

// ServiceIngress returns the external address of a LoadBalancer service:
// the ingress IP when the provider hands one out (GKE, AKS), otherwise the
// hostname (EKS). An empty string means the provider has not finished
// allocating yet, which is a normal transient and not an error.
func (c *Client) ServiceIngress(ctx context.Context, namespace, service string) (string, error) {
	for _, field := range []string{"ip", "hostname"} {
		args := []string{
			"get", "service", service,
			"-o", fmt.Sprintf("jsonpath={.status.loadBalancer.ingress[0].%s}", field),
		}
		args = appendNamespace(args, namespace)
		out, err := c.run(ctx, nil, args...)
		if err != nil {
			if isNotFound(err) {
				return "", errors.NotFoundError("service", namespace+"/"+service)
			}
			return "", err
		}
		if addr := strings.TrimSpace(out); addr != "" {
			return addr, nil
		}
	}
	return "", nil
}

// WaitForDeployment blocks until the deployment reports available or the
// timeout elapses.
func (c *Client) WaitForDeployment(ctx context.Context, namespace, name string, timeout time.Duration) error {
	args := []string{
		"wait", "--for=condition=available",
		fmt.Sprintf("--timeout=%ds", int(timeout.Seconds())),
		"deployment/" + name,
	}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// DeploymentReplicas returns the ready and desired replica counts for a
// deployment.
func (c *Client) DeploymentReplicas(ctx context.Context, namespace, name string) (ready, desired int, err error) {
	args := []string{
		"get", "deployment", name,
		"-o", "jsonpath={.status.readyReplicas} {.spec.replicas}",
	}
	args = appendNamespace(args, namespace)
	out, err := c.run(ctx, nil, args...)
	if err != nil {
		if isNotFound(err) {
			return 0, 0, errors.NotFoundError("deployment", namespace+"/"+name)
		}
		return 0, 0, err
	}
	ready, desired = parseReplicaCounts(out)
	return ready, desired, nil
}

// Annotate sets annotations on a resource, overwriting existing values.
func (c *Client) Annotate(ctx context.Context, kind, name, namespace string, annotations map[string]string) error {
	if len(annotations) == 0 {
		return nil
	}
	args := []string{"annotate", "--overwrite", kind, name}
	for _, kv := range sortedPairs(annotations) {
		args = append(args, kv)
	}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// Patch applies a merge patch to a resource.
func (c *Client) Patch(ctx context.Context, kind, name, namespace string, patch []byte) error {
	args := []string{"patch", kind, name, "--type=merge", "-p", string(patch)}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// DeletePVCs removes every persistent volume claim in the namespace. Data
// on the claims is gone after this.
func (c *Client) DeletePVCs(ctx context.Context, namespace string) error {
	args := []string{"delete", "pvc", "--all", "--ignore-not-found"}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// DeleteManagedSecrets removes the secrets this tool created in the
// namespace, identified by the managed-by label.
func (c *Client) DeleteManagedSecrets(ctx context.Context, namespace string) error {
	args := []string{"delete", "secret", "-l", ManagedByLabel, "--ignore-not-found"}
	args = appendNamespace(args, namespace)
	_, err := c.run(ctx, nil, args...)
	return err
}

// DeleteNamespace removes a namespace and waits for it to go away so a
// following terraform destroy does not race namespace finalizers.
func (c *Client) DeleteNamespace(ctx context.Context, name string) error {
	_, err := c.run(ctx, nil, "delete", "namespace", name, "--ignore-not-found", "--wait=true")
	return err
}

// run executes kubectl, capturing stdout. Optional stdin feeds manifests.
func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Env = os.Environ()
	if stdin != nil {
		cmd.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	if c.stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, c.stream)
		cmd.Stderr = io.MultiWriter(&stderr, c.stream)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	c.log.Debug().Strs("args", args).Msg("running kubectl")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), errors.Wrap(errors.ErrCodeInterrupted, fmt.Sprintf("kubectl %s interrupted", args[0]), ctx.Err())
		}
		return stdout.String(), errors.ToolError("kubectl", args, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func appendNamespace(args []string, namespace string) []string {
	if namespace == "" {
		return args
	}
	return append(args, "-n", namespace)
}

// isNotFound detects kubectl's NotFound server errors from the stderr the
// tool error carries.
func isNotFound(err error) bool {
	e, ok := err.(*errors.Error)
	if !ok || e.Code != errors.ErrCodeTool {
		return false
	}
	stderr, _ := e.Details["stderr"].(string)
	return strings.Contains(stderr, "(NotFound)") || strings.Contains(stderr, "not found")
}

func parseReplicaCounts(out string) (ready, desired int) {
	// The first field is empty until the deployment reports any ready
	// replicas, so positions matter and Fields would shift them.
	parts := strings.SplitN(strings.TrimRight(out, "\n"), " ", 2)
	if len(parts) > 0 {
		fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &ready)
	}
	if len(parts) > 1 {
		fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &desired)
	}
	return ready, desired
}

func sortedPairs(m map[string]string) []string {
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
