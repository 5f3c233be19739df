// Package preflight verifies the local toolchain and cloud credentials
// before any phase is allowed to mutate anything.
package preflight

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
)

// Tool is an external binary the deployment drives, with the minimum
// version the stack is tested against.
type Tool struct {
	Name        string
	VersionArgs []string
	Pattern     *regexp.Regexp
	MinVersion  string
	Description string
	InstallURL  string
}

var coreTools = []Tool{
	{
		Name:        "terraform",
		VersionArgs: []string{"version"},
		Pattern:     regexp.MustCompile(`Terraform v([0-9]+\.[0-9]+\.[0-9]+)`),
		MinVersion:  "1.6.0",
		Description: "Infrastructure as Code tool",
		InstallURL:  "https://developer.hashicorp.com/terraform/downloads",
	},
	{
		Name:        "helm",
		VersionArgs: []string{"version"},
		Pattern:     regexp.MustCompile(`v([0-9]+\.[0-9]+\.[0-9]+)`),
		MinVersion:  "3.0.0",
		Description: "Kubernetes package manager",
		InstallURL:  "https://helm.sh/docs/intro/install/",
	},
	{
		Name:        "kubectl",
		VersionArgs: []string{"version", "--client"},
		Pattern:     regexp.MustCompile(`Client Version: v([0-9]+\.[0-9]+\.[0-9]+)`),
		MinVersion:  "1.20.0",
		Description: "Kubernetes command-line tool",
		InstallURL:  "https://kubernetes.io/docs/tasks/tools/",
	},
}

var opensslTool = Tool{
	Name:        "openssl",
	VersionArgs: []string{"version"},
	Pattern:     regexp.MustCompile(`OpenSSL ([0-9]+\.[0-9]+\.[0-9]+)`),
	MinVersion:  "1.1.1",
	Description: "Cryptography and SSL/TLS toolkit",
	InstallURL:  "https://www.openssl.org/source/",
}

var providerTools = map[config.Provider]Tool{
	config.ProviderAWS: {
		Name:        "aws",
		VersionArgs: []string{"--version"},
		Pattern:     regexp.MustCompile(`aws-cli/([0-9]+\.[0-9]+\.[0-9]+)`),
		MinVersion:  "2.0.0",
		Description: "AWS Command Line Interface",
		InstallURL:  "https://docs.aws.amazon.com/cli/latest/userguide/getting-started-install.html",
	},
	config.ProviderAzure: {
		Name:        "az",
		VersionArgs: []string{"version"},
		Pattern:     regexp.MustCompile(`"azure-cli": "([0-9]+\.[0-9]+\.[0-9]+)"`),
		MinVersion:  "2.50.0",
		Description: "Azure Command Line Interface",
		InstallURL:  "https://docs.microsoft.com/en-us/cli/azure/install-azure-cli",
	},
	config.ProviderGCP: {
		Name:        "gcloud",
		VersionArgs: []string{"--version"},
		Pattern:     regexp.MustCompile(`Google Cloud SDK ([0-9]+\.[0-9]+\.[0-9]+)`),
		MinVersion:  "400.0.0",
		Description: "Google Cloud SDK",
		InstallURL:  "https://cloud.google.com/sdk/docs/install",
	},
}

// RequiredTools selects the binaries this deployment will invoke. openssl
// is only needed when the operator supplies their own certificate.
func RequiredTools(cfg config.DeploymentConfig) []Tool {
	tools := append([]Tool{}, coreTools...)
	if t, ok := providerTools[cfg.Provider()]; ok {
		tools = append(tools, t)
	}
	sec := cfg.Security()
	if sec.EnableTLS && sec.CertificateSource == config.CertificateCustom {
		tools = append(tools, opensslTool)
	}
	return tools
}

// ToolStatus is the check result for one binary.
type ToolStatus struct {
	Tool      Tool
	Installed bool
	Version   string
	Supported bool
}

// CheckTools probes each tool. A tool that is present but whose version
// cannot be parsed passes with an empty version; missing or outdated tools
// fail the whole check with a PRECONDITION_FAILED error listing them.
func CheckTools(ctx context.Context, tools []Tool) ([]ToolStatus, error) {
	statuses := make([]ToolStatus, 0, len(tools))
	var missing, outdated []string

	for _, tool := range tools {
		status := ToolStatus{Tool: tool}
		if _, err := exec.LookPath(tool.Name); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s): install from %s", tool.Name, tool.Description, tool.InstallURL))
			statuses = append(statuses, status)
			continue
		}
		status.Installed = true

		out, err := exec.CommandContext(ctx, tool.Name, tool.VersionArgs...).CombinedOutput()
		if err != nil && len(out) == 0 {
			// present but not answering; let the real invocation surface it
			status.Supported = true
			statuses = append(statuses, status)
			continue
		}

		if m := tool.Pattern.FindSubmatch(out); m != nil {
			status.Version = string(m[1])
			status.Supported = compareVersions(status.Version, tool.MinVersion) >= 0
			if !status.Supported {
				outdated = append(outdated, fmt.Sprintf("%s v%s (requires >=%s): %s", tool.Name, status.Version, tool.MinVersion, tool.InstallURL))
			}
		} else {
			status.Supported = true
		}
		statuses = append(statuses, status)
	}

	if len(missing) > 0 || len(outdated) > 0 {
		return statuses, errors.PreconditionError("tools", "required tools are missing or outdated").
			WithDetail("missing", missing).
			WithDetail("outdated", outdated)
	}
	return statuses, nil
}

// compareVersions compares dotted numeric versions: -1, 0, or 1.
func compareVersions(a, b string) int {
	aParts := strings.Split(a, ".")
	bParts := strings.Split(b, ".")
	for i := 0; i < len(aParts) || i < len(bParts); i++ {
		av, bv := 0, 0
		if i < len(aParts) {
			av, _ = strconv.Atoi(aParts[i])
		}
		if i < len(bParts) {
			bv, _ = strconv.Atoi(bParts[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}
