package terraform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// tfState is the slice of the state document needed for the teardown
// guard check.
type tfState struct {
	Resources []tfStateResource `json:"resources"`
}

type tfStateResource struct {
	Mode      string            `json:"mode"`
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Instances []tfStateInstance `json:"instances"`
}

type tfStateInstance struct {
	Attributes map[string]json.RawMessage `json:"attributes"`
}

// GuardedResources lists resources still carrying an enabled
// deletion-protection attribute. Destroy would fail midway on these;
// surfacing them first keeps teardown all-or-nothing.
func (r *Runner) GuardedResources(ctx context.Context) ([]string, error) {
	raw, err := r.PullState(ctx)
	if err != nil {
		return nil, err
	}
	return guardedResources(raw)
}

func guardedResources(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var state tfState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTool, "failed to parse terraform state", err)
	}

	var guarded []string
	for _, res := range state.Resources {
		if res.Mode != "managed" {
			continue
		}
		for _, inst := range res.Instances {
			if isDeletionProtected(inst.Attributes) {
				guarded = append(guarded, fmt.Sprintf("%s.%s", res.Type, res.Name))
				break
			}
		}
	}
	return guarded, nil
}

// deletion-protection attribute names across the three stacks
var guardAttributes = []string{
	"deletion_protection",
	"deletion_protection_enabled",
}

func isDeletionProtected(attrs map[string]json.RawMessage) bool {
	for _, name := range guardAttributes {
		raw, ok := attrs[name]
		if !ok {
			continue
		}
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err != nil {
			continue
		}
		if enabled {
			return true
		}
	}
	return false
}
