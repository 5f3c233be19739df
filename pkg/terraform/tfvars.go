package terraform

import (
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/n8nops/n8nctl/pkg/errors"
)

// WriteVarFile renders vars as HCL, sorted by name so repeat runs produce
// identical files. Mode 0600: the file carries the encryption key.
func WriteVarFile(path string, vars map[string]cty.Value) error {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body.SetAttributeValue(name, vars[name])
	}

	if err := os.WriteFile(path, f.Bytes(), 0o600); err != nil {
		return errors.Wrap(errors.ErrCodeIO, "failed to write "+path, err)
	}
	return nil
}
