package helm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/n8nops/n8nctl/pkg/config"
	"github.com/n8nops/n8nctl/pkg/errors"
	"github.com/n8nops/n8nctl/pkg/terraform"
)

// BuildOverrides projects the config and provisioning outputs onto the
// chart's flat override keys. Database keys appear only for a managed
// database; the embedded database needs no wiring at all. The n8n chart
// uses n8n's own database vocabulary (sqlite, postgresdb).
func BuildOverrides(cfg config.DeploymentConfig, infra *terraform.Outputs) (map[string]string, error) {
	app := cfg.App()

	key := encryptionKey(cfg, infra)
	if key == "" {
		return nil, errors.PreconditionError("encryption-key",
			"no encryption key available from provisioning outputs or configuration")
	}

	overrides := map[string]string{
		"n8n.host":          app.Host,
		"n8n.timezone":      app.Timezone,
		"n8n.encryptionKey": key,
		"persistence.size":  app.PersistenceSize,
		"ingress.enabled":   "true",
		"ingress.className": "nginx",
		"ingress.host":      app.Host,
		"database.type":     "sqlite",
	}

	if app.Database == config.DatabaseManaged {
		if infra == nil || infra.Database == nil {
			return nil, errors.New(errors.ErrCodeResource,
				"managed database requested but provisioning outputs carry no database endpoint")
		}
		db := infra.Database

		overrides["database.type"] = "postgresdb"
		overrides["database.host"] = db.Host
		overrides["database.port"] = strconv.Itoa(db.Port)
		overrides["database.name"] = db.Name
		overrides["database.user"] = db.User
		overrides["database.credentialsSecret"] = db.CredentialsRef

		// Cloud SQL is only reachable through the proxy sidecar; the app
		// talks to the proxy on localhost.
		if db.RequiresProxy {
			overrides["database.host"] = "127.0.0.1"
			overrides["cloudsqlProxy.enabled"] = "true"
			overrides["cloudsqlProxy.instanceConnectionName"] = db.ProxyConnection
		}
	}

	return overrides, nil
}

// encryptionKey prefers the provisioning output and falls back to the
// config. Some stacks keep the key out of tool outputs on purpose.
func encryptionKey(cfg config.DeploymentConfig, infra *terraform.Outputs) string {
	if infra != nil && !infra.EncryptionKey.IsZero() {
		return infra.EncryptionKey.Reveal()
	}
	return cfg.App().EncryptionKey.Reveal()
}

// MarshalValues unflattens dotted override keys into the nested values
// document helm expects.
func MarshalValues(overrides map[string]string) ([]byte, error) {
	root := make(map[string]interface{})

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := insertValue(root, key, overrides[key]); err != nil {
			return nil, err
		}
	}

	return yaml.Marshal(root)
}

func insertValue(root map[string]interface{}, key, value string) error {
	parts := strings.Split(key, ".")
	node := root
	for i, part := range parts[:len(parts)-1] {
		child, ok := node[part]
		if !ok {
			next := make(map[string]interface{})
			node[part] = next
			node = next
			continue
		}
		next, ok := child.(map[string]interface{})
		if !ok {
			return fmt.Errorf("override key %q collides with scalar at %q", key, strings.Join(parts[:i+1], "."))
		}
		node = next
	}
	leaf := parts[len(parts)-1]
	if _, exists := node[leaf]; exists {
		if _, isMap := node[leaf].(map[string]interface{}); isMap {
			return fmt.Errorf("override key %q collides with nested block", key)
		}
	}
	node[leaf] = value
	return nil
}
