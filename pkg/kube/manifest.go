package kube

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ManagedByLabel marks resources this tool created so teardown can find
// them without guessing.
const ManagedByLabel = "app.kubernetes.io/managed-by=n8nctl"

type objectMeta struct {
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type secretManifest struct {
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Metadata   objectMeta        `json:"metadata"`
	Type       string            `json:"type,omitempty"`
	Data       map[string]string `json:"data"`
}

// SecretManifest renders an Opaque secret as a JSON manifest suitable for
// ApplyManifest. Values are base64-encoded per the Kubernetes API.
func SecretManifest(name, namespace string, data map[string][]byte) ([]byte, error) {
	return secretJSON(name, namespace, "Opaque", data)
}

// TLSSecretManifest renders a kubernetes.io/tls secret from PEM-encoded
// certificate and key material.
func TLSSecretManifest(name, namespace string, certPEM, keyPEM []byte) ([]byte, error) {
	if len(certPEM) == 0 || len(keyPEM) == 0 {
		return nil, fmt.Errorf("tls secret %s requires both certificate and key material", name)
	}
	return secretJSON(name, namespace, "kubernetes.io/tls", map[string][]byte{
		"tls.crt": certPEM,
		"tls.key": keyPEM,
	})
}

func secretJSON(name, namespace, secretType string, data map[string][]byte) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("secret manifest requires a name")
	}

	encoded := make(map[string]string, len(data))
	for k, v := range data {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}

	manifest := secretManifest{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata: objectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "n8nctl"},
		},
		Type: secretType,
		Data: encoded,
	}
	return json.Marshal(manifest)
}
