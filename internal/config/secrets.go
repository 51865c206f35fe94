package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	if p := os.Getenv("OUTING_SECRETS_FILE"); p != "" {
		return p
	}
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// secretsFile reads API keys from a 0600 JSON file shaped
// {"outing": {"proxy.openrouter_api_key": "..."}}.
type secretsFile struct {
	path string // empty means secretsFilePath()
}

func (s secretsFile) Get(service, account string) (string, error) {
	p := s.path
	if p == "" {
		p = secretsFilePath()
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	svc, ok := secrets[service]
	if !ok {
		return "", fmt.Errorf("service %q not found", service)
	}
	val, ok := svc[account]
	if !ok {
		return "", fmt.Errorf("account %q not found in service %q", account, service)
	}
	return val, nil
}

// SetSecret stores a secret config key in the secrets file.
func SetSecret(key, value string) error {
	p := secretsFilePath()

	var secrets map[string]map[string]string
	if data, err := os.ReadFile(p); err == nil {
		_ = json.Unmarshal(data, &secrets)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets["outing"] == nil {
		secrets["outing"] = make(map[string]string)
	}
	secrets["outing"][key] = value

	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, out, 0o600)
}
