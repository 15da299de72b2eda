package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/raincast/internal/domain"
)

// Credentials locate and authorise the blob storage bucket.
type Credentials struct {
	Bucket string `yaml:"bucket"`
	// CredentialsFile is a service account key file. Empty means
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
	// CredentialsJSON is an inline service account key, used when
	// CredentialsFile is empty.
	CredentialsJSON string `yaml:"credentials_json"`
}

// LoadCredentials reads the YAML credentials file at path.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.MissingInputError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode credentials %s: %w", path, err)
	}
	if c.Bucket == "" {
		return nil, fmt.Errorf("%w: credentials %s: bucket is required", domain.ErrInvalidInput, path)
	}
	return &c, nil
}
