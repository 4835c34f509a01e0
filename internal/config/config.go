// Package config resolves where the store lives.
//
// Sources, highest priority first:
//   - environment variables with the ROSTER_ prefix (SHARED_DIR, LOCAL_DIR,
//     CONFIG, BACKEND, HISTORY_LIMIT)
//   - a deployment file (YAML or JSON) at $ROSTER_CONFIG, ./roster.yaml, or
//     ~/Roster/roster.yaml, whichever exists first
//   - defaults: the working directory for shared data, ~/Roster for local
//     files, the file backend
//
// Shared data is the one document every writer uses. Local files (the self
// binding) belong to one user.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/roach88/roster/internal/persist"
)

const (
	// EnvPrefix prefixes every environment variable read by this package.
	EnvPrefix = "ROSTER"

	// DeploymentFile is the deployment file name searched in the working
	// directory and the local directory.
	DeploymentFile = "roster.yaml"

	// LocalDirName is the default local directory under the home directory.
	LocalDirName = "Roster"

	// DocumentFile and DatabaseFile name the shared document for the file
	// and SQLite backends.
	DocumentFile = "roster.json"
	DatabaseFile = "roster.db"

	// SelfFile holds the local self binding.
	SelfFile = "self.json"

	// DeploymentVersion is written into new deployment files.
	DeploymentVersion = "1.0"
)

// Env is the environment layer.
type Env struct {
	SharedDir    string `envconfig:"SHARED_DIR"`
	LocalDir     string `envconfig:"LOCAL_DIR"`
	Config       string `envconfig:"CONFIG"`
	Backend      string `envconfig:"BACKEND"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT"`
}

// LoadEnv reads the environment layer.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, fmt.Errorf("read %s_* environment: %w", EnvPrefix, err)
	}
	return env, nil
}

// Deployment is the deployment file layer.
type Deployment struct {
	SharedDataPath  string `yaml:"shared_data_path" json:"shared_data_path"`
	LocalConfigPath string `yaml:"local_config_path" json:"local_config_path"`
	Backend         string `yaml:"backend,omitempty" json:"backend,omitempty"`
	HistoryLimit    int    `yaml:"history_limit,omitempty" json:"history_limit,omitempty"`
	Version         string `yaml:"version" json:"version"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LoadDeployment parses a deployment file. JSON files parse too, since JSON
// is YAML.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployment file %s: %w", path, err)
	}
	return &d, nil
}

// WriteDeployment writes a deployment file at path, creating its directory.
// Paths are stored absolute. An empty local path defaults to ~/Roster.
func WriteDeployment(path string, d Deployment) error {
	shared, err := absPath(d.SharedDataPath)
	if err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	if shared == "" {
		return errors.New("write deployment: shared data path is required")
	}
	d.SharedDataPath = shared

	local := d.LocalConfigPath
	if local == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("write deployment: %w", err)
		}
		local = filepath.Join(home, LocalDirName)
	}
	if d.LocalConfigPath, err = absPath(local); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	if d.Version == "" {
		d.Version = DeploymentVersion
	}

	data, err := yaml.Marshal(&d)
	if err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write deployment: %w", err)
	}
	return nil
}

// Paths is the resolved storage configuration.
type Paths struct {
	SharedDir    string `json:"shared_dir"`
	LocalDir     string `json:"local_dir"`
	Backend      string `json:"backend"`
	HistoryLimit int    `json:"history_limit"`
	// Deployment is the deployment file that was read, or "".
	Deployment string `json:"deployment,omitempty"`
	// Document, when set, is used as the shared document path as is.
	Document string `json:"document,omitempty"`
}

// DocumentPath returns the shared document path for the configured backend.
func (p Paths) DocumentPath() string {
	if p.Document != "" {
		return p.Document
	}
	if p.Backend == persist.KindSQLite {
		return filepath.Join(p.SharedDir, DatabaseFile)
	}
	return filepath.Join(p.SharedDir, DocumentFile)
}

// SelfPath returns the local self binding path.
func (p Paths) SelfPath() string {
	return filepath.Join(p.LocalDir, SelfFile)
}

// PersistOptions returns options for persist.Open.
func (p Paths) PersistOptions() persist.Options {
	return persist.Options{
		Kind:         p.Backend,
		Path:         p.DocumentPath(),
		HistoryLimit: p.HistoryLimit,
	}
}

// EnsureDirs creates the shared and local directories.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.SharedDir, p.LocalDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// expandHome replaces a leading "~" with the home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// absPath expands "~" and makes path absolute. Empty stays empty.
func absPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	expanded, err := expandHome(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
