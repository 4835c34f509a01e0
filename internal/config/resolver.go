package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/roster/internal/persist"
)

// Resolver resolves Paths once and caches the result until Invalidate.
// Pass it to whatever needs storage locations; there is no package-level
// cache.
//
// Thread-safety: Resolver is safe for concurrent use via internal mutex.
type Resolver struct {
	// Getwd and UserHomeDir default to the os functions. Tests replace them.
	Getwd       func() (string, error)
	UserHomeDir func() (string, error)

	mu     sync.Mutex
	cached *Paths
}

// NewResolver returns a resolver reading the real environment.
func NewResolver() *Resolver {
	return &Resolver{
		Getwd:       os.Getwd,
		UserHomeDir: os.UserHomeDir,
	}
}

// Paths returns the resolved configuration, resolving it on first use.
func (r *Resolver) Paths() (Paths, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil {
		return *r.cached, nil
	}
	p, err := r.resolve()
	if err != nil {
		return Paths{}, err
	}
	r.cached = &p
	return p, nil
}

// Invalidate drops the cached result so the next Paths call re-reads the
// environment and deployment file.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cached = nil
}

func (r *Resolver) resolve() (Paths, error) {
	env, err := LoadEnv()
	if err != nil {
		return Paths{}, err
	}
	cwd, err := r.Getwd()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve working directory: %w", err)
	}
	home, err := r.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolve home directory: %w", err)
	}

	deployment, source, err := findDeployment(env.Config, cwd, home)
	if err != nil {
		return Paths{}, err
	}

	p := Paths{
		SharedDir:    cwd,
		LocalDir:     filepath.Join(home, LocalDirName),
		Backend:      persist.KindFile,
		HistoryLimit: 0,
		Deployment:   source,
	}
	if deployment != nil {
		if err := apply(&p, deployment.SharedDataPath, deployment.LocalConfigPath, deployment.Backend); err != nil {
			return Paths{}, fmt.Errorf("deployment file %s: %w", source, err)
		}
		if deployment.HistoryLimit > 0 {
			p.HistoryLimit = deployment.HistoryLimit
		}
	}
	if err := apply(&p, env.SharedDir, env.LocalDir, env.Backend); err != nil {
		return Paths{}, fmt.Errorf("%s_* environment: %w", EnvPrefix, err)
	}
	if env.HistoryLimit > 0 {
		p.HistoryLimit = env.HistoryLimit
	}
	return p, nil
}

// apply overrides p with every non-empty value.
func apply(p *Paths, shared, local, backend string) error {
	var err error
	if shared = strings.TrimSpace(shared); shared != "" {
		if p.SharedDir, err = absPath(shared); err != nil {
			return err
		}
	}
	if local = strings.TrimSpace(local); local != "" {
		if p.LocalDir, err = absPath(local); err != nil {
			return err
		}
	}
	if backend = strings.ToLower(strings.TrimSpace(backend)); backend != "" {
		switch backend {
		case persist.KindFile, persist.KindSQLite:
			p.Backend = backend
		default:
			return fmt.Errorf("unknown backend %q", backend)
		}
	}
	return nil
}

// findDeployment returns the first deployment file that exists among the
// explicit path, the working directory, and the default local directory.
func findDeployment(explicit, cwd, home string) (*Deployment, string, error) {
	var candidates []string
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		path, err := absPath(explicit)
		if err != nil {
			return nil, "", err
		}
		candidates = append(candidates, path)
	}
	candidates = append(candidates,
		filepath.Join(cwd, DeploymentFile),
		filepath.Join(home, LocalDirName, DeploymentFile),
	)

	for _, path := range candidates {
		d, err := LoadDeployment(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return d, path, nil
	}
	return nil, "", nil
}
