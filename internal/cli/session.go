package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/roster/internal/config"
	"github.com/roach88/roster/internal/metrics"
	"github.com/roach88/roster/internal/persist"
	"github.com/roach88/roster/internal/selfbind"
	"github.com/roach88/roster/internal/store"
)

// session is an opened store plus the paths it was resolved from.
type session struct {
	paths   config.Paths
	backend persist.Backend
	store   *store.Store
	logger  *slog.Logger
}

// newLogger returns a text logger on w, DEBUG when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolvePaths applies --store and --backend on top of the configuration.
// A --store path ending in .db selects the SQLite backend unless --backend
// says otherwise.
func resolvePaths(opts *RootOptions) (config.Paths, error) {
	paths, err := config.NewResolver().Paths()
	if err != nil {
		return config.Paths{}, err
	}
	if opts.Backend != "" {
		paths.Backend = opts.Backend
	}
	if opts.Store != "" {
		abs, err := filepath.Abs(opts.Store)
		if err != nil {
			return config.Paths{}, err
		}
		paths.SharedDir = filepath.Dir(abs)
		paths.Document = abs
		if opts.Backend == "" && strings.EqualFold(filepath.Ext(abs), ".db") {
			paths.Backend = persist.KindSQLite
		}
	}
	return paths, nil
}

// openSession resolves the configuration and opens the store.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	paths, err := resolvePaths(opts)
	if err != nil {
		return nil, fmt.Errorf("resolve configuration: %w", err)
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}

	backend, err := persist.Open(paths.PersistOptions())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Debug("store opened", "backend", paths.Backend, "location", backend.Location())

	s := store.New(backend,
		store.WithLogger(logger),
		store.WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	return &session{paths: paths, backend: backend, store: s, logger: logger}, nil
}

// binder returns the self binding for this session's local directory.
func (s *session) binder() *selfbind.Binder {
	return selfbind.New(s.store, s.paths.SelfPath(), selfbind.WithLogger(s.logger))
}

// Close releases the backend.
func (s *session) Close() error {
	return s.backend.Close()
}

// withSession opens a session, runs fn, and closes the session. Open
// failures are reported through f.
func withSession(cmd *cobra.Command, opts *RootOptions, f *OutputFormatter, fn func(s *session) error) error {
	s, err := openSession(cmd, opts)
	if err != nil {
		return f.Fail(ExitCommandError, CodeStore, err)
	}
	defer s.Close()
	return fn(s)
}
