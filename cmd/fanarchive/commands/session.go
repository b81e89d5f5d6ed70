package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"fanarchive/archive"
	"fanarchive/lib/configutil"

	badger "github.com/dgraph-io/badger/v4"
)

type Config struct {
	BaseUrl     string `json:"base_url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	MaxRequests int    `json:"max_requests"`
	CacheDir    string `json:"cache_dir"`
}

// newSession builds a session from fanarchive.json5 in the cwd. A
// missing config yields an anonymous session against the default
// archive. The returned cleanup closes the page cache, when one was
// configured.
func newSession(ctx context.Context) (*archive.Session, func()) {
	cfg, err := configutil.ReadConfig[Config]("fanarchive.json5")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fatal("failed to read config", err)
	}

	opts := archive.SessionOptions{
		BaseUrl:     cfg.BaseUrl,
		MaxRequests: cfg.MaxRequests,
	}

	cleanup := func() {}
	if cfg.CacheDir != "" {
		db, err := badger.Open(badger.DefaultOptions(cfg.CacheDir).WithLogger(nil))
		if err != nil {
			fatal("failed to open page cache", err)
		}
		opts.Cache = db
		cleanup = func() {
			if err := db.Close(); err != nil {
				slog.Warn("failed to close page cache", "err", err)
			}
		}
	}

	if cfg.Username != "" {
		s, err := archive.Login(ctx, cfg.Username, cfg.Password, opts)
		if err != nil {
			fatal("failed to log in", err)
		}
		slog.Info("logged in", "username", s.Username())
		return s, cleanup
	}

	s, err := archive.NewSession(opts)
	if err != nil {
		fatal("failed to initialize session", err)
	}
	return s, cleanup
}
