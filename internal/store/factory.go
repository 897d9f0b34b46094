package store

import "log/slog"

// NewStore builds the backend matching the configured DSN: Postgres for
// postgres DSNs, SQLite for file paths, and the in-memory store when no DSN
// was configured at all.
func NewStore(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return NewInMemoryStore(), nil
	}
	if DetectDSNType(cfg.DSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return NewPostgresStore(opts...)
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", cfg.DSN)
	return NewSQLiteStore(opts...)
}
