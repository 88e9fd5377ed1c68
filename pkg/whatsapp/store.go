package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.mau.fi/whatsmeow/store/sqlstore"
	_ "modernc.org/sqlite"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/log"
)

const sqliteFileName = "session.db"

// StoreConfig selects where credentials live. Type is "sqlite" (a file under
// Dir) or "postgres" (URI).
type StoreConfig struct {
	Type string
	Dir  string
	URI  string
}

// OpenContainer opens the credential store and upgrades its schema.
func OpenContainer(ctx context.Context, cfg StoreConfig) (*sqlstore.Container, error) {
	driver, dsn, err := datastoreSource(cfg)
	if err != nil {
		return nil, err
	}

	log.Print(nil).Info("Initializing WhatsApp datastore with driver=" + driver)

	container, err := sqlstore.New(ctx, driver, dsn, log.WhatsMeow("Database"))
	if err != nil {
		return nil, fmt.Errorf("initialize WhatsApp datastore: %w", err)
	}
	if err := container.Upgrade(ctx); err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("upgrade operation failed: %w", err)
	}
	return container, nil
}

func datastoreSource(cfg StoreConfig) (string, string, error) {
	driver := normalizeDatastoreDriver(cfg.Type)
	switch driver {
	case "sqlite":
		dir := strings.TrimSpace(cfg.Dir)
		if dir == "" {
			dir = "auth_info"
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", "", fmt.Errorf("create session directory %s: %w", dir, err)
		}
		path := filepath.Join(dir, sqliteFileName)
		return driver, "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	case "pgx":
		if strings.TrimSpace(cfg.URI) == "" {
			return "", "", errors.New("SESSION_STORE_URI is required for the postgres session store")
		}
		return driver, normalizeDatastoreDSN(driver, cfg.URI), nil
	default:
		return "", "", fmt.Errorf("unsupported session store type %q", cfg.Type)
	}
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "", "sqlite", "sqlite3", "file":
		return "sqlite"
	default:
		return strings.ToLower(driver)
	}
}

func normalizeDatastoreDSN(driver string, dsn string) string {
	if driver != "pgx" {
		return dsn
	}
	appendParam := func(current string, key string, value string) string {
		if strings.Contains(current, key+"=") {
			return current
		}
		separator := "?"
		if strings.Contains(current, "?") {
			if strings.HasSuffix(current, "?") || strings.HasSuffix(current, "&") {
				separator = ""
			} else {
				separator = "&"
			}
		}
		return current + separator + key + "=" + value
	}
	dsn = appendParam(dsn, "statement_cache_capacity", "0")
	dsn = appendParam(dsn, "default_query_exec_mode", "simple_protocol")
	return dsn
}
