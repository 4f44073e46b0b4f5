package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nugget/loanagent/internal/bank"
	"github.com/nugget/loanagent/internal/defaults"
)

// runInit prepares a working directory: a default config.yaml and a
// SQLite bank database holding the demo customers. An existing config is
// never overwritten; the demo rows are rewritten on every run.
func runInit(ctx context.Context, w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing loanagent workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	dbPath := filepath.Join(dataDir, "bank.db")
	store, err := bank.Open(bank.Options{Driver: bank.DriverSQLite, DSN: dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate %s: %w", dbPath, err)
	}
	if err := store.Seed(ctx); err != nil {
		return fmt.Errorf("seed %s: %w", dbPath, err)
	}
	fmt.Fprintf(w, "  ✓ %s (%d demo customers)\n", dbPath, len(bank.DemoAccounts))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to choose a model, then run: loanagent serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist. The config may hold API keys, hence perm.
func writeIfMissing(path string, content []byte, perm os.FileMode) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, perm)
}
