package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/mleitner/bankmatch/internal/booking"
	"github.com/mleitner/bankmatch/internal/config"
	"github.com/mleitner/bankmatch/internal/engine"
	"github.com/mleitner/bankmatch/internal/hibiscus"
	"github.com/mleitner/bankmatch/internal/ledgermatch"
	"github.com/mleitner/bankmatch/internal/match"
	"github.com/mleitner/bankmatch/internal/service"
	"github.com/mleitner/bankmatch/internal/storage"
)

// initStorage opens the database with path expansion and runs migrations.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/bankmatch/bankmatch.db"
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// matchConfig builds the classifier configuration from viper.
func matchConfig() match.Config {
	cfg := match.DefaultConfig()
	if v := viper.GetString("matching.naming_series"); v != "" {
		cfg.NamingSeries = v
	}
	if v := viper.GetString("matching.series_prefix"); v != "" {
		cfg.SeriesPrefix = v
	}
	if v := viper.GetString("matching.return_prefix"); v != "" {
		cfg.ReturnPrefix = v
	}
	if v := viper.GetInt("matching.max_candidates"); v > 0 {
		cfg.MaxCandidates = v
	}
	return cfg
}

// initPipeline builds the classifier, booking engine and batch runner.
func initPipeline(store *storage.SQLiteStorage, showProgress bool) (*match.Classifier, *booking.Engine, *engine.Engine, error) {
	classifier, err := match.NewClassifier(store, matchConfig())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	booker := booking.NewEngine(store, booking.Config{
		AutoSubmit: viper.GetBool("booking.auto_submit"),
	})

	engineCfg := engine.DefaultConfig()
	engineCfg.ShowProgress = showProgress
	if v := viper.GetInt("batch.progress_every"); v > 0 {
		engineCfg.ProgressEvery = v
	}
	batch := engine.New(store, store.NewJobStatusStore(), classifier, booker, engineCfg)

	return classifier, booker, batch, nil
}

// initHibiscus builds the Hibiscus client and importer from config.
func initHibiscus(store *storage.SQLiteStorage) (*hibiscus.Importer, error) {
	client, err := hibiscus.NewClient(hibiscus.Config{
		Host:           viper.GetString("hibiscus.host"),
		Port:           viper.GetInt("hibiscus.port"),
		MasterPassword: viper.GetString("hibiscus.master_password"),
		IgnoreCert:     viper.GetBool("hibiscus.ignore_cert"),
		Timeout:        viper.GetDuration("hibiscus.timeout"),
	})
	if err != nil {
		return nil, err
	}
	retry := service.RetryOptions{
		MaxAttempts:  viper.GetInt("hibiscus.retry_attempts"),
		InitialDelay: viper.GetDuration("hibiscus.retry_delay"),
	}
	return hibiscus.NewImporter(client, store, retry), nil
}

// initLedgerMatcher wires the external ledger if one is configured,
// otherwise returns nil.
func initLedgerMatcher(store *storage.SQLiteStorage) (*ledgermatch.Matcher, *ledgermatch.SQLStore, error) {
	dsn := viper.GetString("ledger.dsn")
	if dsn == "" {
		return nil, nil, nil
	}
	driver := viper.GetString("ledger.driver")
	if driver == "" {
		driver = "sqlite3"
	}
	ledgerStore, err := ledgermatch.OpenSQLStore(driver, config.ExpandPath(dsn))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	grace := viper.GetDuration("ledger.grace_period")
	if grace == 0 {
		grace = 72 * time.Hour
	}
	return ledgermatch.NewMatcher(store, ledgerStore, grace), ledgerStore, nil
}
