// Package registry is the compiler's durable record of which agents
// have asked for and received a compiled chain: a config struct with
// defaults and validation, a GORM-backed store type opened once at
// daemon startup, and plain methods instead of a repository-per-entity
// split, since nfgraph only tracks one table.
//
// Two backends are supported: sqlite (single-node default, schema via
// GORM AutoMigrate) and postgres (HA-capable, schema via versioned
// golang-migrate migrations, so the shared-database backend keeps one
// canonical source of truth for its schema).
package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for the migration connection
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DatabaseType selects the registry's backing database.
type DatabaseType string

const (
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypePostgres DatabaseType = "postgres"
)

// PostgresConfig holds the Postgres-specific half of Config; no
// pool-size tuning, a single-table registry doesn't need it.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full
}

// dsn renders the libpq connection string.
func (c *PostgresConfig) dsn() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config configures the registry's backing database.
type Config struct {
	// Type selects sqlite (default) or postgres. Zero value is sqlite.
	Type DatabaseType

	// Path is the sqlite database file. Defaults to
	// $XDG_CONFIG_HOME/nfgraph/registry.db. Ignored for postgres.
	Path string

	// Postgres is consulted only when Type is DatabaseTypePostgres.
	Postgres PostgresConfig
}

// ApplyDefaults fills in unset fields per backend.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, _ := os.UserHomeDir()
			configDir = filepath.Join(home, ".config")
		}
		c.Path = filepath.Join(configDir, "nfgraph", "registry.db")
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
}

// Registry records, for each agent that has contacted the compiler,
// the target it asked for and the chain it last received.
type Registry struct {
	db *gorm.DB
}

// Open connects to (creating if absent) the registry database and
// brings its schema up to date.
func Open(cfg *Config) (*Registry, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()

	var dialector gorm.Dialector
	switch cfg.Type {
	case DatabaseTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
		dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		if err := migratePostgres(cfg.Postgres.dsn()); err != nil {
			return nil, fmt.Errorf("migrate registry db: %w", err)
		}
		dialector = gormpostgres.Open(cfg.Postgres.dsn())

	default:
		return nil, fmt.Errorf("unsupported registry database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	// sqlite's schema is AutoMigrated on every startup; postgres's was
	// already brought up to date by migratePostgres above, so
	// AutoMigrate is skipped to keep one canonical source of truth
	// (the migration files) for the shared-database backend.
	if cfg.Type == DatabaseTypeSQLite {
		if err := db.AutoMigrate(AllModels()...); err != nil {
			return nil, fmt.Errorf("migrate registry db: %w", err)
		}
	}

	return &Registry{db: db}, nil
}

// migratePostgres applies every pending migration under migrations/
// via golang-migrate: a pgx-backed database/sql connection, an iofs
// source driver over the embedded migration files, and Up()
// tolerating ErrNoChange.
func migratePostgres(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "nfgraph_registry",
	})
	if err != nil {
		return fmt.Errorf("create postgres migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database connection.
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordRequest upserts an agent's most recent build request, called
// when chaind receives a RequestChain message.
func (r *Registry) RecordRequest(ctx context.Context, agentID, targetTriple string, at time.Time) error {
	rec := AgentRecord{
		AgentID:         agentID,
		TargetTriple:    targetTriple,
		LastRequestedAt: at,
	}
	return r.db.WithContext(ctx).
		Clauses(upsertRequestClause()).
		Create(&rec).Error
}

// RecordInstall marks that chainHash was successfully built and sent
// to agentID.
func (r *Registry) RecordInstall(ctx context.Context, agentID, chainHash string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&AgentRecord{}).
		Where("agent_id = ?", agentID).
		Updates(map[string]any{
			"chain_hash":        chainHash,
			"last_installed_at": at,
		}).Error
}

// Get returns the known record for an agent, if any.
func (r *Registry) Get(ctx context.Context, agentID string) (*AgentRecord, error) {
	var rec AgentRecord
	if err := r.db.WithContext(ctx).First(&rec, "agent_id = ?", agentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// List returns every known agent, newest request first, backing
// `chaind agents`.
func (r *Registry) List(ctx context.Context) ([]AgentRecord, error) {
	var recs []AgentRecord
	err := r.db.WithContext(ctx).Order("last_requested_at desc").Find(&recs).Error
	return recs, err
}
