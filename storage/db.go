package storage

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Drivers suportados por DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

//go:embed migrations
var migrationsFS embed.FS

func init() {
	// modernc registra o driver como "sqlite", que o sqlx não conhece.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// DB representa a conexão com o banco de dados relacional.
type DB struct {
	*sqlx.DB
	driver string
	log    *zap.Logger
}

// Connect abre a conexão e confirma com um ping, sem aplicar migrações.
func Connect(driver, dataSourceName string, log *zap.Logger) (*DB, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("driver de banco não suportado: %q", driver)
	}
	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	if driver == DriverSQLite {
		// Um único escritor evita SQLITE_BUSY entre conexões do pool.
		db.SetMaxOpenConns(1)
	}
	log.Info("conexão com o banco estabelecida", zap.String("driver", driver))
	return &DB{DB: db, driver: driver, log: log}, nil
}

// NewDB conecta-se ao banco e executa as migrações pendentes.
func NewDB(driver, dataSourceName string, log *zap.Logger) (*DB, error) {
	db, err := Connect(driver, dataSourceName, log)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(migrate.Up, 0); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Driver devolve o nome do driver em uso.
func (d *DB) Driver() string {
	return d.driver
}

// Migrate aplica (ou desfaz) até max migrações do dialeto. max = 0 aplica todas.
func (d *DB) Migrate(dir migrate.MigrationDirection, max int) (int, error) {
	return runMigrations(d.DB.DB, d.driver, dir, max, d.log)
}

// runMigrations executa as migrações embutidas usando sql-migrate.
func runMigrations(db *sql.DB, driver string, dir migrate.MigrationDirection, max int, log *zap.Logger) (int, error) {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations/" + driver,
	}
	dialect := "postgres"
	if driver == DriverSQLite {
		dialect = "sqlite3"
	}

	n, err := migrate.ExecMax(db, dialect, source, dir, max)
	if err != nil {
		return 0, fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		log.Info("migrações aplicadas", zap.Int("count", n), zap.String("driver", driver))
	} else {
		log.Debug("nenhuma migração nova para aplicar")
	}
	return n, nil
}
