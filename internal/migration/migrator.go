package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/internal/runstore"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

// Dialect 数据库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// DefaultTable 版本表名
const DefaultTable = "schema_migrations"

// ParseDialect 解析方言名称
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// Status 单个迁移的状态
type Status struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Info 当前迁移状态摘要
type Info struct {
	CurrentVersion    uint
	Dirty             bool
	TotalMigrations   int
	AppliedMigrations int
	PendingMigrations int
}

// Migrator 运行记录表的版本化迁移
type Migrator struct {
	dialect Dialect
	migrate *migrate.Migrate
	logger  *zap.Logger
}

// Open 按数据库配置打开连接并创建迁移器。关闭迁移器时连接一并关闭。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Migrator, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	gdb, err := runstore.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	m, err := New(db, dialect, DefaultTable, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// New 基于已有连接创建迁移器
func New(db *sql.DB, dialect Dialect, table string, logger *zap.Logger) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == "" {
		table = DefaultTable
	}

	driver, err := databaseDriver(db, dialect, table)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, sourcePath(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &Migrator{
		dialect: dialect,
		migrate: mg,
		logger:  logger.With(zap.String("component", "migration"), zap.String("dialect", string(dialect))),
	}, nil
}

func databaseDriver(db *sql.DB, dialect Dialect, table string) (database.Driver, error) {
	switch dialect {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{
			MigrationsTable:       table,
			MultiStatementEnabled: true,
		})
	case DialectMySQL:
		// 多语句依赖 DSN 中的 multiStatements=true
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case DialectSQLite:
		return sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dialect)
	}
}

func sourcePath(dialect Dialect) string {
	return "migrations/" + string(dialect)
}

func ignoreNoChange(op string, err error) error {
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", op, err)
	}
	return nil
}

// Up 应用全部待执行迁移
func (m *Migrator) Up(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNoChange("up", m.migrate.Up())
}

// Down 回滚最近一次迁移
func (m *Migrator) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNoChange("down", m.migrate.Steps(-1))
}

// DownAll 回滚全部迁移
func (m *Migrator) DownAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNoChange("down all", m.migrate.Down())
}

// Steps 正数前进 n 步，负数回滚 n 步
func (m *Migrator) Steps(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNoChange("steps", m.migrate.Steps(n))
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ignoreNoChange("goto", m.migrate.Migrate(version))
}

// Force 直接设置版本号并清除 dirty 标记，不执行 SQL
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	m.logger.Warn("migration version forced", zap.Int("version", version))
	return nil
}

// Version 返回当前版本；未执行过迁移时为 0
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status 列出全部迁移及其状态
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	files, err := available(m.dialect)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(files))
	for _, f := range files {
		statuses = append(statuses, Status{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return statuses, nil
}

// Info 返回迁移摘要
func (m *Migrator) Info(ctx context.Context) (*Info, error) {
	statuses, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{TotalMigrations: len(statuses)}
	for _, s := range statuses {
		if s.Applied {
			info.AppliedMigrations++
			info.CurrentVersion = s.Version
		}
		if s.Dirty {
			info.Dirty = true
		}
	}
	info.PendingMigrations = info.TotalMigrations - info.AppliedMigrations
	return info, nil
}

// Close 释放迁移器与底层连接
func (m *Migrator) Close() error {
	srcErr, dbErr := m.migrate.Close()
	return errors.Join(srcErr, dbErr)
}

type migrationFile struct {
	version uint
	name    string
}

// available 读取内嵌的迁移文件，文件名形如 000001_run_history.up.sql
func available(dialect Dialect) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, sourcePath(dialect))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []migrationFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.ParseUint(prefix, 10, 32)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(rest, ".up.sql"),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
