package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/crewflow/agent/crews"
	"github.com/BaSui01/crewflow/config"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// 运行状态
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNotFound 运行记录不存在
var ErrNotFound = errors.New("run not found")

// RunRecord 一次 kickoff 的记录
type RunRecord struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Crew        string       `gorm:"size:128;index" json:"crew"`
	Status      string       `gorm:"size:16;index" json:"status"`
	Inputs      string       `gorm:"type:text" json:"inputs"`
	Output      string       `gorm:"type:text" json:"output,omitempty"`
	Error       string       `gorm:"type:text" json:"error,omitempty"`
	TotalTokens int          `json:"total_tokens"`
	StartedAt   time.Time    `gorm:"index" json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Tasks       []TaskRecord `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"tasks,omitempty"`
}

// TaskRecord 任务输出记录
type TaskRecord struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	RunID      string `gorm:"size:36;index;index:idx_task_records_run_seq,priority:1" json:"run_id"`
	Seq        int    `gorm:"index:idx_task_records_run_seq,priority:2" json:"seq"`
	Name       string `gorm:"size:128" json:"name"`
	Agent      string `gorm:"size:256" json:"agent"`
	Raw        string `gorm:"type:text" json:"raw"`
	OutputPath string `gorm:"size:512" json:"output_path,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// InputsMap 解码输入
func (r *RunRecord) InputsMap() map[string]any {
	out := map[string]any{}
	_ = json.Unmarshal([]byte(r.Inputs), &out)
	return out
}

// Store 运行记录存储
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// dialector 按驱动名选择 GORM 方言
func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenDB 按配置打开 GORM 连接，不做迁移
func OpenDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// Open 打开数据库并迁移表结构
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return New(db, cfg, logger)
}

// New 基于已有的 GORM 连接创建 Store
func New(db *gorm.DB, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if !cfg.DisableAutoMigrate {
		if err := db.AutoMigrate(&RunRecord{}, &TaskRecord{}); err != nil {
			return nil, fmt.Errorf("migrate run tables: %w", err)
		}
	}

	s := &Store{
		db:     db,
		sqlDB:  sqlDB,
		logger: logger.With(zap.String("component", "runstore")),
	}
	s.logger.Info("run store initialized",
		zap.String("driver", cfg.Driver),
		zap.Int("max_open_conns", cfg.MaxOpenConns))
	return s, nil
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("run store is closed")
	}
	return s.db.WithContext(ctx), nil
}

// Start 记录一次开始的运行
func (s *Store) Start(ctx context.Context, id, crew string, inputs map[string]any) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	raw, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	rec := &RunRecord{
		ID:        id,
		Crew:      crew,
		Status:    StatusRunning,
		Inputs:    string(raw),
		StartedAt: time.Now().UTC(),
	}
	if err := db.Create(rec).Error; err != nil {
		return fmt.Errorf("create run %s: %w", id, err)
	}
	return nil
}

// RecordTask 保存一个已完成任务的输出
func (s *Store) RecordTask(ctx context.Context, runID string, index int, out *crews.TaskOutput) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	rec := &TaskRecord{
		RunID:      runID,
		Seq:        index,
		Name:       out.Name,
		Agent:      out.Agent,
		Raw:        out.String(),
		OutputPath: out.OutputPath,
		DurationMS: out.Duration.Milliseconds(),
	}
	return withRetry(ctx, 3, s.logger, func() error {
		return db.Create(rec).Error
	})
}

// Finish 写入最终状态；runErr 非空时状态为 failed
func (s *Store) Finish(ctx context.Context, id string, out *crews.CrewOutput, runErr error) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      StatusSucceeded,
		"finished_at": &now,
	}
	if out != nil {
		updates["output"] = out.String()
		updates["total_tokens"] = out.TokenUsage.TotalTokens
	}
	if runErr != nil {
		updates["status"] = StatusFailed
		updates["error"] = runErr.Error()
	}

	return withRetry(ctx, 3, s.logger, func() error {
		res := db.Model(&RunRecord{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil
	})
}

// Get 读取运行及其任务
func (s *Store) Get(ctx context.Context, id string) (*RunRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rec RunRecord
	err = db.Preload("Tasks", func(tx *gorm.DB) *gorm.DB { return tx.Order("seq") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &rec, nil
}

// List 返回最近的运行（不含任务），crew 为空时不过滤
func (s *Store) List(ctx context.Context, crew string, limit int) ([]RunRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := db.Order("started_at DESC").Limit(limit)
	if crew != "" {
		q = q.Where("crew = ?", crew)
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return recs, nil
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("run store is closed")
	}
	return s.sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sqlDB.Close()
}

// withRetry 对死锁、连接中断等临时错误做指数退避重试
func withRetry(ctx context.Context, maxRetries int, logger *zap.Logger, fn func() error) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}
		logger.Warn("database write failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("database write failed after %d retries: %w", maxRetries, lastErr)
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"deadlock",
		"serialization failure", "40001",
		"connection reset", "connection refused", "broken pipe",
		"lock timeout", "lock wait timeout",
		"database is locked",
		"bad connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
