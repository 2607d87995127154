// =============================================================================
// 📦 crewflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("crewflow.yaml").
//	    WithValidator((*config.Config).Validate).
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（CREWFLOW_ 前缀）
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "CREWFLOW"

// SerperAPIKeyEnv 未在配置中设置 serper key 时读取的环境变量
const SerperAPIKeyEnv = "SERPER_API_KEY"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 crewflow 的完整配置结构
type Config struct {
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Tools     ToolsConfig     `yaml:"tools" env:"TOOLS"`
	Crew      CrewConfig      `yaml:"crew" env:"CREW"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 模型引用，形如 provider/model
	Model   string `yaml:"model" env:"MODEL"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	// 请求超时（本地推理模型需要较长时间）
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries  int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Temperature float64       `yaml:"temperature" env:"TEMPERATURE"`
	// RPS > 0 时限制请求速率
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
	// 保留 <think> 推理块
	KeepThinking bool `yaml:"keep_thinking" env:"KEEP_THINKING"`
}

// ToolsConfig 抓取与搜索工具配置
type ToolsConfig struct {
	SerperAPIKey     string        `yaml:"serper_api_key" env:"SERPER_API_KEY"`
	SerperURL        string        `yaml:"serper_url" env:"SERPER_URL"`
	SearchMaxResults int           `yaml:"search_max_results" env:"SEARCH_MAX_RESULTS"`
	SearchTimeout    time.Duration `yaml:"search_timeout" env:"SEARCH_TIMEOUT"`
	ScrapeMaxLength  int           `yaml:"scrape_max_length" env:"SCRAPE_MAX_LENGTH"`
	ScrapeTimeout    time.Duration `yaml:"scrape_timeout" env:"SCRAPE_TIMEOUT"`
	// 缓存后端: memory, redis, none
	CacheBackend    string        `yaml:"cache_backend" env:"CACHE_BACKEND"`
	CacheTTL        time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	CacheMaxEntries int           `yaml:"cache_max_entries" env:"CACHE_MAX_ENTRIES"`
}

// CrewConfig crew 运行配置
type CrewConfig struct {
	// 任务输出文件的根目录
	OutputDir     string `yaml:"output_dir" env:"OUTPUT_DIR"`
	MaxIterations int    `yaml:"max_iterations" env:"MAX_ITERATIONS"`
	// 关闭后 human_input 任务直接接受输出
	HumanInput bool `yaml:"human_input" env:"HUMAN_INPUT"`
	Verbose    bool `yaml:"verbose" env:"VERBOSE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller     bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DatabaseConfig 运行记录数据库配置
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: sqlite, postgres, mysql
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 时为文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	// DisableAutoMigrate 为 true 时不在启动时建表，表结构由 crewflow migrate 管理
	DisableAutoMigrate bool `yaml:"disable_auto_migrate" env:"DISABLE_AUTO_MIGRATE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ServerConfig HTTP API 配置
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 同时运行的 kickoff 上限
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" env:"MAX_CONCURRENT_RUNS"`
	// websocket 流接口允许的跨域来源，如 "app.example.com"
	WSOriginPatterns []string `yaml:"ws_origin_patterns" env:"WS_ORIGIN_PATTERNS"`
	// /api/v1 的 Bearer 认证；Secret 与 PublicKey 均为空时关闭
	Auth JWTConfig `yaml:"auth" env:"AUTH"`
}

// JWTConfig JWT 认证配置，支持 HS256（Secret）与 RS256（PublicKey PEM）
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了任一校验密钥
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnv 替换环境变量来源（测试用）
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	if cfg.Tools.SerperAPIKey == "" {
		if key, ok := l.lookupEnv(SerperAPIKeyEnv); ok {
			cfg.Tools.SerperAPIKey = key
		}
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置；显式指定的文件必须存在
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 验证
// =============================================================================

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !strings.Contains(c.LLM.Model, "/") {
		errs = append(errs, fmt.Sprintf("llm.model %q must look like provider/model", c.LLM.Model))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}
	if c.Crew.MaxIterations <= 0 {
		errs = append(errs, "crew.max_iterations must be positive")
	}
	switch c.Tools.CacheBackend {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Sprintf("tools.cache_backend %q must be memory, redis or none", c.Tools.CacheBackend))
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite", "postgres", "mysql":
		default:
			errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
		}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not supported", c.Log.Level))
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid server.http_port")
	}
	if k := c.Server.Auth.PublicKey; k != "" {
		if _, err := jwt.ParseRSAPublicKeyFromPEM([]byte(k)); err != nil {
			errs = append(errs, fmt.Sprintf("server.auth.public_key: %v", err))
		}
	}
	if n := len(c.Server.Auth.Secret); n > 0 && n < 32 {
		errs = append(errs, "server.auth.secret must be at least 32 bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
