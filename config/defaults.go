// =============================================================================
// 📦 crewflow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置：本地 Ollama + deepseek-r1:8b
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Tools:     DefaultToolsConfig(),
		Crew:      DefaultCrewConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Server:    DefaultServerConfig(),
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "ollama/deepseek-r1:8b",
		BaseURL:     "http://localhost:11434",
		Timeout:     10 * time.Minute,
		MaxRetries:  2,
		Temperature: 0.7,
	}
}

// DefaultToolsConfig 返回默认工具配置
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		SerperURL:        "https://google.serper.dev/search",
		SearchMaxResults: 10,
		SearchTimeout:    15 * time.Second,
		ScrapeMaxLength:  32 * 1024,
		ScrapeTimeout:    30 * time.Second,
		CacheBackend:     "memory",
		CacheTTL:         15 * time.Minute,
		CacheMaxEntries:  1000,
	}
}

// DefaultCrewConfig 返回默认 crew 配置
func DefaultCrewConfig() CrewConfig {
	return CrewConfig{
		OutputDir:     ".",
		MaxIterations: 15,
		HumanInput:    true,
		Verbose:       true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     false,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crewflow",
		SampleRate:   1.0,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crewflow",
		Name:            "crewflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		KeyPrefix:    "crewflow:",
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:          8080,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Minute,
		ShutdownTimeout:   15 * time.Second,
		MaxConcurrentRuns: 2,
	}
}
