// =============================================================================
// 📦 aimodal 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Backend:    DefaultBackendConfig(),
		Text:       DefaultTextConfig(),
		Generation: DefaultGenerationConfig(),
		Store:      DefaultStoreConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultBackendConfig 返回默认后端配置
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:         "http://localhost:8000",
		Timeout:         60 * time.Second,
		TransferTimeout: 0,
		UserAgent:       "aimodal",
	}
}

// DefaultTextConfig 返回默认文本处理配置
func DefaultTextConfig() TextConfig {
	return TextConfig{
		DefaultProvider: "openai",
		Model:           "gpt-3.5-turbo",
		MaxTokens:       150,
	}
}

// DefaultGenerationConfig 返回默认视频生成配置
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		DefaultProvider: "replicate",
		PollInterval:    2 * time.Second,
	}
}

// DefaultStoreConfig 返回默认会话存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Driver:    "sqlite",
		Path:      "",
		RedisAddr: "localhost:6379",
		RedisDB:   0,
		KeyPrefix: "aimodal",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "warn",
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
		ServiceName:  "aimodal",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   false,
		Addr:      ":9091",
		Namespace: "aimodal",
	}
}
