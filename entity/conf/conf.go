package conf

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/HildaM/logs/slog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix 环境变量前缀，层级用双下划线分隔，如 FINFLOW_TOOL__BASE_URL
	EnvPrefix = "FINFLOW_"
)

var (
	// 配置读写锁，确保并发安全
	configMu sync.RWMutex
	// 文件提供者
	f *file.File
	// 缓存的配置实例
	appConf *AppConfig
)

// legacyEnv 部署环境中沿用的变量名
var legacyEnv = map[string]string{
	"MCP_BASE_URL":            "tool.base_url",
	"HF_TOKEN":                "model.strong.api_key",
	"HUGGINGFACE_API_KEY":     "model.strong.api_key",
	"KAFKA_BOOTSTRAP_SERVERS": "broker.brokers",
}

// Default 默认配置
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{Addr: ":8080", MetricsAddr: ":9090"},
		Log:    LogConfig{File: "logs/app.log", Level: "debug"},
		Tool: ToolConfig{
			Transport:     "http",
			BaseURL:       "http://mcp-finance-tools:4000",
			Timeout:       6 * time.Second,
			HealthTimeout: 5 * time.Second,
		},
		Model: ModelConfig{
			Fast: Model{
				ModelID:    "llama3.2:3b",
				BaseURL:    "http://localhost:11434/v1",
				APIKey:     "ollama",
				Timeout:    30 * time.Second,
				RawBaseURL: "http://localhost:11434",
			},
			Strong: Model{
				ModelID: "deepseek/deepseek-v3-0324",
				BaseURL: "https://router.huggingface.co/novita/v3/openai",
				Timeout: 30 * time.Second,
			},
			Embedding: Model{
				ModelID: "nomic-embed-text:latest",
				BaseURL: "http://localhost:11434",
				Timeout: 30 * time.Second,
			},
			MaxRetries: 2,
		},
		Memory: MemoryConfig{
			Redis:        RedisConfig{Enabled: true, Addr: "financial-redis:6379"},
			Vector:       VectorConfig{Enabled: true, Path: "data/memory.db", Collection: "financial_memory", VectorSize: 768},
			ShortTermTTL: 24 * time.Hour,
			Timeout:      3 * time.Second,
		},
		Broker: BrokerConfig{
			Driver:         "kafka",
			Brokers:        []string{"financial-kafka:9092"},
			NATSURL:        "nats://localhost:4222",
			RedisAddr:      "financial-redis:6379",
			PublishTimeout: 5 * time.Second,
		},
		Checkpoint: CheckpointConfig{TTL: time.Hour, SweepInterval: time.Minute},
		Setting:    SettingConfig{MaxLimitToken: 8000},
	}
}

// Init 初始化配置
func Init(path string) error {
	// 加载配置
	cfg, err := Load(path)
	if err != nil {
		return fmt.Errorf("Init config failed, load config err: %v", err)
	}
	configMu.Lock()
	appConf = cfg
	configMu.Unlock()

	// 启动配置文件监听
	startConfigWatch(path)

	// 初始化日志
	if err := slog.InitFile(cfg.Log.File, slog.WithLevel(cfg.Log.Level), slog.WithColor(false)); err != nil {
		return fmt.Errorf("Init log failed, err: %+v", err)
	}

	slog.Info("Init config: %+v", redacted(cfg))
	return nil
}

// Load 按 默认值 < 配置文件 < 环境变量 的顺序加载配置
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", legacyKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy env: %w", err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	// 解析配置到结构体，使用 yaml 标签；未出现的键保留默认值
	config := Default()
	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// envKey FINFLOW_MODEL__STRONG__API_KEY -> model.strong.api_key
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// legacyKey 只接收 legacyEnv 中的变量，其余返回空串被忽略
func legacyKey(s string) string {
	return legacyEnv[s]
}

// GetCfg 获取配置
func GetCfg() *AppConfig {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConf
}

// SetCfg 设置配置，测试与命令行覆盖使用
func SetCfg(cfg *AppConfig) {
	configMu.Lock()
	defer configMu.Unlock()
	appConf = cfg
}

// startConfigWatch 启动配置文件监听
func startConfigWatch(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		log.Printf("config file %s not found, watch disabled", path)
		return
	}
	f = file.Provider(path)

	// 监听文件变化并在变化时重新加载配置
	err := f.Watch(func(event interface{}, err error) {
		if err != nil {
			log.Printf("Config file watch error: %v", err)
			return
		}

		// 配置文件发生变化，重新加载
		log.Printf("Config file changed. Reloading...")
		config, err := Load(path)
		if err != nil {
			log.Printf("Failed to load reloaded config: %v", err)
			return
		}
		SetCfg(config)
		log.Printf("Config reloaded: %+v", redacted(config))
	})
	if err != nil {
		log.Printf("Config file watch failed: %v", err)
	}
}

// redacted 去掉密钥后用于日志输出
func redacted(cfg *AppConfig) AppConfig {
	cp := *cfg
	if cp.Model.Strong.APIKey != "" {
		cp.Model.Strong.APIKey = "***"
	}
	if cp.Model.Fast.APIKey != "" {
		cp.Model.Fast.APIKey = "***"
	}
	if cp.Memory.Redis.Password != "" {
		cp.Memory.Redis.Password = "***"
	}
	return cp
}
