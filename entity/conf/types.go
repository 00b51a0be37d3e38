package conf

import "time"

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr        string `yaml:"addr" mapstructure:"addr"`                 // 前端 HTTP 监听地址
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"` // prometheus 指标监听地址，为空则不启动
}

// LogConfig 日志配置
type LogConfig struct {
	File  string `yaml:"file" mapstructure:"file"`   // 日志文件路径
	Level string `yaml:"level" mapstructure:"level"` // 日志级别
}

// ToolConfig 金融工具服务配置
type ToolConfig struct {
	Transport     string        `yaml:"transport" mapstructure:"transport"`           // 调用方式：http 或 mcp
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`             // 工具服务基础地址
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`               // 单次调用超时
	HealthTimeout time.Duration `yaml:"health_timeout" mapstructure:"health_timeout"` // 健康检查超时
	MCPServer     string        `yaml:"mcp_server" mapstructure:"mcp_server"`         // transport 为 mcp 时使用的 MCP 服务名
}

// MCPServerConfig MCP服务器配置
type MCPServerConfig struct {
	Command string            `yaml:"command" mapstructure:"command"`             // MCP服务器启动命令
	Args    []string          `yaml:"args" mapstructure:"args"`                   // 命令行参数列表
	Env     map[string]string `yaml:"env,omitempty" mapstructure:"env,omitempty"` // 环境变量映射，可选配置
	URL     string            `yaml:"url,omitempty" mapstructure:"url,omitempty"` // SSE 地址，配置后使用 SSE 传输
	Headers []string          `yaml:"headers,omitempty" mapstructure:"headers,omitempty"`
}

// MCPConfig MCP配置
type MCPConfig struct {
	Servers map[string]MCPServerConfig `yaml:"servers" mapstructure:"servers"` // MCP服务器配置映射，key为服务器名称
}

// Model 单个模型配置
type Model struct {
	ModelID    string        `yaml:"model_id" mapstructure:"model_id"`                   // 模型ID
	BaseURL    string        `yaml:"base_url" mapstructure:"base_url"`                   // 模型服务的基础URL地址
	APIKey     string        `yaml:"api_key" mapstructure:"api_key"`                     // 模型服务的API密钥
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`                     // 单次请求超时
	RawBaseURL string        `yaml:"raw_base_url,omitempty" mapstructure:"raw_base_url"` // 原生接口地址，主通道失败时使用
	JSONSchema bool          `yaml:"json_schema,omitempty" mapstructure:"json_schema"`   // 是否使用 JSON Schema 响应格式
}

// ModelConfig 模型配置
type ModelConfig struct {
	Fast       Model `yaml:"fast" mapstructure:"fast"`               // 本地快速模型，用于阶段内的工具选择
	Strong     Model `yaml:"strong" mapstructure:"strong"`           // 远端强模型，用于综合与结构化输出
	Embedding  Model `yaml:"embedding" mapstructure:"embedding"`     // 向量化模型，走 fast 后端的原生接口
	MaxRetries int   `yaml:"max_retries" mapstructure:"max_retries"` // 单次调用的最大重试次数
}

// RedisConfig redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// VectorConfig 长期记忆向量库配置
type VectorConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Path       string `yaml:"path" mapstructure:"path"`             // sqlite 文件路径
	Collection string `yaml:"collection" mapstructure:"collection"` // 集合名
	VectorSize int    `yaml:"vector_size" mapstructure:"vector_size"`
}

// MemoryConfig 记忆配置
type MemoryConfig struct {
	Redis        RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Vector       VectorConfig  `yaml:"vector" mapstructure:"vector"`
	ShortTermTTL time.Duration `yaml:"short_term_ttl" mapstructure:"short_term_ttl"` // 短期记忆过期时间
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`               // 单次读写超时
}

// BrokerConfig 消息代理配置
type BrokerConfig struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"` // kafka | nats | redis | log
	Brokers         []string      `yaml:"brokers" mapstructure:"brokers"`
	NATSURL         string        `yaml:"nats_url" mapstructure:"nats_url"`
	RedisAddr       string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	PublishTimeout  time.Duration `yaml:"publish_timeout" mapstructure:"publish_timeout"`
	ConsumeDeposits bool          `yaml:"consume_deposits" mapstructure:"consume_deposits"` // 是否消费入账事件启动流水线
}

// CheckpointConfig 检查点配置
type CheckpointConfig struct {
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`                       // 挂起状态的保留时间
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"` // 清理周期
}

// SettingConfig 应用运行配置
type SettingConfig struct {
	AutoApprove   bool `yaml:"auto_approve" mapstructure:"auto_approve"`       // 是否自动批准最终建议
	MaxLimitToken int  `yaml:"max_limit_token" mapstructure:"max_limit_token"` // 单条提示词最大长度
}

// AppConfig 应用配置
type AppConfig struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Tool       ToolConfig       `yaml:"tool" mapstructure:"tool"`
	MCP        MCPConfig        `yaml:"mcp" mapstructure:"mcp"`     // MCP服务相关配置
	Model      ModelConfig      `yaml:"model" mapstructure:"model"` // 大语言模型相关配置
	Memory     MemoryConfig     `yaml:"memory" mapstructure:"memory"`
	Broker     BrokerConfig     `yaml:"broker" mapstructure:"broker"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Setting    SettingConfig    `yaml:"setting" mapstructure:"setting"` // 应用运行时配置参数
}
