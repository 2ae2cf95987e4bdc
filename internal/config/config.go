package config

import (
	"errors"
	"os"
	"strings"
)

import (
	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCURL           = "https://mainnet.helius-rpc.com"
	DefaultCacheTTLSeconds  = 300
	DefaultAttemptTimeoutMs = 8000
	DefaultMaxAttempts      = 3
	DefaultRateLimitMax     = 10
	DefaultRateLimitWindow  = 60
)

// ServerCfg —— HTTP 服务端口/地址配置
type ServerCfg struct {
	HTTPAddr          string   `yaml:"httpAddr"`          // 监听地址，例如 ":8080"
	AllowedOrigins    []string `yaml:"allowedOrigins"`    // CORS origins, defaults to http://localhost:3000
	ShutdownTimeoutMs int      `yaml:"shutdownTimeoutMs"` // graceful shutdown budget
}

// RedisCfg —— Redis 连接与命名空间配置
type RedisCfg struct {
	URL                string   `yaml:"url"`                // redis:// or rediss:// URL, wins over addr
	Addr               string   `yaml:"addr"`               // Redis address, e.g. "127.0.0.1:6379"
	Addrs              []string `yaml:"addrs"`              // Optional cluster addresses
	Password           string   `yaml:"password"`           // Redis password / token
	DB                 int      `yaml:"db"`                 // Redis DB index
	Prefix             string   `yaml:"prefix"`             // Key prefix, empty keeps bare keys
	PoolSize           int      `yaml:"poolSize"`           // Connection pool size
	MinIdleConns       int      `yaml:"minIdleConns"`       // Minimum idle connections
	MaxRetries         int      `yaml:"maxRetries"`         // Command retry count
	ReadTimeoutMs      int      `yaml:"readTimeoutMs"`      // Read timeout (ms)
	WriteTimeoutMs     int      `yaml:"writeTimeoutMs"`     // Write timeout (ms)
	DialTimeoutMs      int      `yaml:"dialTimeoutMs"`      // Dial timeout (ms)
	OpTimeoutMs        int      `yaml:"opTimeoutMs"`        // Per-command deadline (ms)
	ConnMaxIdleTimeSec int      `yaml:"connMaxIdleTimeSec"` // Max idle time (sec)
}

// Endpoint reports whether any Redis endpoint is configured.
func (r RedisCfg) Endpoint() bool {
	return r.URL != "" || r.Addr != "" || len(r.Addrs) > 0
}

// BreakerCfg configures the circuit breaker in front of the RPC provider.
type BreakerCfg struct {
	Enabled          bool    `yaml:"enabled"`
	ErrorRatio       float64 `yaml:"errorRatio"`       // trip threshold, 0..1
	MinRequestAmount uint64  `yaml:"minRequestAmount"` // minimum calls before the ratio applies
	StatIntervalMs   uint32  `yaml:"statIntervalMs"`
	RetryTimeoutMs   uint32  `yaml:"retryTimeoutMs"` // open-state duration
}

// SolanaCfg —— 上游 RPC 配置
type SolanaCfg struct {
	RPCURL           string     `yaml:"rpcUrl"`
	APIKey           string     `yaml:"apiKey"`
	AttemptTimeoutMs int        `yaml:"attemptTimeoutMs"`
	MaxAttempts      int        `yaml:"maxAttempts"`
	Breaker          BreakerCfg `yaml:"breaker"`
}

// CacheCfg —— 评分缓存
type CacheCfg struct {
	TTLSeconds int `yaml:"ttlSeconds"`
}

// ScoringCfg —— 评分引擎
type ScoringCfg struct {
	// Coalesce collapses concurrent misses for the same wallet into one upstream computation.
	Coalesce bool `yaml:"coalesce"`
}

// RateLimitCfg —— 计算接口限流
type RateLimitCfg struct {
	MaxRequests     int64  `yaml:"maxRequests"`
	WindowSeconds   int64  `yaml:"windowSeconds"`
	KeyStrategy     string `yaml:"keyStrategy"` // user | ip | ip_path
	UserHeader      string `yaml:"userHeader"`
	TrustUserHeader bool   `yaml:"trustUserHeader"` // 仅当上游鉴权代理写入 UserHeader 时开启
	Message         string `yaml:"message"`
}

// Features —— 特性开关
type Features struct {
	LocalFallback bool   `yaml:"localFallback"` // Redis 故障时启用本地限流退化
	FailPolicy    string `yaml:"failPolicy"`    // fail-open (only supported policy)
}

// LogCfg controls the process logger.
type LogCfg struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Config —— 全量配置
type Config struct {
	Server    ServerCfg    `yaml:"server"`
	Redis     RedisCfg     `yaml:"redis"`
	Solana    SolanaCfg    `yaml:"solana"`
	Cache     CacheCfg     `yaml:"cache"`
	Scoring   ScoringCfg   `yaml:"scoring"`
	RateLimit RateLimitCfg `yaml:"rateLimit"`
	Features  Features     `yaml:"features"`
	Log       LogCfg       `yaml:"log"`
}

// Load —— 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(b))
	var c Config
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()
	return &c, nil
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.ShutdownTimeoutMs <= 0 {
		c.Server.ShutdownTimeoutMs = 5000
	}
	if c.Solana.RPCURL == "" {
		c.Solana.RPCURL = DefaultRPCURL
	}
	if c.Solana.AttemptTimeoutMs <= 0 {
		c.Solana.AttemptTimeoutMs = DefaultAttemptTimeoutMs
	}
	if c.Solana.MaxAttempts <= 0 {
		c.Solana.MaxAttempts = DefaultMaxAttempts
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = DefaultCacheTTLSeconds
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = DefaultRateLimitMax
	}
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = DefaultRateLimitWindow
	}
	if c.RateLimit.KeyStrategy == "" {
		c.RateLimit.KeyStrategy = "user"
	}
	if c.Features.FailPolicy == "" {
		c.Features.FailPolicy = "fail-open"
	}
}

// Validate reports every missing setting the scoring pipeline cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Solana.RPCURL) == "" {
		missing = append(missing, "solana.rpcUrl")
	}
	if strings.TrimSpace(c.Solana.APIKey) == "" {
		missing = append(missing, "solana.apiKey")
	}
	if !c.Redis.Endpoint() {
		missing = append(missing, "redis.url|redis.addr")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	if p := strings.ToLower(strings.TrimSpace(c.Features.FailPolicy)); p != "" && p != "fail-open" {
		return errors.New("unsupported features.failPolicy: " + c.Features.FailPolicy)
	}
	switch c.RateLimit.KeyStrategy {
	case "", "user", "ip", "ip_path":
	default:
		return errors.New("unsupported rateLimit.keyStrategy: " + c.RateLimit.KeyStrategy)
	}
	return nil
}
