package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Store  StoreConfig
	Lookup LookupConfig
	Draft  DraftConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	lookup, err := loadLookupConfig()
	if err != nil {
		return nil, err
	}

	draft, err := loadDraftConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Store: store, Lookup: lookup, Draft: draft}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	origins := splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigins: origins}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigins: origins}, nil
}

// Provider 表示大模型服务提供方。
type Provider string

const (
	ProviderArk      Provider = "ark"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider    Provider
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	Timeout     time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	if c.Provider == ProviderArk {
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
	return c.APIKey != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.BaseChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%s 凭证或模型配置缺失，至少提供 API key + Model", c.Provider)
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	switch c.Provider {
	case ProviderArk:
		cfg := &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
		}
		if c.Timeout > 0 {
			timeout := c.Timeout
			cfg.Timeout = &timeout
		}
		return ark.NewChatModel(ctx, cfg)

	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.APIKey,
			BaseURL:     c.BaseURL,
			Model:       c.Model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        topP,
			Timeout:     c.Timeout,
		})

	case ProviderDeepSeek:
		cfg := &deepseek.ChatModelConfig{
			APIKey:  c.APIKey,
			BaseURL: c.BaseURL,
			Model:   c.Model,
			Timeout: c.Timeout,
		}
		if maxTokens != nil {
			cfg.MaxTokens = *maxTokens
		}
		if temperature != nil {
			cfg.Temperature = *temperature
		}
		if topP != nil {
			cfg.TopP = *topP
		}
		return deepseek.NewChatModel(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported AI_PROVIDER %q", c.Provider)
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := Provider(strings.ToLower(getEnvOrDefault("AI_PROVIDER", string(ProviderArk))))

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		// 回复只有一两句话，默认限制 token 预算。
		limit := 256
		maxTokens = &limit
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 0)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:    provider,
		Model:       strings.TrimSpace(os.Getenv("Model")),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		Timeout:     timeout,
	}

	switch provider {
	case ProviderArk:
		cfg.APIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
		cfg.AccessKey = strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY"))
		cfg.SecretKey = strings.TrimSpace(os.Getenv("ARK_SECRET_KEY"))
		cfg.BaseURL = getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
		cfg.Region = getEnvOrDefault("ARK_REGION", "cn-beijing")
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
		if cfg.Model == "" {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
	case ProviderDeepSeek:
		cfg.APIKey = strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY"))
		cfg.BaseURL = getEnvOrDefault("DEEPSEEK_BASE_URL", "https://api.deepseek.com/")
		if cfg.Model == "" {
			cfg.Model = getEnvOrDefault("DEEPSEEK_MODEL", "deepseek-chat")
		}
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	return cfg, nil
}

// StoreDriver 选择会话存储实现。
type StoreDriver string

const (
	StoreMemory StoreDriver = "memory"
	StoreSQLite StoreDriver = "sqlite"
)

// StoreConfig 描述会话存储配置。
type StoreConfig struct {
	Driver StoreDriver
	DBPath string
}

func loadStoreConfig() (StoreConfig, error) {
	driver := StoreDriver(strings.ToLower(getEnvOrDefault("STORE_DRIVER", string(StoreMemory))))
	switch driver {
	case StoreMemory, StoreSQLite:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", driver)
	}
	return StoreConfig{
		Driver: driver,
		DBPath: getEnvOrDefault("DB_PATH", "./data/drafts.db"),
	}, nil
}

// LookupConfig 描述税务登记查询服务配置。
type LookupConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Enabled 表示是否配置了查询服务地址。
func (c LookupConfig) Enabled() bool {
	return c.BaseURL != ""
}

func loadLookupConfig() (LookupConfig, error) {
	timeout, err := parseDurationEnv("LOOKUP_TIMEOUT", 5*time.Second)
	if err != nil {
		return LookupConfig{}, err
	}

	retries := 2
	if override, err := parseOptionalIntEnv("LOOKUP_RETRIES"); err != nil {
		return LookupConfig{}, err
	} else if override != nil {
		if *override < 0 {
			retries = 0
		} else {
			retries = *override
		}
	}

	return LookupConfig{
		BaseURL: strings.TrimSpace(os.Getenv("LOOKUP_BASE_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("LOOKUP_API_KEY")),
		Timeout: timeout,
		Retries: retries,
	}, nil
}

// DraftConfig 描述开票对话引擎的参数。
type DraftConfig struct {
	HistoryLimit   int
	VATPercent     float64
	DocumentSeries string
}

func loadDraftConfig() (DraftConfig, error) {
	historyLimit := 10
	if override, err := parseOptionalIntEnv("DRAFT_HISTORY_LIMIT"); err != nil {
		return DraftConfig{}, err
	} else if override != nil {
		if *override < 1 {
			historyLimit = 1
		} else {
			historyLimit = *override
		}
	}

	vat := 19.0
	if override, err := parseOptionalFloatEnv("DRAFT_DEFAULT_VAT"); err != nil {
		return DraftConfig{}, err
	} else if override != nil {
		if *override < 0 || *override > 100 {
			return DraftConfig{}, fmt.Errorf("invalid DRAFT_DEFAULT_VAT value %v", *override)
		}
		vat = *override
	}

	return DraftConfig{
		HistoryLimit:   historyLimit,
		VATPercent:     vat,
		DocumentSeries: getEnvOrDefault("DRAFT_DOCUMENT_SERIES", "INV"),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
