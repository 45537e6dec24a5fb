package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	AppEnv        string
	Port          int
	LogLevel      string
	DBDSN         string
	DBAutoMigrate bool
	RedisURL      string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	JWTSecret     string
	AllowOrigins  []string
	StaticDir     string
	// TrustProxyHeaders libera X-Forwarded-For/X-Real-IP; só faz sentido atrás de proxy próprio.
	TrustProxyHeaders bool

	SSO SSOConfig
	Hub HubConfig

	RateLimitPublic   RateLimitConfig
	RateLimitCallback RateLimitConfig
	RateLimitUser     RateLimitConfig
}

// SSOConfig agrupa o que a troca de token precisa.
type SSOConfig struct {
	DecryptKey   string
	SessionMode  string
	CookieName   string
	CookieTTL    time.Duration
	CookieSecure bool
	LandingPath  string
	FailurePath  string
	CallbackPath string
	DevAPIBase   string
}

// HubConfig descreve o endpoint de validação do Hub.
type HubConfig struct {
	BaseURL      string
	ValidatePath string
	Timeout      time.Duration
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// IsDev indica ambiente de desenvolvimento.
func (c *Config) IsDev() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

// Load carrega .env, config.yaml (opcional) e variáveis de ambiente, nessa ordem de prioridade
// crescente, e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.yaml: %w", err)
		}
	}
	v.AutomaticEnv()
	setDefaults(v)

	return load(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h")
	v.SetDefault("HUB_VALIDATE_PATH", "/isw_api/isw_validar_usuario.php")
	v.SetDefault("HUB_TIMEOUT", "8s")
	v.SetDefault("SSO_SESSION_MODE", "cookie")
	v.SetDefault("SSO_COOKIE_NAME", "vs_session")
	v.SetDefault("SSO_COOKIE_TTL", "2h")
	v.SetDefault("SSO_LANDING_PATH", "/chat")
	v.SetDefault("SSO_FAILURE_PATH", "/login")
	v.SetDefault("SSO_CALLBACK_PATH", "/sso/callback")
	v.SetDefault("RATE_LIMIT_PUBLIC_RPS", 10)
	v.SetDefault("RATE_LIMIT_PUBLIC_BURST", 20)
	v.SetDefault("RATE_LIMIT_CALLBACK_RPS", 1)
	v.SetDefault("RATE_LIMIT_CALLBACK_BURST", 5)
	v.SetDefault("RATE_LIMIT_USER_RPS", 5)
	v.SetDefault("RATE_LIMIT_USER_BURST", 20)
	v.SetDefault("TRUST_PROXY_HEADERS", false)
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:        strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		LogLevel:      strings.TrimSpace(v.GetString("LOG_LEVEL")),
		DBDSN:         strings.TrimSpace(v.GetString("DB_DSN")),
		DBAutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		RedisURL:      strings.TrimSpace(v.GetString("REDIS_URL")),
		JWTSecret:     strings.TrimSpace(v.GetString("JWT_SECRET")),
		StaticDir:     strings.TrimSpace(v.GetString("STATIC_DIR")),
	}

	cfg.Port = v.GetInt("PORT")
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("PORT inválida")
	}
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	var err error
	if cfg.JWTAccessTTL, err = duration(v, "JWT_ACCESS_TTL"); err != nil {
		return nil, err
	}
	if cfg.JWTRefreshTTL, err = duration(v, "JWT_REFRESH_TTL"); err != nil {
		return nil, err
	}

	cfg.AllowOrigins = splitList(v.GetString("ALLOW_ORIGINS"))

	cfg.Hub = HubConfig{
		BaseURL:      strings.TrimSpace(v.GetString("HUB_BASE_URL")),
		ValidatePath: strings.TrimSpace(v.GetString("HUB_VALIDATE_PATH")),
	}
	if cfg.Hub.BaseURL == "" {
		return nil, errors.New("HUB_BASE_URL obrigatório")
	}
	if cfg.Hub.Timeout, err = duration(v, "HUB_TIMEOUT"); err != nil {
		return nil, err
	}

	cfg.SSO = SSOConfig{
		DecryptKey:   v.GetString("SSO_DECRYPT_KEY"),
		SessionMode:  strings.ToLower(strings.TrimSpace(v.GetString("SSO_SESSION_MODE"))),
		CookieName:   strings.TrimSpace(v.GetString("SSO_COOKIE_NAME")),
		LandingPath:  strings.TrimSpace(v.GetString("SSO_LANDING_PATH")),
		FailurePath:  strings.TrimSpace(v.GetString("SSO_FAILURE_PATH")),
		CallbackPath: strings.TrimSpace(v.GetString("SSO_CALLBACK_PATH")),
		DevAPIBase:   strings.TrimSpace(v.GetString("SSO_DEV_API_BASE")),
	}
	if cfg.SSO.DecryptKey == "" {
		return nil, errors.New("SSO_DECRYPT_KEY obrigatório")
	}
	if cfg.SSO.SessionMode != "cookie" && cfg.SSO.SessionMode != "token" {
		return nil, errors.New("SSO_SESSION_MODE deve ser cookie ou token")
	}
	if cfg.SSO.CookieName == "" {
		return nil, errors.New("SSO_COOKIE_NAME obrigatório")
	}
	if cfg.SSO.CookieTTL, err = duration(v, "SSO_COOKIE_TTL"); err != nil {
		return nil, err
	}
	for key, path := range map[string]string{
		"SSO_LANDING_PATH":  cfg.SSO.LandingPath,
		"SSO_FAILURE_PATH":  cfg.SSO.FailurePath,
		"SSO_CALLBACK_PATH": cfg.SSO.CallbackPath,
	} {
		if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
			return nil, errors.New(key + " deve ser um caminho local")
		}
	}
	if !cfg.IsDev() {
		cfg.SSO.DevAPIBase = ""
	}

	// cookie Secure só cai quando o front roda em localhost
	cfg.SSO.CookieSecure = !lo.SomeBy(cfg.AllowOrigins, func(o string) bool { return strings.Contains(o, "localhost") })
	if v.IsSet("SSO_COOKIE_SECURE") {
		cfg.SSO.CookieSecure = v.GetBool("SSO_COOKIE_SECURE")
	}

	cfg.RateLimitPublic = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_PUBLIC_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_PUBLIC_BURST"),
	}
	cfg.RateLimitCallback = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_CALLBACK_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_CALLBACK_BURST"),
	}
	cfg.RateLimitUser = RateLimitConfig{
		RequestsPerSecond: v.GetFloat64("RATE_LIMIT_USER_RPS"),
		Burst:             v.GetInt("RATE_LIMIT_USER_BURST"),
	}
	cfg.TrustProxyHeaders = v.GetBool("TRUST_PROXY_HEADERS")

	return cfg, nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil || d <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return d, nil
}

func splitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}
