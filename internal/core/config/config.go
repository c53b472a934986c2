package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
	// CORS 白名单，空则只放行同源
	AllowOrigins []string
}

type LogFile struct {
	Enable     bool
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
	CookieName        string
	CookieSecure      bool
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
	SlowThresholdMs    int
}

type Stripe struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
	// APIBase 留空走官方地址，测试/stripe-mock 时覆盖
	APIBase    string
	TimeoutSec int
	// 会员类型 -> price id
	Prices map[string]string
}

type Membership struct {
	SuccessURL   string
	CancelURL    string
	OfferURL     string
	DashboardURL string
}

type Limits struct {
	RequestTimeoutSec int
	MaxBodyBytes      int64
	MaxInFlight       int64
	GlobalRPS         float64
	GlobalBurst       int
	// 按 IP 的固定窗口，依赖 redis
	PerIPPerMinute int
	StatsCacheSec  int
}

type Config struct {
	App        App
	Log        Log
	JWT        JWT
	DB         DB
	Redis      Redis `mapstructure:"redis"`
	Stripe     Stripe
	Membership Membership
	Limits     Limits
}

func Load(path string) *Config {
	c, err := load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	return c
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// 平台注入的 DATABASE_URL 优先
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		c.DB.Driver = "postgres"
		c.DB.DSN = url
	}
	// 密钥只认环境变量也行，跟 stripe 官方命名保持一致
	if k := os.Getenv("STRIPE_SECRET_KEY"); k != "" {
		c.Stripe.SecretKey = k
	}
	if k := os.Getenv("STRIPE_WEBHOOK_SECRET"); k != "" {
		c.Stripe.WebhookSecret = k
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "terralumen")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.admin.port", 8081)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "terralumen")
	v.SetDefault("jwt.accesstokenttlmin", 60*24)
	v.SetDefault("jwt.cookiename", "tl_token")
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.automigrate", true)
	v.SetDefault("db.loglevel", "warn")
	v.SetDefault("stripe.timeoutsec", 10)
	v.SetDefault("membership.offerurl", "/membership")
	v.SetDefault("membership.dashboardurl", "/dashboard")
	v.SetDefault("limits.requesttimeoutsec", 15)
	v.SetDefault("limits.maxbodybytes", 1<<20)
	v.SetDefault("limits.maxinflight", 256)
	v.SetDefault("limits.globalrps", 200)
	v.SetDefault("limits.globalburst", 400)
	v.SetDefault("limits.peripperminute", 120)
	v.SetDefault("limits.statscachesec", 30)
}

// PriceFor 按会员类型取配置的 price id
func (s Stripe) PriceFor(membershipType string) string {
	return s.Prices[strings.ToLower(membershipType)]
}
