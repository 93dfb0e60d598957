package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		ShutdownTimeout           time.Duration
		CORSOrigins               []string
		PublicRateLimit           float64 // requests per second per IP on token-scoped routes
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ClaudeConfig struct {
		APIKey        string
		BaseURL       string
		BatchTimeout  time.Duration
		StreamTimeout time.Duration
	}

	StorageConfig struct {
		Bucket         string
		Region         string
		Endpoint       string
		ForcePathStyle bool
	}

	EmailConfig struct {
		Provider       string // console | sendgrid | resend
		DefaultFrom    string
		SendgridAPIKey string
		ResendAPIKey   string
	}

	IntegrationsConfig struct {
		CronSecret            string
		WhatsAppWebhookSecret string
		EncryptionKey         string // 64 hex chars
		ProcessorInterval     time.Duration
		ProcessorBatchSize    int
	}

	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		SecretKey    string
		SiteURL      string
		RollbarToken string
		WorkDir      string

		Server       ServerConfig
		Database     DatabaseConfig
		Claude       ClaudeConfig
		Storage      StorageConfig
		Email        EmailConfig
		Integrations IntegrationsConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Email.DefaultFrom)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@ellahos.com"}
	}
	return *addr
}

// NewConfig reads the configuration from the environment (and the optional config/.env.<env> file).
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "ELLAHOS")
	v.SetDefault("secretKey", "d9#k2m!x8q@v5z$w3n^b7c&r1t*y4u(e6i)o0p-lkjhgfds")
	v.SetDefault("siteURL", "https://ellahos.com")

	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8000)
	v.SetDefault("server_debugHost", "0.0.0.0:4000")
	v.SetDefault("server_jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server_jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server_passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server_shutdownTimeout", 10*time.Second)
	v.SetDefault("server_corsOrigins", "http://localhost:3000")
	v.SetDefault("server_publicRateLimit", 2.0)

	v.SetDefault("db_engine", "postgres")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_name", "ellahos")
	v.SetDefault("db_user", "ellahos")
	v.SetDefault("db_password", "ellahos")
	v.SetDefault("db_disableTLS", true)

	v.SetDefault("claude_baseURL", "https://api.anthropic.com/v1/messages")
	v.SetDefault("claude_batchTimeout", 30*time.Second)
	v.SetDefault("claude_streamTimeout", 60*time.Second)

	v.SetDefault("storage_region", "us-east-1")

	v.SetDefault("email_provider", "console")
	v.SetDefault("email_defaultFrom", "ELLAHOS <noreply@ellahos.com>")

	v.SetDefault("integrations_processorInterval", time.Minute)
	v.SetDefault("integrations_processorBatchSize", 20)

	v.SetEnvPrefix(env)
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     env == "TEST",
		AppName:      v.GetString("appName"),
		SecretKey:    v.GetString("secretKey"),
		SiteURL:      strings.TrimRight(v.GetString("siteURL"), "/"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Host:                      v.GetString("server_host"),
			Port:                      v.GetInt("server_port"),
			DebugHost:                 v.GetString("server_debugHost"),
			JWTExpirationDelta:        v.GetDuration("server_jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server_jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server_passwordResetTimeoutDelta"),
			ShutdownTimeout:           v.GetDuration("server_shutdownTimeout"),
			CORSOrigins:               splitList(v.GetString("server_corsOrigins")),
			PublicRateLimit:           v.GetFloat64("server_publicRateLimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db_engine"),
			Host:          v.GetString("db_host"),
			Port:          v.GetInt("db_port"),
			Name:          v.GetString("db_name"),
			User:          v.GetString("db_user"),
			Password:      v.GetString("db_password"),
			AdminUser:     v.GetString("db_adminUser"),
			AdminPassword: v.GetString("db_adminPassword"),
			DisableTLS:    v.GetBool("db_disableTLS"),
		},
		Claude: ClaudeConfig{
			APIKey:        v.GetString("claude_apiKey"),
			BaseURL:       v.GetString("claude_baseURL"),
			BatchTimeout:  v.GetDuration("claude_batchTimeout"),
			StreamTimeout: v.GetDuration("claude_streamTimeout"),
		},
		Storage: StorageConfig{
			Bucket:         v.GetString("storage_bucket"),
			Region:         v.GetString("storage_region"),
			Endpoint:       v.GetString("storage_endpoint"),
			ForcePathStyle: v.GetBool("storage_forcePathStyle"),
		},
		Email: EmailConfig{
			Provider:       strings.ToLower(v.GetString("email_provider")),
			DefaultFrom:    v.GetString("email_defaultFrom"),
			SendgridAPIKey: v.GetString("email_sendgridApiKey"),
			ResendAPIKey:   v.GetString("email_resendApiKey"),
		},
		Integrations: IntegrationsConfig{
			CronSecret:            v.GetString("integrations_cronSecret"),
			WhatsAppWebhookSecret: v.GetString("integrations_whatsappWebhookSecret"),
			EncryptionKey:         v.GetString("integrations_encryptionKey"),
			ProcessorInterval:     v.GetDuration("integrations_processorInterval"),
			ProcessorBatchSize:    v.GetInt("integrations_processorBatchSize"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
