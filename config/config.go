package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Ops      OpsConfig      `mapstructure:"ops"`
	DB       DBConfig       `mapstructure:"db"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Redis    RedisConfig    `mapstructure:"redis"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Transfer TransferConfig `mapstructure:"transfer"`
	OTP      OTPConfig      `mapstructure:"otp"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// OpsConfig - служебный сервер здоровья и метрик
type OpsConfig struct {
	Port  int    `mapstructure:"port"`
	Token string `mapstructure:"token"`
}

type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	LogLevel        string        `mapstructure:"log_level"`
}

// JWTConfig - секрет для проверки токенов, выпущенных сервисом авторизации
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// RabbitMQConfig - брокер доменных событий; пустой SigningKey отключает подпись
type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	SigningKey string `mapstructure:"signing_key"`
}

// TransferConfig - параметры обработки переводов
type TransferConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	ReferenceRetries   int           `mapstructure:"reference_retries"`
}

// OTPConfig - период перевода просроченных кодов в EXPIRED (0 - выключено)
type OTPConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Debug bool   `mapstructure:"debug"`
}

var defaults = map[string]interface{}{
	"server.port":                    8080,
	"server.read_timeout":            "15s",
	"server.write_timeout":           "15s",
	"server.shutdown_timeout":        "10s",
	"ops.port":                       9090,
	"ops.token":                      "",
	"db.host":                        "localhost",
	"db.port":                        5432,
	"db.user":                        "postgres",
	"db.password":                    "postgres",
	"db.name":                        "bank_db",
	"db.sslmode":                     "disable",
	"db.max_open_conns":              100,
	"db.max_idle_conns":              10,
	"db.conn_max_lifetime":           "1h",
	"db.lock_timeout":                "5s",
	"db.migrations_path":             "migrations",
	"db.log_level":                   "warn",
	"jwt.secret_key":                 "",
	"smtp.enabled":                   false,
	"smtp.host":                      "smtp.gmail.com",
	"smtp.port":                      587,
	"smtp.username":                  "",
	"smtp.password":                  "",
	"smtp.from":                      "",
	"redis.url":                      "",
	"redis.prefix":                   "bank:rate_limit",
	"rabbitmq.url":                   "",
	"rabbitmq.exchange":              "bank_events",
	"rabbitmq.signing_key":           "",
	"transfer.timeout":               "30s",
	"transfer.rate_limit_per_minute": 30,
	"transfer.reference_retries":     3,
	"otp.sweep_interval":             "1m",
	"log.dir":                        "logs",
	"log.debug":                      false,
}

// LoadConfig читает конфигурацию из необязательного файла .env в каталоге path
// и переменных окружения (DB_HOST, TRANSFER_TIMEOUT и т.д.).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// В .env ключи плоские (DB_HOST), переносим их на вложенные ключи ниже окружения.
	for key := range defaults {
		fileKey := strings.ReplaceAll(key, ".", "_")
		if v.InConfig(fileKey) {
			v.SetDefault(key, v.Get(fileKey))
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		v.Set("server.port", port)
		cfg.Server.Port = v.GetInt("server.port")
	}
	cfg.Redis.URL = strings.TrimSpace(cfg.Redis.URL)
	cfg.Redis.Prefix = strings.TrimSuffix(strings.TrimSpace(cfg.Redis.Prefix), ":")
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "bank:rate_limit"
	}
	cfg.RabbitMQ.URL = strings.TrimSpace(cfg.RabbitMQ.URL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("неверный порт сервера: %d", c.Server.Port)
	}
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("неверный порт служебного сервера: %d", c.Ops.Port)
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		return fmt.Errorf("неверный порт базы данных: %d", c.DB.Port)
	}
	if c.DB.MaxOpenConns <= 0 || c.DB.MaxIdleConns < 0 {
		return fmt.Errorf("неверный размер пула соединений: open=%d idle=%d", c.DB.MaxOpenConns, c.DB.MaxIdleConns)
	}
	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		return errors.New("не задан JWT_SECRET_KEY")
	}
	if c.Transfer.Timeout <= 0 {
		return fmt.Errorf("неверный таймаут перевода: %s", c.Transfer.Timeout)
	}
	if c.Transfer.ReferenceRetries < 1 {
		return fmt.Errorf("неверное число попыток генерации референса: %d", c.Transfer.ReferenceRetries)
	}
	if c.OTP.SweepInterval < 0 {
		return fmt.Errorf("неверный период обработки кодов: %s", c.OTP.SweepInterval)
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		return errors.New("для отправки писем нужны SMTP_HOST и SMTP_FROM")
	}
	return nil
}

// DSN возвращает строку подключения для драйвера postgres
func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrationURL возвращает URL базы данных для golang-migrate
func (c DBConfig) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
