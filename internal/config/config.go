// Package config конфигурация клиента: значения по умолчанию, YAML файл,
// .env и переменные окружения.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"ReqTrack/pkg/database"
	"ReqTrack/pkg/rabbitmq"
	"ReqTrack/pkg/redis"
	"ReqTrack/pkg/validation"

	"ReqTrack/internal/storage"
)

// Config представляет конфигурацию CLI
type Config struct {
	Environment string        `yaml:"environment" json:"environment"`
	API         APIConfig     `yaml:"api" json:"api"`
	Storage     StorageConfig `yaml:"storage" json:"storage"`
	Logger      LoggerConfig  `yaml:"logger" json:"logger"`
	Output      OutputConfig  `yaml:"output" json:"output"`
	Notify      NotifyConfig  `yaml:"notify" json:"notify"`
	Metrics     MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`

	// Путь к файлу конфигурации
	Path string `yaml:"-" json:"-"`
}

// APIConfig настройки бэкенда
type APIConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`
}

// StorageConfig хранилище сессии
type StorageConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
	// Passphrase для backend=encrypted; лучше задавать через REQTRACK_STORAGE_PASSPHRASE
	Passphrase string         `yaml:"passphrase,omitempty" json:"-"`
	KeyPrefix  string         `yaml:"key_prefix,omitempty" json:"key_prefix,omitempty"`
	Redis      RedisConfig    `yaml:"redis" json:"redis"`
	Postgres   PostgresConfig `yaml:"postgres" json:"postgres"`
}

// RedisConfig подключение к Redis
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

// PostgresConfig подключение к PostgreSQL
type PostgresConfig struct {
	URL      string `yaml:"url,omitempty" json:"-"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password,omitempty" json:"-"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"sslmode" json:"sslmode"`
}

// LoggerConfig настройки логгера
type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // console, json
}

// OutputConfig настройки вывода
type OutputConfig struct {
	Format string `yaml:"format" json:"format"` // table, json, yaml
	Colors bool   `yaml:"colors" json:"colors"`
}

// NotifyConfig дополнительные получатели уведомлений
type NotifyConfig struct {
	AMQP AMQPConfig `yaml:"amqp" json:"amqp"`
}

// AMQPConfig публикация уведомлений в RabbitMQ
type AMQPConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	URL        string `yaml:"url" json:"-"`
	Exchange   string `yaml:"exchange" json:"exchange"`
	RoutingKey string `yaml:"routing_key" json:"routing_key"`
}

// MetricsConfig экспорт метрик
type MetricsConfig struct {
	// TextfilePath файл для textfile коллектора node_exporter; пусто - не писать
	TextfilePath string `yaml:"textfile_path" json:"textfile_path"`
}

// TracingConfig трассировка запросов
type TracingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Допустимые значения
var (
	Environments  = []string{"dev", "staging", "prod"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
	LogFormats    = []string{"console", "json"}
	OutputFormats = []string{"table", "json", "yaml"}
)

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	amqp := rabbitmq.NewConfig()
	pg := database.NewConfig()

	return &Config{
		Environment: "prod",
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "10s",
		},
		Storage: StorageConfig{
			Backend: storage.BackendFile,
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
			Postgres: PostgresConfig{
				Host:     pg.Host,
				Port:     pg.Port,
				User:     pg.User,
				Database: pg.Database,
				SSLMode:  pg.SSLMode,
			},
		},
		Logger: LoggerConfig{
			Level:  "warn",
			Format: "console",
		},
		Output: OutputConfig{
			Format: "table",
			Colors: true,
		},
		Notify: NotifyConfig{
			AMQP: AMQPConfig{
				URL:        amqp.URL,
				Exchange:   amqp.Exchange,
				RoutingKey: amqp.RoutingKey,
			},
		},
	}
}

// GetConfigPath возвращает путь к файлу конфигурации
func GetConfigPath() (string, error) {
	if path := os.Getenv("REQTRACK_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := storage.DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LoadConfig загружает конфигурацию в следующем порядке приоритета:
// значения по умолчанию, файл (если существует), .env, переменные окружения.
// Результат проверяется.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	config.Path = path

	if path != "" {
		if err := loadConfigFromFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	if err := loadConfigFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadFile читает только файл поверх значений по умолчанию, без окружения.
// Используется для изменения файла, чтобы переменные окружения в него не попали.
func LoadFile(path string) (*Config, error) {
	config := DefaultConfig()
	config.Path = path
	if err := loadConfigFromFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfigFromFile(config *Config, filename string) error {
	filename = os.ExpandEnv(filename)

	content, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// YAML, затем JSON
	if err := yaml.Unmarshal(content, config); err != nil {
		if jsonErr := json.Unmarshal(content, config); jsonErr != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}
	return nil
}

// LoadDotEnv загружает .env из текущего каталога, если он есть.
// Уже заданные переменные окружения не переопределяются.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func loadConfigFromEnv(config *Config) error {
	setString := func(env string, target *string) {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
	setInt := func(env string, target *int) error {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %s", env, v)
			}
			*target = n
		}
		return nil
	}
	setBool := func(env string, target *bool) error {
		if v := os.Getenv(env); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %s", env, v)
			}
			*target = b
		}
		return nil
	}

	setString("ENVIRONMENT", &config.Environment)

	setString("REQTRACK_API_URL", &config.API.BaseURL)
	setString("REQTRACK_API_TIMEOUT", &config.API.Timeout)

	setString("REQTRACK_STORAGE_BACKEND", &config.Storage.Backend)
	setString("REQTRACK_STORAGE_PATH", &config.Storage.Path)
	setString("REQTRACK_STORAGE_PASSPHRASE", &config.Storage.Passphrase)
	setString("REQTRACK_REDIS_ADDR", &config.Storage.Redis.Addr)
	setString("REQTRACK_REDIS_PASSWORD", &config.Storage.Redis.Password)
	if err := setInt("REQTRACK_REDIS_DB", &config.Storage.Redis.DB); err != nil {
		return err
	}
	setString("REQTRACK_POSTGRES_URL", &config.Storage.Postgres.URL)

	setString("REQTRACK_LOG_LEVEL", &config.Logger.Level)
	setString("REQTRACK_LOG_FORMAT", &config.Logger.Format)
	setString("REQTRACK_OUTPUT", &config.Output.Format)

	if url := os.Getenv("REQTRACK_AMQP_URL"); url != "" {
		config.Notify.AMQP.URL = url
		config.Notify.AMQP.Enabled = true
	}

	setString("REQTRACK_METRICS_TEXTFILE", &config.Metrics.TextfilePath)
	return setBool("REQTRACK_TRACING", &config.Tracing.Enabled)
}

var validator = validation.NewValidator()

// Validate проверяет валидность конфигурации
func (c *Config) Validate() error {
	if err := validator.ValidateEnum(c.Environment, Environments, "environment"); err != nil {
		return err
	}
	if err := validator.ValidateURL(c.API.BaseURL, []string{"http", "https"}); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	timeout, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return fmt.Errorf("api.timeout: %w", err)
	}
	if timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got: %s", c.API.Timeout)
	}

	if err := validator.ValidateEnum(c.Storage.Backend, storage.Backends, "storage.backend"); err != nil {
		return err
	}
	if c.Storage.Backend == storage.BackendRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}
	if c.Storage.Backend == storage.BackendPostgres && c.Storage.Postgres.URL == "" {
		if err := validator.ValidatePositive(c.Storage.Postgres.Port, "storage.postgres.port"); err != nil {
			return err
		}
	}

	if err := validator.ValidateEnum(c.Logger.Level, LogLevels, "logger.level"); err != nil {
		return err
	}
	if err := validator.ValidateEnum(c.Logger.Format, LogFormats, "logger.format"); err != nil {
		return err
	}
	if err := validator.ValidateEnum(c.Output.Format, OutputFormats, "output.format"); err != nil {
		return err
	}

	if c.Notify.AMQP.Enabled {
		if err := validator.ValidateURL(c.Notify.AMQP.URL, []string{"amqp", "amqps"}); err != nil {
			return fmt.Errorf("notify.amqp.url: %w", err)
		}
	}
	return nil
}

// APITimeout возвращает таймаут запросов
func (c *Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// LoggerEnvironment окружение логгера: console формат соответствует dev
func (c *Config) LoggerEnvironment() string {
	if c.Logger.Format == "console" {
		return "dev"
	}
	return c.Environment
}

// StorageOptions параметры открытия хранилища сессии
func (c *Config) StorageOptions() storage.Options {
	opts := storage.Options{
		Backend:    c.Storage.Backend,
		Path:       c.Storage.Path,
		Passphrase: c.Storage.Passphrase,
		KeyPrefix:  c.Storage.KeyPrefix,
	}

	switch c.Storage.Backend {
	case storage.BackendRedis:
		rc := redis.NewConfig()
		rc.Addr = c.Storage.Redis.Addr
		rc.Password = c.Storage.Redis.Password
		rc.DB = c.Storage.Redis.DB
		opts.Redis = rc
	case storage.BackendPostgres:
		pg := database.NewConfig()
		pg.URL = c.Storage.Postgres.URL
		pg.Host = c.Storage.Postgres.Host
		pg.Port = c.Storage.Postgres.Port
		pg.User = c.Storage.Postgres.User
		pg.Password = c.Storage.Postgres.Password
		pg.Database = c.Storage.Postgres.Database
		pg.SSLMode = c.Storage.Postgres.SSLMode
		opts.Postgres = pg
	}
	return opts
}

// RabbitMQConfig параметры публикации уведомлений
func (c *Config) RabbitMQConfig() *rabbitmq.Config {
	rc := rabbitmq.NewConfig()
	rc.URL = c.Notify.AMQP.URL
	if c.Notify.AMQP.Exchange != "" {
		rc.Exchange = c.Notify.AMQP.Exchange
	}
	if c.Notify.AMQP.RoutingKey != "" {
		rc.RoutingKey = c.Notify.AMQP.RoutingKey
	}
	return rc
}

// Save сохраняет конфигурацию в файл
func (c *Config) Save() error {
	if c.Path == "" {
		return fmt.Errorf("config file path is not set")
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Файл может содержать пароли
	if err := os.WriteFile(c.Path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// InitConfig создает файл с конфигурацией по умолчанию.
// Существующий файл перезаписывается только при force.
func InitConfig(path string, force bool) (*Config, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return nil, fmt.Errorf("config file already exists: %s", path)
	}

	config := DefaultConfig()
	config.Path = path
	if err := config.Save(); err != nil {
		return nil, err
	}
	return config, nil
}
