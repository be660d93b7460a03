package config

import (
	"fmt"
	"sort"
	"strconv"
)

type accessor struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) accessor {
	return accessor{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(field func(c *Config) *int) accessor {
	return accessor{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(field func(c *Config) *bool) accessor {
	return accessor{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("expected true or false, got %q", v)
			}
			*field(c) = b
			return nil
		},
	}
}

// keys ключи для config get/set
var keys = map[string]accessor{
	"environment":               stringKey(func(c *Config) *string { return &c.Environment }),
	"api.base_url":              stringKey(func(c *Config) *string { return &c.API.BaseURL }),
	"api.timeout":               stringKey(func(c *Config) *string { return &c.API.Timeout }),
	"storage.backend":           stringKey(func(c *Config) *string { return &c.Storage.Backend }),
	"storage.path":              stringKey(func(c *Config) *string { return &c.Storage.Path }),
	"storage.key_prefix":        stringKey(func(c *Config) *string { return &c.Storage.KeyPrefix }),
	"storage.redis.addr":        stringKey(func(c *Config) *string { return &c.Storage.Redis.Addr }),
	"storage.redis.db":          intKey(func(c *Config) *int { return &c.Storage.Redis.DB }),
	"storage.postgres.host":     stringKey(func(c *Config) *string { return &c.Storage.Postgres.Host }),
	"storage.postgres.port":     intKey(func(c *Config) *int { return &c.Storage.Postgres.Port }),
	"storage.postgres.user":     stringKey(func(c *Config) *string { return &c.Storage.Postgres.User }),
	"storage.postgres.database": stringKey(func(c *Config) *string { return &c.Storage.Postgres.Database }),
	"storage.postgres.sslmode":  stringKey(func(c *Config) *string { return &c.Storage.Postgres.SSLMode }),
	"logger.level":              stringKey(func(c *Config) *string { return &c.Logger.Level }),
	"logger.format":             stringKey(func(c *Config) *string { return &c.Logger.Format }),
	"output.format":             stringKey(func(c *Config) *string { return &c.Output.Format }),
	"output.colors":             boolKey(func(c *Config) *bool { return &c.Output.Colors }),
	"notify.amqp.enabled":       boolKey(func(c *Config) *bool { return &c.Notify.AMQP.Enabled }),
	"notify.amqp.url":           stringKey(func(c *Config) *string { return &c.Notify.AMQP.URL }),
	"notify.amqp.exchange":      stringKey(func(c *Config) *string { return &c.Notify.AMQP.Exchange }),
	"notify.amqp.routing_key":   stringKey(func(c *Config) *string { return &c.Notify.AMQP.RoutingKey }),
	"metrics.textfile_path":     stringKey(func(c *Config) *string { return &c.Metrics.TextfilePath }),
	"tracing.enabled":           boolKey(func(c *Config) *bool { return &c.Tracing.Enabled }),
}

// Keys возвращает поддерживаемые ключи
func Keys() []string {
	out := make([]string, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get возвращает значение по ключу вида "api.base_url"
func (c *Config) Get(key string) (string, error) {
	a, ok := keys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	return a.get(c), nil
}

// Set устанавливает значение и проверяет конфигурацию.
// При ошибке проверки прежнее значение восстанавливается.
func (c *Config) Set(key, value string) error {
	a, ok := keys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}

	previous := a.get(c)
	if err := a.set(c, value); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := c.Validate(); err != nil {
		a.set(c, previous)
		return err
	}
	return nil
}
