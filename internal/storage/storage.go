// Package storage хранит слот сессии клиента (токен и пользователь)
// за общим key-value интерфейсом с несколькими бэкендами.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ReqTrack/pkg/database"
	"ReqTrack/pkg/redis"
)

// Ключи слота сессии
const (
	KeyAccessToken = "access_token"
	KeyUser        = "user"
)

// ErrNotFound возвращается, если ключ отсутствует
var ErrNotFound = errors.New("key not found")

// Storage key-value хранилище слота сессии.
// Set записывает все переданные ключи атомарно.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Поддерживаемые бэкенды
const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
	BackendRedis     = "redis"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

// Backends перечисляет допустимые значения Options.Backend
var Backends = []string{BackendFile, BackendEncrypted, BackendRedis, BackendSQLite, BackendPostgres, BackendMemory}

// Options параметры открытия хранилища
type Options struct {
	Backend    string
	Path       string
	Passphrase string
	Redis      *redis.Config
	Postgres   *database.Config
	// KeyPrefix префикс ключей в Redis
	KeyPrefix string
}

// DefaultDir возвращает каталог данных клиента.
// REQTRACK_HOME имеет приоритет над домашней директорией.
func DefaultDir() (string, error) {
	home := os.Getenv("REQTRACK_HOME")
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("ошибка получения домашней директории: %w", err)
		}
	}
	return filepath.Join(home, ".reqtrack"), nil
}

// Open открывает хранилище выбранного бэкенда
func Open(ctx context.Context, opts Options) (Storage, error) {
	path := opts.Path
	if path == "" && (opts.Backend == BackendFile || opts.Backend == BackendEncrypted || opts.Backend == BackendSQLite || opts.Backend == "") {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		switch opts.Backend {
		case BackendEncrypted:
			path = filepath.Join(dir, "session.enc")
		case BackendSQLite:
			path = filepath.Join(dir, "session.db")
		default:
			path = filepath.Join(dir, "session.json")
		}
	}

	switch opts.Backend {
	case BackendFile, "":
		return NewFileStorage(path)
	case BackendEncrypted:
		return NewEncryptedFileStorage(path, opts.Passphrase)
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendRedis:
		cfg := opts.Redis
		if cfg == nil {
			cfg = redis.NewConfig()
		}
		client, err := redis.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRedisStorage(client, opts.KeyPrefix), nil
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	case BackendPostgres:
		cfg := opts.Postgres
		if cfg == nil {
			cfg = database.NewConfig()
		}
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища: %s", opts.Backend)
	}
}

// Probe проверяет доступность хранилища чтением служебного ключа
func Probe(ctx context.Context, s Storage) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := s.Get(ctx, KeyAccessToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
