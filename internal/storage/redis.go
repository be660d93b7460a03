package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	redisclient "ReqTrack/pkg/redis"
)

// DefaultKeyPrefix префикс ключей слота сессии в Redis
const DefaultKeyPrefix = "reqtrack:session:"

// RedisStorage хранит слот сессии в Redis
type RedisStorage struct {
	client *redisclient.Client
	prefix string
}

// NewRedisStorage создает хранилище поверх подключения к Redis
func NewRedisStorage(client *redisclient.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStorage{client: client, prefix: prefix}
}

func (rs *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := rs.client.Client.Get(ctx, rs.prefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка загрузки из Redis: %w", err)
	}
	return value, nil
}

// Set выполняет запись в MULTI/EXEC транзакции
func (rs *RedisStorage) Set(ctx context.Context, values map[string]string) error {
	_, err := rs.client.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, rs.prefix+k, v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в Redis: %w", err)
	}
	return nil
}

func (rs *RedisStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = rs.prefix + k
	}
	if err := rs.client.Client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("ошибка удаления из Redis: %w", err)
	}
	return nil
}

// Close закрывает подключение к Redis
func (rs *RedisStorage) Close() error {
	return rs.client.Close()
}
