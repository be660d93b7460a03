package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite"

	"ReqTrack/pkg/database"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS reqtrack_session (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	selectValueQuery = `SELECT value FROM reqtrack_session WHERE key = $1`
	upsertValueQuery = `INSERT INTO reqtrack_session (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	deleteValueQuery = `DELETE FROM reqtrack_session WHERE key = $1`
)

// SQLStorage хранит слот сессии в таблице reqtrack_session.
// Запросы совместимы с SQLite и PostgreSQL.
type SQLStorage struct {
	db    *sql.DB
	close func() error
}

// NewSQLStorage создает хранилище поверх открытого подключения
func NewSQLStorage(db *sql.DB) *SQLStorage {
	return &SQLStorage{db: db, close: db.Close}
}

// OpenSQLite открывает локальную базу SQLite и создает таблицу
func OpenSQLite(ctx context.Context, path string) (*SQLStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := NewSQLStorage(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres подключается к PostgreSQL через pgx и создает таблицу
func OpenPostgres(ctx context.Context, cfg *database.Config) (*SQLStorage, error) {
	pg, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := pg.DB()
	s := &SQLStorage{
		db: db,
		close: func() error {
			err := db.Close()
			pg.Close()
			return err
		},
	}
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema создает таблицу хранилища, если ее нет
func (s *SQLStorage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("ошибка создания таблицы хранилища: %w", err)
	}
	return nil
}

func (s *SQLStorage) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, selectValueQuery, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения из базы: %w", err)
	}
	return value, nil
}

// Set записывает все ключи в одной транзакции
func (s *SQLStorage) Set(ctx context.Context, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, upsertValueQuery, k, values[k]); err != nil {
				return fmt.Errorf("ошибка записи ключа %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SQLStorage) Delete(ctx context.Context, keys ...string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, deleteValueQuery, k); err != nil {
				return fmt.Errorf("ошибка удаления ключа %s: %w", k, err)
			}
		}
		return nil
	})
}

func (s *SQLStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// Close закрывает подключение к базе
func (s *SQLStorage) Close() error {
	return s.close()
}
