package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// codec преобразует содержимое файла хранилища
type codec interface {
	encode(plain []byte) ([]byte, error)
	decode(data []byte) ([]byte, error)
}

type plainCodec struct{}

func (plainCodec) encode(plain []byte) ([]byte, error) { return plain, nil }
func (plainCodec) decode(data []byte) ([]byte, error)  { return data, nil }

// FileStorage хранит слот сессии в JSON файле
type FileStorage struct {
	mu    sync.Mutex
	path  string
	codec codec
}

// NewFileStorage создает файловое хранилище
func NewFileStorage(path string) (*FileStorage, error) {
	return newFileStorage(path, plainCodec{})
}

func newFileStorage(path string, c codec) (*FileStorage, error) {
	// Создаем директорию если она не существует
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", filepath.Dir(path), err)
	}
	return &FileStorage{path: path, codec: c}, nil
}

// Path возвращает путь к файлу хранилища
func (fs *FileStorage) Path() string {
	return fs.path
}

func (fs *FileStorage) load() (map[string]string, error) {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла хранилища: %w", err)
	}

	plain, err := fs.codec.decode(data)
	if err != nil {
		return nil, err
	}

	values := map[string]string{}
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, fmt.Errorf("ошибка десериализации хранилища: %w", err)
	}
	return values, nil
}

// save пишет во временный файл и переименовывает его, поэтому читатель
// видит либо старое, либо новое содержимое целиком
func (fs *FileStorage) save(values map[string]string) error {
	if len(values) == 0 {
		if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("ошибка удаления файла хранилища: %w", err)
		}
		return nil
	}

	plain, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации хранилища: %w", err)
	}
	data, err := fs.codec.encode(plain)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".session-*")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка установки прав файла: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ошибка записи файла хранилища: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ошибка записи файла хранилища: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		return fmt.Errorf("ошибка сохранения файла хранилища: %w", err)
	}
	return nil
}

func (fs *FileStorage) Get(_ context.Context, key string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	values, err := fs.load()
	if err != nil {
		return "", err
	}
	value, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (fs *FileStorage) Set(_ context.Context, values map[string]string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, err := fs.load()
	if err != nil {
		// Поврежденный файл перезаписывается новым содержимым
		current = map[string]string{}
	}
	for k, v := range values {
		current[k] = v
	}
	return fs.save(current)
}

func (fs *FileStorage) Delete(_ context.Context, keys ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	current, err := fs.load()
	if err != nil {
		// Нечитаемый файл удаляем целиком
		return fs.save(nil)
	}
	for _, k := range keys {
		delete(current, k)
	}
	return fs.save(current)
}

func (fs *FileStorage) Close() error { return nil }
