package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

// ErrDecrypt возвращается при неверной парольной фразе или поврежденном файле
var ErrDecrypt = errors.New("ошибка расшифровки хранилища")

// secretboxCodec формат файла: salt | nonce | secretbox(json)
type secretboxCodec struct {
	passphrase []byte
}

func deriveKey(passphrase, salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ключа: %w", err)
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}

func (c secretboxCodec) encode(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("ошибка генерации соли: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	key, err := deriveKey(c.passphrase, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func (c secretboxCodec) decode(data []byte) ([]byte, error) {
	if len(data) < saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrDecrypt
	}
	salt := data[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], data[saltSize:saltSize+nonceSize])

	key, err := deriveKey(c.passphrase, salt)
	if err != nil {
		return nil, err
	}

	plain, ok := secretbox.Open(nil, data[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// NewEncryptedFileStorage создает файловое хранилище, зашифрованное
// ключом из парольной фразы
func NewEncryptedFileStorage(path, passphrase string) (*FileStorage, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("для зашифрованного хранилища требуется парольная фраза")
	}
	return newFileStorage(path, secretboxCodec{passphrase: []byte(passphrase)})
}
