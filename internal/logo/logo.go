// Package logo управление логотипом системы.
package logo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/notify"
)

const (
	basePath = "/api/v1/upload/logo"
	// MaxSize ограничение бэкенда на размер файла
	MaxSize = 5 * 1024 * 1024
)

// contentTypes допустимые типы по расширению файла
var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// ContentType возвращает тип файла по расширению
func ContentType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ct, ok := contentTypes[ext]
	if !ok {
		return "", pkgerrors.New(pkgerrors.ErrValidation,
			fmt.Sprintf("unsupported file type %q, use JPEG, PNG, GIF or SVG", ext))
	}
	return ct, nil
}

// Logo загруженный логотип
type Logo struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

// UploadResult ответ на загрузку
type UploadResult struct {
	Message      string `json:"message"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
	UploadedAt   string `json:"uploaded_at"`
}

// Service операции с логотипами
type Service struct {
	client   *apiclient.Client
	notifier notify.Notifier
	logger   logger.Logger
}

// NewService создает новый Service
func NewService(client *apiclient.Client, notifier notify.Notifier, log logger.Logger) *Service {
	if notifier == nil {
		notifier = notify.Discard
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{client: client, notifier: notifier, logger: log}
}

// Upload проверяет файл и загружает его как multipart поле "file"
func (s *Service) Upload(ctx context.Context, path string) (*UploadResult, error) {
	const action = "upload logo"

	contentType, err := ContentType(path)
	if err != nil {
		return nil, s.reject(ctx, action, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, s.reject(ctx, action, pkgerrors.Wrap(err, pkgerrors.ErrValidation, "cannot open file"))
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, s.reject(ctx, action, pkgerrors.Wrap(err, pkgerrors.ErrValidation, "cannot read file"))
	}
	if info.Size() > MaxSize {
		return nil, s.reject(ctx, action, pkgerrors.New(pkgerrors.ErrValidation,
			fmt.Sprintf("file is too large, maximum size is %dMB", MaxSize/(1024*1024))))
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "failed to build request")
	}
	if _, err := io.Copy(part, io.LimitReader(f, MaxSize+1)); err != nil {
		return nil, s.reject(ctx, action, pkgerrors.Wrap(err, pkgerrors.ErrValidation, "cannot read file"))
	}
	if err := mw.Close(); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "failed to build request")
	}

	resp, err := s.client.Send(ctx, http.MethodPost, basePath, mw.FormDataContentType(), &body, apiclient.WithAction(action))
	if err != nil {
		return nil, pkgerrors.WithContext(err, "failed to "+action)
	}
	defer resp.Body.Close()

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "invalid server response")
	}

	s.logger.Info("Logo uploaded",
		logger.String("filename", result.Filename),
		logger.Int64("size", result.Size))
	notify.Success(ctx, s.notifier, "Logo uploaded")
	return &result, nil
}

// List возвращает загруженные логотипы
func (s *Service) List(ctx context.Context) ([]Logo, error) {
	var resp struct {
		Logos []Logo `json:"logos"`
	}
	if err := s.client.Get(ctx, basePath, &resp); err != nil {
		return nil, pkgerrors.WithContext(err, "failed to load logos")
	}
	if resp.Logos == nil {
		resp.Logos = []Logo{}
	}
	return resp.Logos, nil
}

// Download пишет содержимое логотипа в w и возвращает число байт
func (s *Service) Download(ctx context.Context, filename string, w io.Writer) (int64, error) {
	resp, err := s.client.Send(ctx, http.MethodGet, basePath+"/"+url.PathEscape(filename), "", nil,
		apiclient.WithAction("download logo"))
	if err != nil {
		return 0, pkgerrors.WithContext(err, "failed to download logo")
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, pkgerrors.Wrap(err, pkgerrors.ErrConnection, "failed to read logo")
	}
	return n, nil
}

// Delete удаляет логотип
func (s *Service) Delete(ctx context.Context, filename string) error {
	if err := s.client.Delete(ctx, basePath+"/"+url.PathEscape(filename), nil, apiclient.WithAction("delete logo")); err != nil {
		return pkgerrors.WithContext(err, "failed to delete logo")
	}
	notify.Success(ctx, s.notifier, "Logo deleted")
	return nil
}

// reject сообщает об ошибке, найденной до отправки запроса
func (s *Service) reject(ctx context.Context, action string, err error) error {
	message := "Failed to " + action
	if appErr, ok := err.(*pkgerrors.Error); ok {
		message += ": " + appErr.Message
	}
	notify.Error(ctx, s.notifier, message)
	return pkgerrors.WithContext(err, "failed to "+action)
}
