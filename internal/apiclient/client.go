// Package apiclient HTTP клиент REST бэкенда. Добавляет bearer токен,
// классифицирует ответы и выдает ровно одно уведомление на ошибку.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"

	"ReqTrack/internal/notify"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 10 * time.Second
	userAgent      = "ReqTrack-CLI/1.0"
)

// TokenSource источник текущего токена сессии.
// Invalidate сбрасывает сессию, только если token все еще текущий,
// и сообщает, произошел ли сброс.
type TokenSource interface {
	Token() string
	Invalidate(ctx context.Context, token string) bool
}

// Navigator переводит пользователя на вход в систему
type Navigator interface {
	ToLogin()
}

// NavigatorFunc адаптер функции к Navigator
type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

// Options параметры клиента
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Notifier  notify.Notifier
	Navigator Navigator
	Logger    logger.Logger
}

// Client HTTP клиент бэкенда
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	navigator Navigator
	notifier  notify.Notifier
	logger    logger.Logger
}

// New создает новый клиент
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard
	}
	if opts.Navigator == nil {
		opts.Navigator = NavigatorFunc(func() {})
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		navigator: opts.Navigator,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
	}
}

// SetTokenSource подключает источник токена
func (c *Client) SetTokenSource(ts TokenSource) {
	c.tokens = ts
}

// BaseURL возвращает базовый адрес бэкенда
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient возвращает нижележащий http.Client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

type requestOptions struct {
	silent bool
	query  url.Values
	token  *string
	action string
}

// notice текст уведомления с учетом действия
func (o *requestOptions) notice(message string) string {
	if o.action == "" {
		return message
	}
	return "Failed to " + o.action + ": " + message
}

// RequestOption настраивает отдельный запрос
type RequestOption func(*requestOptions)

// Silent отключает уведомления и обработку 401 для запроса.
// Вызывающий код сам сообщает результат.
func Silent() RequestOption {
	return func(o *requestOptions) {
		o.silent = true
	}
}

// WithQuery добавляет параметры строки запроса
func WithQuery(query url.Values) RequestOption {
	return func(o *requestOptions) {
		o.query = query
	}
}

// WithAction называет действие в уведомлении об ошибке:
// "Failed to <action>: <причина>". Уведомление по-прежнему одно.
func WithAction(action string) RequestOption {
	return func(o *requestOptions) {
		o.action = action
	}
}

// WithToken использует указанный токен вместо текущего
func WithToken(token string) RequestOption {
	return func(o *requestOptions) {
		o.token = &token
	}
}

// Get выполняет GET запрос
func (c *Client) Get(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodGet, path, nil, out, opts...)
}

// Post выполняет POST запрос
func (c *Client) Post(ctx context.Context, path string, in, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPost, path, in, out, opts...)
}

// Put выполняет PUT запрос
func (c *Client) Put(ctx context.Context, path string, in, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodPut, path, in, out, opts...)
}

// Delete выполняет DELETE запрос
func (c *Client) Delete(ctx context.Context, path string, out interface{}, opts ...RequestOption) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out, opts...)
}

// Do выполняет JSON запрос. in кодируется в тело, ответ 2xx декодируется в out.
// Любая ошибка возвращается как *errors.Error.
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}, opts ...RequestOption) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.Send(ctx, method, path, "application/json", body, opts...)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "invalid server response").WithStatus(resp.StatusCode)
	}
	return nil
}

// Send выполняет запрос с произвольным телом. При 2xx возвращает ответ,
// который вызывающий обязан закрыть; иначе ответ классифицируется и
// возвращается *errors.Error.
func (c *Client) Send(ctx context.Context, method, path, contentType string, body io.Reader, opts ...RequestOption) (*http.Response, error) {
	o := &requestOptions{}
	for _, opt := range opts {
		opt(o)
	}

	target := c.baseURL + path
	if len(o.query) > 0 {
		target += "?" + o.query.Encode()
	}

	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "failed to build request")
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", requestID)

	token := ""
	if o.token != nil {
		token = *o.token
	} else if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportFailure(ctx, err, o)
	}

	c.logger.Debug("HTTP request",
		logger.CtxField(ctx),
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return nil, c.classify(ctx, resp.StatusCode, data, token, o)
}

func (c *Client) transportFailure(ctx context.Context, err error, o *requestOptions) error {
	// Отмененный вызывающим запрос не сообщается пользователю
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) && !errors.Is(err, context.DeadlineExceeded) {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnexpected, "request cancelled")
	}

	c.logger.Debug("HTTP request failed", logger.CtxField(ctx), logger.Error(err))

	appErr := pkgerrors.Wrap(err, pkgerrors.ErrConnection, MsgConnection)
	if !o.silent {
		notify.Error(ctx, c.notifier, o.notice(MsgConnection))
	}
	return appErr
}

// IsConnection сообщает, что ответ от сервера не был получен
func IsConnection(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.ErrConnection)
}

// StatusOf возвращает HTTP статус ошибки или 0
func StatusOf(err error) int {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

// String для отладки
func (c *Client) String() string {
	return fmt.Sprintf("apiclient(%s)", c.baseURL)
}
