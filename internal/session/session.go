// Package session хранит аутентифицированную сессию клиента: токен и
// пользователя в памяти, синхронно с постоянным хранилищем.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/notify"
	"ReqTrack/internal/storage"
)

// State состояние сессии
type State int

const (
	StateLoading State = iota
	StateAbsent
	StatePresent
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Тексты уведомлений сессии
const (
	MsgLoginSuccess       = "Logged in successfully!"
	MsgInvalidCredentials = "Invalid credentials"
	MsgLoginConnection    = "Connection error. Check that the server is running."
	MsgLoginServerError   = "Internal server error. Try again later."
	MsgLoginUnexpected    = "Unexpected error during login"
	MsgLogoutSuccess      = "Logged out successfully!"
)

// ErrInvalidCredentials возвращается Login при отказе бэкенда
var ErrInvalidCredentials = pkgerrors.New(pkgerrors.ErrUnauthorized, MsgInvalidCredentials)

// ErrNoSession возвращается операциями, требующими активной сессии
var ErrNoSession = pkgerrors.New(pkgerrors.ErrUnauthorized, "not logged in")

// Store единственный экземпляр сессии процесса.
// Токен и пользователь всегда либо оба заданы, либо оба пусты,
// в памяти и в хранилище одинаково.
type Store struct {
	mu    sync.RWMutex
	token string
	user  *User
	state State

	restoreOnce sync.Once
	restored    chan struct{}

	client   *apiclient.Client
	storage  storage.Storage
	notifier notify.Notifier
	logger   logger.Logger
}

// NewStore создает сессию и подключает ее к клиенту как источник токена
func NewStore(client *apiclient.Client, st storage.Storage, notifier notify.Notifier, log logger.Logger) *Store {
	if notifier == nil {
		notifier = notify.Discard
	}
	if log == nil {
		log = logger.NewNop()
	}
	s := &Store{
		state:    StateLoading,
		restored: make(chan struct{}),
		client:   client,
		storage:  st,
		notifier: notifier,
		logger:   log,
	}
	client.SetTokenSource(s)
	return s
}

// State возвращает текущее состояние
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Token возвращает текущий токен или пустую строку
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User возвращает копию текущего пользователя или nil
func (s *Store) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Wait блокируется до завершения Restore
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.restored:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restore восстанавливает сессию из хранилища и проверяет ее на бэкенде.
// Выполняется один раз; повторные вызовы ждут первого.
func (s *Store) Restore(ctx context.Context) {
	s.restoreOnce.Do(func() {
		defer close(s.restored)
		s.restore(ctx)
	})
	s.Wait(context.Background())
}

func (s *Store) restore(ctx context.Context) {
	token, tokenErr := s.storage.Get(ctx, storage.KeyAccessToken)
	rawUser, userErr := s.storage.Get(ctx, storage.KeyUser)

	if errors.Is(tokenErr, storage.ErrNotFound) && errors.Is(userErr, storage.ErrNotFound) {
		s.setAbsent()
		return
	}
	if tokenErr != nil || userErr != nil || token == "" {
		s.logger.Warn("Partial or unreadable session, clearing",
			logger.Bool("token_present", tokenErr == nil),
			logger.Bool("user_present", userErr == nil))
		s.clear(ctx)
		return
	}

	var persisted User
	if err := json.Unmarshal([]byte(rawUser), &persisted); err != nil {
		s.logger.Warn("Persisted user is corrupted, clearing", logger.Error(err))
		s.clear(ctx)
		return
	}

	var current User
	if err := s.client.Get(ctx, "/api/v1/auth/me", &current, apiclient.Silent(), apiclient.WithToken(token)); err != nil {
		s.logger.Info("Stored session rejected", logger.Error(err))
		s.clear(ctx)
		return
	}

	if err := s.persist(ctx, token, current); err != nil {
		s.logger.Warn("Failed to persist restored session", logger.Error(err))
		s.clear(ctx)
		return
	}

	s.logger.Debug("Session restored", logger.String("username", current.Username))
}

// Login обменивает учетные данные на токен. Выдает ровно одно уведомление.
func (s *Store) Login(ctx context.Context, creds Credentials) (*User, error) {
	var resp AuthResponse
	err := s.client.Post(ctx, "/api/v1/auth/login", creds, &resp, apiclient.Silent(), apiclient.WithToken(""))
	if err != nil {
		return nil, s.loginFailure(ctx, err)
	}
	if resp.AccessToken == "" {
		notify.Error(ctx, s.notifier, MsgLoginUnexpected)
		return nil, pkgerrors.New(pkgerrors.ErrUnexpected, "login response has no access token")
	}

	if err := s.persist(ctx, resp.AccessToken, resp.User); err != nil {
		notify.Error(ctx, s.notifier, MsgLoginUnexpected)
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save session")
	}

	s.logger.Info("User logged in", logger.String("username", resp.User.Username))
	notify.Success(ctx, s.notifier, MsgLoginSuccess)
	return s.User(), nil
}

func (s *Store) loginFailure(ctx context.Context, err error) error {
	s.logger.Debug("Login failed", logger.Error(err))

	switch {
	case apiclient.StatusOf(err) == http.StatusUnauthorized:
		notify.Error(ctx, s.notifier, MsgInvalidCredentials)
		return pkgerrors.Wrap(err, pkgerrors.ErrUnauthorized, MsgInvalidCredentials)
	case apiclient.StatusOf(err) == http.StatusInternalServerError:
		notify.Error(ctx, s.notifier, MsgLoginServerError)
		return pkgerrors.WithContext(err, MsgLoginServerError)
	case apiclient.IsConnection(err):
		notify.Error(ctx, s.notifier, MsgLoginConnection)
		return pkgerrors.WithContext(err, MsgLoginConnection)
	default:
		notify.Error(ctx, s.notifier, MsgLoginUnexpected)
		return pkgerrors.WithContext(err, MsgLoginUnexpected)
	}
}

// Logout безусловно очищает сессию. Идемпотентен.
func (s *Store) Logout(ctx context.Context) error {
	err := s.clear(ctx)
	notify.Success(ctx, s.notifier, MsgLogoutSuccess)
	return err
}

// UpdateIdentity применяет частичное обновление к пользователю и сохраняет его.
// Без активной сессии ничего не делает.
func (s *Store) UpdateIdentity(ctx context.Context, patch IdentityPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return nil
	}

	updated := patch.Apply(*s.user)
	data, err := json.Marshal(updated)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to encode user")
	}
	if err := s.storage.Set(ctx, map[string]string{storage.KeyUser: string(data)}); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to save user")
	}
	s.user = &updated
	return nil
}

// Refresh перечитывает пользователя с бэкенда
func (s *Store) Refresh(ctx context.Context) (*User, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	var current User
	if err := s.client.Get(ctx, "/api/v1/auth/me", &current); err != nil {
		return nil, err
	}
	if err := s.persistIfCurrent(ctx, token, token, current); err != nil {
		return nil, err
	}
	return s.User(), nil
}

// RefreshToken получает новый токен, заменяя токен и пользователя атомарно
func (s *Store) RefreshToken(ctx context.Context) (*AuthResponse, error) {
	token := s.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	var resp AuthResponse
	if err := s.client.Post(ctx, "/api/v1/auth/refresh-token", nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, pkgerrors.New(pkgerrors.ErrUnexpected, "refresh response has no access token")
	}
	if err := s.persistIfCurrent(ctx, token, resp.AccessToken, resp.User); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Invalidate очищает сессию, если token все еще текущий.
// Возвращает true, если очистка произошла.
func (s *Store) Invalidate(ctx context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == "" || token != s.token {
		return false
	}
	if err := s.clearLocked(ctx); err != nil {
		s.logger.Warn("Failed to clear persisted session", logger.Error(err))
	}
	s.logger.Info("Session invalidated by server")
	return true
}

func (s *Store) persist(ctx context.Context, token string, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx, token, user)
}

// persistIfCurrent сохраняет новую пару, если за время запроса сессия не сменилась
func (s *Store) persistIfCurrent(ctx context.Context, expected, token string, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != expected {
		return ErrNoSession
	}
	return s.persistLocked(ctx, token, user)
}

func (s *Store) persistLocked(ctx context.Context, token string, user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	if err := s.storage.Set(ctx, map[string]string{
		storage.KeyAccessToken: token,
		storage.KeyUser:        string(data),
	}); err != nil {
		return err
	}

	s.token = token
	s.user = &user
	s.state = StatePresent
	return nil
}

func (s *Store) clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearLocked(ctx)
}

// clearLocked сбрасывает память даже при ошибке хранилища
func (s *Store) clearLocked(ctx context.Context) error {
	s.token = ""
	s.user = nil
	s.state = StateAbsent

	if err := s.storage.Delete(ctx, storage.KeyAccessToken, storage.KeyUser); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to clear session storage")
	}
	return nil
}

func (s *Store) setAbsent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateAbsent
}
