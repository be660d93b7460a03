// Package testserver поднимает в процессе фейковый REST бэкенд
// для тестов клиента.
package testserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ReqTrack/pkg/health"
)

// User запись пользователя на стороне бэкенда
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	IsActive    bool     `json:"is_active"`
	IsSuperuser bool     `json:"is_superuser"`
	CreatedAt   string   `json:"created_at"`

	password string
}

// Field определение динамического поля в формате бэкенда
type Field struct {
	ID               string                 `json:"id"`
	FieldName        string                 `json:"field_name"`
	FieldType        string                 `json:"field_type"`
	FieldLabel       string                 `json:"field_label,omitempty"`
	FieldDescription string                 `json:"field_description,omitempty"`
	Options          []string               `json:"options,omitempty"`
	IsRequired       bool                   `json:"is_required"`
	IsActive         bool                   `json:"is_active"`
	AppliesTo        string                 `json:"applies_to"`
	OrderIndex       interface{}            `json:"order_index,omitempty"`
	ValidationRules  map[string]interface{} `json:"validation_rules,omitempty"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
}

// Logo загруженный логотип
type Logo struct {
	Filename    string `json:"filename"`
	ContentType string `json:"-"`
	Data        []byte `json:"-"`
	Size        int    `json:"size"`
	URL         string `json:"url"`
	CreatedAt   string `json:"created_at"`
}

type failure struct {
	status int
	body   interface{}
}

// Server фейковый бэкенд
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[string]*User
	tokens       map[string]string
	fields       []*Field
	projects     []map[string]interface{}
	requirements []map[string]interface{}
	logos        []*Logo
	failures     map[string]failure
	hits         map[string]int
	bodies       map[string][]byte
	clock        time.Time
	tokenSeq     int
}

// New запускает сервер; он останавливается при завершении теста
func New(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		users:    make(map[string]*User),
		tokens:   make(map[string]string),
		failures: make(map[string]failure),
		hits:     make(map[string]int),
		bodies:   make(map[string][]byte),
		clock:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.countAndFail)

	r.HandleFunc("/health", health.Handler("Requirements Tracking System", "1.0.0")).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.authenticate)
	protected.HandleFunc("/auth/me", s.handleMe).Methods(http.MethodGet)
	protected.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	protected.HandleFunc("/auth/refresh-token", s.handleRefresh).Methods(http.MethodPost)
	protected.HandleFunc("/users", s.handleUsers).Methods(http.MethodGet)
	protected.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPut)

	protected.HandleFunc("/dynamic-fields", s.handleListFields).Methods(http.MethodGet)
	protected.HandleFunc("/dynamic-fields", s.handleCreateField).Methods(http.MethodPost)
	protected.HandleFunc("/dynamic-fields/initialize-defaults", s.handleInitDefaults).Methods(http.MethodPost)
	protected.HandleFunc("/dynamic-fields/{id}", s.handleGetField).Methods(http.MethodGet)
	protected.HandleFunc("/dynamic-fields/{id}", s.handleUpdateField).Methods(http.MethodPut)
	protected.HandleFunc("/dynamic-fields/{id}", s.handleDeleteField).Methods(http.MethodDelete)
	protected.HandleFunc("/dynamic-fields/{id}/activate", s.handleToggleField(true)).Methods(http.MethodPost)
	protected.HandleFunc("/dynamic-fields/{id}/deactivate", s.handleToggleField(false)).Methods(http.MethodPost)

	protected.HandleFunc("/projects", s.handleListProjects).Methods(http.MethodGet)
	protected.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	protected.HandleFunc("/requirements", s.handleListRequirements).Methods(http.MethodGet)
	protected.HandleFunc("/requirements/{id}", s.handleGetRequirement).Methods(http.MethodGet)
	protected.HandleFunc("/reports/dashboard", s.handleDashboard).Methods(http.MethodGet)
	protected.HandleFunc("/reports/project/{id}/summary", s.handleProjectSummary).Methods(http.MethodGet)

	protected.HandleFunc("/upload/logo", s.handleUploadLogo).Methods(http.MethodPost)
	protected.HandleFunc("/upload/logo", s.handleListLogos).Methods(http.MethodGet)
	protected.HandleFunc("/upload/logo/{filename}", s.handleGetLogo).Methods(http.MethodGet)
	protected.HandleFunc("/upload/logo/{filename}", s.handleDeleteLogo).Methods(http.MethodDelete)

	return r
}

func routeKey(method, template string) string {
	return method + " " + template
}

// countAndFail считает обращения и подменяет ответ, если задан сбой
func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				template = t
			}
		}
		key := routeKey(r.Method, template)

		var body []byte
		if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut) {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.hits[key]++
		if body != nil {
			s.bodies[key] = body
		}
		f, failing := s.failures[key]
		s.mu.Unlock()

		if failing {
			writeJSON(w, f.status, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail заставляет маршрут отвечать status с телом body
func (s *Server) Fail(method, template string, status int, body interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[routeKey(method, template)] = failure{status: status, body: body}
}

// Recover снимает все заданные сбои
func (s *Server) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[string]failure)
}

// Hits возвращает число обращений к маршруту
func (s *Server) Hits(method, template string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[routeKey(method, template)]
}

// LastBody возвращает тело последнего POST/PUT запроса к маршруту
func (s *Server) LastBody(method, template string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bodies[routeKey(method, template)]
}

// AddUser регистрирует пользователя
func (s *Server) AddUser(username, password, role string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := &User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       username + "@example.com",
		Role:        role,
		Permissions: []string{},
		IsActive:    true,
		IsSuperuser: role == "admin",
		CreatedAt:   s.tick(),
		password:    password,
	}
	s.users[username] = u
	return u
}

// IssueToken выдает токен пользователю без входа
func (s *Server) IssueToken(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(username)
}

// TokenTTL срок жизни выдаваемых токенов
const TokenTTL = 30 * time.Minute

var signingKey = []byte("testserver-secret")

func (s *Server) issueLocked(username string) string {
	s.tokenSeq++
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ID:        fmt.Sprintf("%d", s.tokenSeq),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.tokens[token] = username
	return token
}

// RevokeAll делает все выданные токены недействительными
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// tick возвращает следующую отметку времени; вызывать под мьютексом
func (s *Server) tick() string {
	s.clock = s.clock.Add(time.Second)
	return s.clock.Format("2006-01-02T15:04:05.000000")
}

type userKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")

		s.mu.Lock()
		username, ok := s.tokens[token]
		user := s.users[username]
		s.mu.Unlock()

		if header == "" || !ok || user == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func detail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
