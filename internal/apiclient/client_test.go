package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/notify"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Invalidate(_ context.Context, token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == "" || token != f.token {
		return false
	}
	f.token = ""
	f.invalidated++
	return true
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *notify.Recorder, *int32) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rec := notify.NewRecorder()
	var navigations int32
	client := New(Options{
		BaseURL:   server.URL,
		Notifier:  rec,
		Navigator: NavigatorFunc(func() { atomic.AddInt32(&navigations, 1) }),
	})
	return client, rec, &navigations
}

func TestClient_InjectsHeaders(t *testing.T) {
	var got http.Header
	client, rec, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		respond(http.StatusOK, `{"ok":true}`)(w, r)
	}))
	client.SetTokenSource(&fakeTokens{token: "abc"})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, client.Post(context.Background(), "/api/v1/x", map[string]string{"a": "b"}, &out))

	assert.True(t, out.OK)
	assert.Equal(t, "Bearer abc", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("X-Request-ID"))
	assert.Empty(t, rec.Notices())
}

func TestClient_NoTokenSendsUnauthenticated(t *testing.T) {
	var auth string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	client.SetTokenSource(&fakeTokens{})

	require.NoError(t, client.Delete(context.Background(), "/api/v1/x", nil))
	assert.Empty(t, auth)
}

func TestClient_Classification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    pkgerrors.ErrorCode
		message string
	}{
		{"forbidden", 403, `{"detail":"Permissao negada"}`, pkgerrors.ErrForbidden, MsgForbidden},
		{"not found", 404, `{"detail":"Campo dinamico nao encontrado"}`, pkgerrors.ErrNotFound, MsgNotFound},
		{"validation list", 422, `{"detail":[{"msg":"a"},{"msg":"b"}]}`, pkgerrors.ErrValidation, "Validation error: a, b"},
		{"validation message", 422, `{"message":"bad input"}`, pkgerrors.ErrValidation, "bad input"},
		{"validation empty", 422, `{}`, pkgerrors.ErrValidation, MsgValidation},
		{"validation empty list", 422, `{"detail":[]}`, pkgerrors.ErrValidation, MsgValidation},
		{"server error", 500, `{"detail":"Erro interno do servidor"}`, pkgerrors.ErrInternal, MsgServerError},
		{"other with message", 409, `{"message":"duplicate"}`, pkgerrors.ErrConflict, "duplicate"},
		{"other with detail", 400, `{"detail":"Campo dinamico ja existe"}`, pkgerrors.ErrValidation, "Campo dinamico ja existe"},
		{"other without body", 502, ``, pkgerrors.ErrInternal, MsgUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, rec, nav := newTestClient(t, respond(tt.status, tt.body))
			tokens := &fakeTokens{token: "abc"}
			client.SetTokenSource(tokens)

			err := client.Get(context.Background(), "/api/v1/x", nil)
			require.Error(t, err)

			var appErr *pkgerrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.Status)
			assert.Equal(t, tt.message, appErr.Message)

			assert.Equal(t, []string{tt.message}, rec.Messages(notify.LevelError))
			assert.Equal(t, "abc", tokens.Token(), "session must survive non-401 errors")
			assert.Zero(t, atomic.LoadInt32(nav))
		})
	}
}

func TestClient_ValidationAggregatesIntoOneNotice(t *testing.T) {
	client, rec, _ := newTestClient(t, respond(422, `{"detail":[{"loc":["body","field_name"],"msg":"a","type":"x"},{"msg":"b"}]}`))

	err := client.Get(context.Background(), "/api/v1/x", nil)
	require.Error(t, err)

	notices := rec.Notices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "a")
	assert.Contains(t, notices[0].Message, "b")
}

func TestClient_WithActionNamesActionInNotice(t *testing.T) {
	client, rec, _ := newTestClient(t, respond(403, `{"detail":"nope"}`))

	err := client.Post(context.Background(), "/api/v1/x", map[string]string{}, nil, WithAction("save field"))
	require.Error(t, err)

	assert.Equal(t, []string{"Failed to save field: " + MsgForbidden}, rec.Messages(notify.LevelError))
	assert.Equal(t, MsgForbidden, err.(*pkgerrors.Error).Message)
}

func TestClient_Unauthorized(t *testing.T) {
	client, rec, nav := newTestClient(t, respond(401, `{"detail":"Could not validate credentials"}`))
	tokens := &fakeTokens{token: "abc"}
	client.SetTokenSource(tokens)

	err := client.Get(context.Background(), "/api/v1/auth/me", nil)

	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrUnauthorized))
	assert.Empty(t, tokens.Token())
	assert.Equal(t, int32(1), atomic.LoadInt32(nav))
	assert.Equal(t, []string{MsgSessionExpired}, rec.Messages(""))
}

// 401 на запрос без токена не трогает сессию и не уведомляет
func TestClient_UnauthorizedWithoutTokenIsSilent(t *testing.T) {
	client, rec, nav := newTestClient(t, respond(401, `{"detail":"Incorrect username or password"}`))
	tokens := &fakeTokens{}
	client.SetTokenSource(tokens)

	err := client.Post(context.Background(), "/api/v1/auth/login", map[string]string{}, nil)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrUnauthorized))
	assert.Empty(t, rec.Notices())
	assert.Zero(t, atomic.LoadInt32(nav))
	assert.Zero(t, tokens.invalidated)
}

func TestClient_ConcurrentUnauthorizedHandledOnce(t *testing.T) {
	release := make(chan struct{})
	client, rec, nav := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		respond(401, `{"detail":"expired"}`)(w, r)
	}))
	tokens := &fakeTokens{token: "abc"}
	client.SetTokenSource(tokens)

	const n = 8
	var wg sync.WaitGroup
	started := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			client.Get(context.Background(), "/api/v1/projects", nil)
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}
	// Даем запросам дойти до сервера с исходным токеном
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, tokens.invalidated)
	assert.Equal(t, int32(1), atomic.LoadInt32(nav))
	assert.Equal(t, []string{MsgSessionExpired}, rec.Messages(""))
}

func TestClient_SilentSuppressesSideEffects(t *testing.T) {
	client, rec, nav := newTestClient(t, respond(401, `{"detail":"Credenciais invalidas"}`))
	tokens := &fakeTokens{token: "abc"}
	client.SetTokenSource(tokens)

	err := client.Post(context.Background(), "/api/v1/auth/login", map[string]string{}, nil, Silent())

	assert.Equal(t, http.StatusUnauthorized, StatusOf(err))
	assert.Equal(t, "abc", tokens.Token())
	assert.Zero(t, atomic.LoadInt32(nav))
	assert.Empty(t, rec.Notices())
}

func TestClient_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	rec := notify.NewRecorder()
	client := New(Options{BaseURL: url, Notifier: rec})

	err := client.Get(context.Background(), "/api/v1/projects", nil)

	assert.True(t, IsConnection(err))
	assert.Equal(t, 0, StatusOf(err))
	assert.Equal(t, []string{MsgConnection}, rec.Messages(notify.LevelError))
}

func TestClient_CancelledRequestIsSilent(t *testing.T) {
	client, rec, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := client.Get(ctx, "/api/v1/projects", nil)
	require.Error(t, err)
	assert.False(t, IsConnection(err))
	assert.Empty(t, rec.Notices())
}

func TestClient_QueryAndDecode(t *testing.T) {
	var query string
	client, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode([]map[string]string{{"id": "1"}})
	}))

	var out []map[string]string
	err := client.Get(context.Background(), "/api/v1/dynamic-fields", &out,
		WithQuery(map[string][]string{"applies_to": {"project"}}))

	require.NoError(t, err)
	assert.Equal(t, "applies_to=project", query)
	assert.Equal(t, "1", out[0]["id"])
}

func TestClient_InvalidJSON(t *testing.T) {
	client, _, _ := newTestClient(t, respond(200, `{not json`))

	var out map[string]interface{}
	err := client.Get(context.Background(), "/api/v1/x", &out)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrUnexpected))
}

func TestNew_Defaults(t *testing.T) {
	client := New(Options{BaseURL: "http://example.com/"})
	assert.Equal(t, "http://example.com", client.BaseURL())
	assert.Equal(t, DefaultTimeout, client.HTTPClient().Timeout)

	assert.Equal(t, DefaultBaseURL, New(Options{}).BaseURL())
}
