package logo

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/notify"
	"ReqTrack/internal/testserver"
)

type staticToken string

func (s staticToken) Token() string                           { return string(s) }
func (s staticToken) Invalidate(context.Context, string) bool { return false }

func newLogoService(t *testing.T) (*Service, *testserver.Server, *notify.Recorder) {
	t.Helper()
	server := testserver.New(t)
	server.AddUser("admin", "secret123", "admin")

	notices := notify.NewRecorder()
	client := apiclient.New(apiclient.Options{BaseURL: server.URL, Notifier: notices})
	client.SetTokenSource(staticToken(server.IssueToken("admin")))
	return NewService(client, notices, nil), server, notices
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"logo.png":  "image/png",
		"logo.JPG":  "image/jpeg",
		"logo.jpeg": "image/jpeg",
		"logo.gif":  "image/gif",
		"logo.svg":  "image/svg+xml",
	}
	for path, want := range tests {
		got, err := ContentType(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got)
	}

	_, err := ContentType("logo.bmp")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))
}

func TestUploadListDownloadDelete(t *testing.T) {
	svc, _, notices := newLogoService(t)
	ctx := context.Background()
	content := []byte("\x89PNG fake image")

	result, err := svc.Upload(ctx, writeFile(t, "company.png", content))
	require.NoError(t, err)
	assert.Equal(t, "company.png", result.OriginalName)
	assert.Equal(t, int64(len(content)), result.Size)
	assert.Contains(t, result.Filename, ".png")

	logos, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, logos, 1)
	assert.Equal(t, result.Filename, logos[0].Filename)

	var buf bytes.Buffer
	n, err := svc.Download(ctx, result.Filename, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, buf.Bytes())

	require.NoError(t, svc.Delete(ctx, result.Filename))
	logos, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, logos)

	assert.Equal(t, []string{"Logo uploaded", "Logo deleted"}, notices.Messages(notify.LevelSuccess))
}

func TestUpload_RejectedBeforeRequest(t *testing.T) {
	svc, server, notices := newLogoService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, writeFile(t, "notes.txt", []byte("text")))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	_, err = svc.Upload(ctx, writeFile(t, "huge.png", make([]byte, MaxSize+1)))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	_, err = svc.Upload(ctx, filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrValidation))

	assert.Zero(t, server.Hits(http.MethodPost, "/api/v1/upload/logo"))
	assert.Len(t, notices.Messages(notify.LevelError), 3)
}

func TestDownload_NotFound(t *testing.T) {
	svc, _, notices := newLogoService(t)

	var buf bytes.Buffer
	_, err := svc.Download(context.Background(), "logo_missing.png", &buf)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrNotFound))
	assert.Equal(t, []string{"Failed to download logo: " + apiclient.MsgNotFound}, notices.Messages(notify.LevelError))
}

func TestUpload_ServerRejects(t *testing.T) {
	svc, server, notices := newLogoService(t)
	server.Fail(http.MethodPost, "/api/v1/upload/logo", http.StatusBadRequest, map[string]string{"detail": "Arquivo muito grande"})

	_, err := svc.Upload(context.Background(), writeFile(t, "company.gif", []byte("GIF89a")))
	require.Error(t, err)
	assert.Equal(t, []string{"Failed to upload logo: Arquivo muito grande"}, notices.Messages(notify.LevelError))
}
