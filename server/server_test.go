package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justapithecus/mavbridge/log"
)

func frontend() fstest.MapFS {
	return fstest.MapFS{
		"index.html":    {Data: []byte("<html>viewer</html>")},
		"assets/app.js": {Data: []byte("console.log('mav')")},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_ServesFiles(t *testing.T) {
	h := NewHandler(frontend(), log.Nop())

	rec := get(t, h, "/assets/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('mav')", rec.Body.String())

	rec = get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>viewer</html>", rec.Body.String())
}

func TestHandler_UnknownPathFallsBackToIndex(t *testing.T) {
	h := NewHandler(frontend(), log.Nop())

	for _, p := range []string{"/vehicles/7", "/assets", "/../etc/passwd"} {
		rec := get(t, h, p)
		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.Equal(t, "<html>viewer</html>", rec.Body.String(), p)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"), p)
	}
}

func TestHandler_NoIndex(t *testing.T) {
	h := NewHandler(fstest.MapFS{}, log.Nop())
	assert.Equal(t, http.StatusNotFound, get(t, h, "/").Code)
}

func TestNew_MissingIndex(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingIndex))

	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, IndexFile), 0o755))
	assert.ErrorIs(t, CheckAssets(dir), ErrMissingIndex)
}

func TestServer_RunAndShutdown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, IndexFile), []byte("ok"), 0o644))

	s, err := New(Config{Addr: "127.0.0.1:0", Dir: dir}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	assert.NoError(t, <-done)
}
