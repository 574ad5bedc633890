package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/campusync/internal/errors"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/models"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/api/", StaticToken("tok-123"),
		WithHTTPClient(srv.Client()),
		WithRateLimit(0, 0),
		WithLogger(logging.Discard()))
}

func TestClient_headersAndPaths(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"id":"s1","name":"Ada"}`))
	})

	rec, err := c.Update(context.Background(), "students", "s1", models.Record{"id": "s1", "name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, got.Method)
	assert.Equal(t, "/api/students/s1", got.URL.Path)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer tok-123", got.Header.Get("Authorization"))
	assert.JSONEq(t, `{"id":"s1","name":"Ada"}`, string(gotBody))
	assert.Equal(t, "Ada", rec["name"])
}

func TestClient_noTokenNoHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, WithHTTPClient(srv.Client()), WithLogger(logging.Discard()))
	recs, err := c.List(context.Background(), "classes")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClient_listShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"bare array", `[{"id":"1"},{"id":"2"}]`, []string{"1", "2"}},
		{"data array", `{"data":[{"id":"3"}],"total":1}`, []string{"3"}},
		{"data object", `{"data":{"id":"4"}}`, []string{"4"}},
		{"single object", `{"id":"5","name":"x"}`, []string{"5"}},
		{"numeric id", `[{"id":42}]`, []string{"42"}},
		{"empty body", ``, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			recs, err := c.List(context.Background(), "students")
			require.NoError(t, err)
			var ids []string
			for _, r := range recs {
				ids = append(ids, r.ID())
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestClient_createReturnsServerRecord(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/fees", r.URL.Path)
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		in["id"] = "srv-1"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": in})
	})

	rec, err := c.Create(context.Background(), "fees", models.Record{"amount": 100.0})
	require.NoError(t, err)
	assert.Equal(t, "srv-1", rec.ID())
	assert.Equal(t, 100.0, rec["amount"])
}

func TestClient_errorMapping(t *testing.T) {
	tests := []struct {
		status int
		code   apperrors.ErrorCode
	}{
		{http.StatusUnauthorized, apperrors.ErrAuth},
		{http.StatusForbidden, apperrors.ErrAuth},
		{http.StatusNotFound, apperrors.ErrHTTP},
		{http.StatusConflict, apperrors.ErrHTTP},
		{http.StatusInternalServerError, apperrors.ErrHTTP},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			err := c.Delete(context.Background(), "students", "s1")
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, tt.status, StatusCode(err))
			assert.Equal(t, tt.status == http.StatusNotFound, IsNotFound(err))
		})
	}
}

func TestClient_networkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(base, nil, WithLogger(logging.Discard()))
	_, err := c.List(context.Background(), "students")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNetwork, apperrors.CodeOf(err))
	assert.Equal(t, 0, StatusCode(err))
}

func TestClient_contextCancel(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "students", "s1")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNetwork))
}

func TestClient_pathEscaping(t *testing.T) {
	var rawPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rawPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	})
	_, _ = c.Get(context.Background(), "students", "a/b")
	assert.Equal(t, "/api/students/a%2Fb", rawPath)
}
