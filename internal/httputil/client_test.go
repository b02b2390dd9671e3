package httputil

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricehawk/pricehawk-engine/internal/stealth"
)

func TestGet_DecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		gz.Write([]byte(`{"ok":true}`))
		gz.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	// DisableCompression keeps the transport from decoding transparently.
	client := NewHTTPClient(&http.Transport{DisableCompression: true}, 0)
	body, err := Get(context.Background(), client, srv.URL, JSONHeaders(), 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := Get(context.Background(), NewHTTPClient(nil, 0), srv.URL, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestGet_RobotsRefusalIsNotRetried(t *testing.T) {
	var pages atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.Write([]byte("User-agent: *\nDisallow: /\n"))
			return
		}
		pages.Add(1)
	}))
	defer srv.Close()

	tr := &stealth.StealthTransport{Base: http.DefaultTransport, Robots: stealth.NewRobotsChecker(srv.Client(), true)}
	_, err := Get(context.Background(), NewHTTPClient(tr, 0), srv.URL+"/products/1", nil, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, stealth.ErrBlockedByRobots)
	assert.Zero(t, pages.Load())
}

func TestGet_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Get(context.Background(), NewHTTPClient(nil, 0), srv.URL, nil, 0)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	body, err := PostJSON(context.Background(), NewHTTPClient(nil, 0), srv.URL, map[string]string{"query": "{}"}, nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{}}`, string(body))
}
