package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturedCall struct {
	Path   string
	Auth   string
	Body   map[string]interface{}
	Status int
}

type apiServer struct {
	mu     sync.Mutex
	calls  []capturedCall
	status int
}

func (s *apiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	status := s.status
	if status == 0 {
		status = http.StatusOK
	}
	s.calls = append(s.calls, capturedCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Body: body, Status: status})
	s.mu.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"status":"ok","retcode":0}`))
}

func (s *apiServer) Calls() []capturedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedCall(nil), s.calls...)
}

func testGatewayConfig(httpURL string) config.GatewayConfig {
	return config.GatewayConfig{
		HTTPURL:        httpURL,
		AccessToken:    "secret",
		CommandTimeout: 2 * time.Second,
		FetchTimeout:   2 * time.Second,
		FetchRetries:   0,
		MaxImageBytes:  1024,
	}
}

func TestSendGroupMessage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	api := &apiServer{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(testGatewayConfig(srv.URL+"/"), zap.NewNop())
	require.NoError(client.SendMessage(context.Background(), core.MessageGroup, "123456", "hello"))

	calls := api.Calls()
	require.Len(calls, 1)
	call := calls[0]
	assert.Equal("/send_group_msg", call.Path)
	assert.Equal("Bearer secret", call.Auth)
	assert.Equal(float64(123456), call.Body["group_id"])
	assert.Equal("hello", call.Body["message"])
}

func TestSendPrivateMessage(t *testing.T) {
	assert := assert.New(t)

	api := &apiServer{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(testGatewayConfig(srv.URL), zap.NewNop())
	assert.NoError(client.SendMessage(context.Background(), core.MessagePrivate, "u-1", "hi"))
	calls := api.Calls()
	assert.Equal("/send_private_msg", calls[0].Path)
	assert.Equal("u-1", calls[0].Body["user_id"])

	assert.Error(client.SendMessage(context.Background(), core.MessageType("channel"), "x", "hi"))
}

func TestDeleteMessage(t *testing.T) {
	assert := assert.New(t)

	api := &apiServer{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(testGatewayConfig(srv.URL), zap.NewNop())
	assert.NoError(client.DeleteMessage(context.Background(), 42))
	calls := api.Calls()
	assert.Equal("/delete_msg", calls[0].Path)
	assert.Equal(float64(42), calls[0].Body["message_id"])
}

func TestCommandRejected(t *testing.T) {
	api := &apiServer{status: http.StatusForbidden}
	srv := httptest.NewServer(api)
	defer srv.Close()

	client := NewClient(testGatewayConfig(srv.URL), zap.NewNop())
	err := client.DeleteMessage(context.Background(), 42)
	assert.ErrorContains(t, err, "statusCode=403")
}

func TestFetchImage(t *testing.T) {
	assert := assert.New(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/big.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	})
	mux.HandleFunc("/empty.jpg", func(w http.ResponseWriter, r *http.Request) {})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testGatewayConfig(srv.URL), zap.NewNop())
	ctx := context.Background()

	data, ok := client.FetchImage(ctx, srv.URL+"/ok.jpg")
	assert.True(ok)
	assert.Equal([]byte("jpeg-bytes"), data)

	// Scenario E: a 404 yields no data
	data, ok = client.FetchImage(ctx, srv.URL+"/missing.jpg")
	assert.False(ok)
	assert.Nil(data)

	_, ok = client.FetchImage(ctx, srv.URL+"/big.jpg")
	assert.False(ok)

	_, ok = client.FetchImage(ctx, srv.URL+"/empty.jpg")
	assert.False(ok)

	_, ok = client.FetchImage(ctx, "://bad-url")
	assert.False(ok)
}

func TestFetchImageRetriesServerErrors(t *testing.T) {
	assert := assert.New(t)

	var mu sync.Mutex
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("second-try"))
	}))
	defer srv.Close()

	cfg := testGatewayConfig(srv.URL)
	cfg.FetchRetries = 2
	cfg.FetchTimeout = 5 * time.Second
	client := NewClient(cfg, zap.NewNop())

	data, ok := client.FetchImage(context.Background(), srv.URL+"/img")
	assert.True(ok)
	assert.Equal([]byte("second-try"), data)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(2, attempts)
}
