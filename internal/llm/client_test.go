package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/spherical/verbatim/internal/domain"
)

func pageUnit() domain.Unit {
	return domain.NewUnit("scan", domain.UnitPage, 2, "image/png", func(ctx context.Context) ([]byte, error) {
		return []byte("png-bytes"), nil
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("sk-or-test-key", "", DefaultParams()).WithBaseURL(srv.URL)
}

// newStallingClient returns a client whose server reads the request and then
// waits until the client goes away or the test ends. Cleanups run in reverse
// order, so release is closed before the server shuts down.
func newStallingClient(t *testing.T) *Client {
	t.Helper()
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	t.Cleanup(func() { close(release) })
	return c
}

func completion(content string) string {
	b, _ := json.Marshal(Response{ID: "gen-1", Choices: []Choice{{Message: Delta{Role: "assistant", Content: content}}}})
	return string(b)
}

func TestNewClient(t *testing.T) {
	c := NewClient("key", "", Params{})
	assert.Equal(t, defaultModel, c.model)
	assert.Equal(t, int32(defaultMaxTokens), c.params.MaxOutputTokens)
	assert.Equal(t, defaultReqTimeout, c.params.Timeout)

	c = NewClient("key", "google/gemini-2.5-pro", DefaultParams())
	assert.Equal(t, "google/gemini-2.5-pro", c.model)
}

func TestClient_RecognizeSendsDeterministicRequest(t *testing.T) {
	var got Request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-or-test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		fmt.Fprint(w, completion("  === Page 2 ===\nनमस्ते  \n"))
	})

	text, err := c.Recognize(context.Background(), pageUnit(), "transcribe page 2")
	require.NoError(t, err)
	assert.Equal(t, "=== Page 2 ===\nनमस्ते", text)

	assert.False(t, got.Stream)
	assert.Equal(t, float32(0), got.Temperature)
	assert.Equal(t, float32(1), got.TopP)
	assert.Equal(t, int32(8192), got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "transcribe page 2", got.Messages[0].Content[0].Text)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestClient_BuildRequestForAudio(t *testing.T) {
	c := NewClient("key", "", DefaultParams())
	req, err := c.buildRequest("audio/mpeg", []byte("ID3"), "transcribe")
	require.NoError(t, err)

	part := req.Messages[0].Content[1]
	assert.Equal(t, "input_audio", part.Type)
	assert.Equal(t, "mp3", part.InputAudio.Format)
	assert.Equal(t, "SUQz", part.InputAudio.Data)

	_, err = c.buildRequest("application/zip", nil, "x")
	assert.Error(t, err)
}

func TestClient_RecognizeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType domain.ErrorType
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, domain.ErrorTypeRateLimit},
		{"server error", http.StatusBadGateway, "bad gateway", domain.ErrorTypeTransport},
		{"request timeout", http.StatusRequestTimeout, "", domain.ErrorTypeTransport},
		{"bad request", http.StatusBadRequest, `{"error":"invalid image"}`, domain.ErrorTypeRequest},
		{"empty content", http.StatusOK, completion("   \n"), domain.ErrorTypeEmptyResult},
		{"no choices", http.StatusOK, `{"id":"x","choices":[]}`, domain.ErrorTypeEmptyResult},
		{"error in body", http.StatusOK, `{"error":{"code":429,"message":"quota"}}`, domain.ErrorTypeRateLimit},
		{"garbage", http.StatusOK, "<html>", domain.ErrorTypeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := c.Recognize(context.Background(), pageUnit(), "p")
			require.Error(t, err)
			assert.Equal(t, tt.wantType, domain.TypeOf(err), err.Error())
		})
	}
}

func TestClient_RequestTimeoutIsTransport(t *testing.T) {
	c := newStallingClient(t)
	c.params.Timeout = 20 * time.Millisecond

	_, err := c.Recognize(context.Background(), pageUnit(), "p")
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.False(t, errors.Is(err, context.DeadlineExceeded), "a per-request timeout must not look like caller cancellation")
}

func TestClient_CallerCancellationPassesThrough(t *testing.T) {
	c := newStallingClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Recognize(ctx, pageUnit(), "p")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must not wait for the server")
}

func TestClient_PayloadFailureIsReturnedUnchanged(t *testing.T) {
	c := NewClient("key", "", DefaultParams())
	unit := domain.NewUnit("scan", domain.UnitPage, 1, "image/png", func(ctx context.Context) ([]byte, error) {
		return nil, domain.DecodeError("render failed", nil)
	})

	_, err := c.Recognize(context.Background(), unit, "p")
	assert.True(t, domain.IsType(err, domain.ErrorTypeDecode))
}

func TestClassifyAPIError(t *testing.T) {
	tests := []struct {
		err  genai.APIError
		want domain.ErrorType
	}{
		{genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}, domain.ErrorTypeRateLimit},
		{genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"}, domain.ErrorTypeRateLimit},
		{genai.APIError{Code: 503, Status: "UNAVAILABLE"}, domain.ErrorTypeTransport},
		{genai.APIError{Code: 408}, domain.ErrorTypeTransport},
		{genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "bad mime"}, domain.ErrorTypeRequest},
		{genai.APIError{Code: 403, Status: "PERMISSION_DENIED"}, domain.ErrorTypeRequest},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.TypeOf(classifyCallError(context.Background(), tt.err, time.Second)), tt.err.Status)
	}
}

func TestClassifyCallError_PlainNetworkErrorIsTransport(t *testing.T) {
	err := classifyCallError(context.Background(), errors.New("connection reset by peer"), time.Second)
	assert.True(t, domain.IsType(err, domain.ErrorTypeTransport))
}

// countingRecognizer counts calls.
type countingRecognizer struct{ calls atomic.Int32 }

func (c *countingRecognizer) Recognize(ctx context.Context, unit domain.Unit, prompt string) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

func TestNewPaced(t *testing.T) {
	inner := &countingRecognizer{}
	assert.Same(t, domain.Recognizer(inner), NewPaced(inner, 0))

	paced := NewPaced(inner, 600)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := paced.Recognize(context.Background(), pageUnit(), "p")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, int32(3), inner.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := paced.Recognize(ctx, pageUnit(), "p")
	assert.ErrorIs(t, err, context.Canceled)
}
