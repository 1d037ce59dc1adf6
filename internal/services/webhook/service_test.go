package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fgeck/goworld-backup/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
	calls  int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	if m.doFunc != nil {
		return m.doFunc(req)
	}
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Body:       io.NopCloser(strings.NewReader("")),
	}, nil
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testConfig() models.WebhookConfig {
	return models.WebhookConfig{
		Enabled: true,
		URL:     "https://discord.com/api/webhooks/123/abc",
	}
}

func TestSend_Success(t *testing.T) {
	var capturedRequest *http.Request
	var capturedBody []byte

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			capturedRequest = req
			capturedBody, _ = io.ReadAll(req.Body)
			return &http.Response{
				StatusCode: http.StatusNoContent,
				Body:       io.NopCloser(strings.NewReader("")),
			}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient)
	result := svc.Send(context.Background(), testConfig(), "Backup Completed", "Backup file created:\n`backup_2024-01-15_10-30-00.zip`")

	require.NoError(t, result.Error)
	assert.True(t, result.MessageSent)
	assert.Equal(t, http.StatusNoContent, result.StatusCode)

	assert.Equal(t, http.MethodPost, capturedRequest.Method)
	assert.Equal(t, "https://discord.com/api/webhooks/123/abc", capturedRequest.URL.String())
	assert.Equal(t, "application/json", capturedRequest.Header.Get("Content-Type"))
	assert.JSONEq(t,
		`{"embeds":[{"title":"Backup Completed","description":"Backup file created:\n`+"`backup_2024-01-15_10-30-00.zip`"+`","color":3066993}]}`,
		string(capturedBody))
}

func TestSend_EscapesUserText(t *testing.T) {
	var body payload

	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			raw, _ := io.ReadAll(req.Body)
			require.NoError(t, json.Unmarshal(raw, &body))
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		},
	}

	svc := NewWithClient(testLogger(), httpClient)
	result := svc.Send(context.Background(), testConfig(), `quote " here`, "back\\slash")

	require.NoError(t, result.Error)
	require.Len(t, body.Embeds, 1)
	assert.Equal(t, `quote " here`, body.Embeds[0].Title)
	assert.Equal(t, "back\\slash", body.Embeds[0].Description)
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		doFunc  func(req *http.Request) (*http.Response, error)
		wantErr string
	}{
		{
			name:    "malformed url",
			url:     "not a url",
			wantErr: "invalid webhook url",
		},
		{
			name: "network error",
			url:  "https://example.com/hook",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			},
			wantErr: "failed to send request",
		},
		{
			name: "non 2xx",
			url:  "https://example.com/hook",
			doFunc: func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusTooManyRequests,
					Body:       io.NopCloser(strings.NewReader(`{"retry_after":1}`)),
				}, nil
			},
			wantErr: "status 429",
		},
		{
			name: "transport panic",
			url:  "https://example.com/hook",
			doFunc: func(req *http.Request) (*http.Response, error) {
				panic("boom")
			},
			wantErr: "webhook panic",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWithClient(testLogger(), &mockHTTPClient{doFunc: tt.doFunc})
			result := svc.Send(context.Background(), models.WebhookConfig{Enabled: true, URL: tt.url}, "t", "d")

			assert.False(t, result.MessageSent)
			require.Error(t, result.Error)
			assert.Contains(t, result.Error.Error(), tt.wantErr)
		})
	}
}

func TestNotify_DisabledSendsNothing(t *testing.T) {
	httpClient := &mockHTTPClient{}
	svc := NewWithClient(testLogger(), httpClient)

	svc.Notify(context.Background(), nil, "t", "d")
	svc.Notify(context.Background(), &models.WebhookConfig{Enabled: false, URL: "https://example.com"}, "t", "d")

	assert.Equal(t, 0, httpClient.calls)
}

func TestNotify_SwallowsFailures(t *testing.T) {
	httpClient := &mockHTTPClient{
		doFunc: func(req *http.Request) (*http.Response, error) {
			panic("transport exploded")
		},
	}
	svc := NewWithClient(testLogger(), httpClient)
	cfg := testConfig()

	assert.NotPanics(t, func() {
		svc.Notify(context.Background(), &cfg, "t", "d")
	})
	assert.Equal(t, 1, httpClient.calls)
}

func TestNotify_RealServer(t *testing.T) {
	received := make(chan payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	svc := New(testLogger())
	svc.Notify(context.Background(), &models.WebhookConfig{Enabled: true, URL: srv.URL}, "Backup Service Started", "The backup system is now running.")

	p := <-received
	require.Len(t, p.Embeds, 1)
	assert.Equal(t, "Backup Service Started", p.Embeds[0].Title)
	assert.Equal(t, EmbedColor, p.Embeds[0].Color)
}
