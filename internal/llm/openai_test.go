package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tjfontaine/formflow/internal/testutil"
)

func TestOpenAI_Complete_Recorded(t *testing.T) {
	r := testutil.NewVCRRecorder(t, "openai_complete")

	client := NewOpenAI("test-key",
		WithHTTPClient(testutil.VCRHTTPClient(r)),
		WithTemperature(0),
		WithJSONMode(true),
	)

	got, err := client.Complete(context.Background(), "Extract the record.\n\nMessage:\n专项检查发现配电室消防通道堵塞，罚款500元")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(got), &record); err != nil {
		t.Fatalf("completion is not JSON: %v (%q)", err, got)
	}
	if record["underCheckOrg"] != "配电室" {
		t.Errorf("underCheckOrg = %v", record["underCheckOrg"])
	}
}

func TestOpenAI_Complete_RequestShape(t *testing.T) {
	var captured chatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"{\"category\":2}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAI("sk-test",
		WithBaseURL(srv.URL+"/v1/"),
		WithModel("qwen2.5-72b-instruct"),
		WithMaxTokens(512),
		WithJSONMode(true),
	)
	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"category":2}` {
		t.Errorf("Complete() = %q", got)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if captured.Model != "qwen2.5-72b-instruct" || captured.MaxTokens != 512 {
		t.Errorf("request = %+v", captured)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Errorf("response_format = %+v", captured.ResponseFormat)
	}
	if len(captured.Messages) != 1 || captured.Messages[0].Content != "hello" {
		t.Errorf("messages = %+v", captured.Messages)
	}
}

func TestOpenAI_Complete_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "provider error body",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit reached","type":"rate_limit_error"}}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("error = %v, want *StatusError", err)
				}
				if se.StatusCode != http.StatusTooManyRequests || se.Type != "rate_limit_error" || se.Message != "Rate limit reached" {
					t.Errorf("StatusError = %+v", se)
				}
			},
		},
		{
			name:   "plain error body",
			status: http.StatusBadGateway,
			body:   "upstream down",
			check: func(t *testing.T, err error) {
				var se *StatusError
				if !errors.As(err, &se) || se.Message != "upstream down" {
					t.Fatalf("error = %v", err)
				}
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyCompletion) {
					t.Fatalf("error = %v, want ErrEmptyCompletion", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAI("", WithBaseURL(srv.URL)).Complete(context.Background(), "p")
			tt.check(t, err)
		})
	}
}

func TestOpenAI_Complete_Deadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOpenAI("", WithBaseURL(srv.URL)).Complete(ctx, "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestTokenCounter(t *testing.T) {
	for _, model := range []string{"gpt-4o", "some-local-model"} {
		t.Run(model, func(t *testing.T) {
			c, err := NewTokenCounter(model)
			if err != nil {
				t.Fatalf("NewTokenCounter() error = %v", err)
			}
			if n := c.Count("hello world"); n < 1 || n > 4 {
				t.Errorf("Count() = %d", n)
			}
			if n := c.Count(""); n != 0 {
				t.Errorf("Count(\"\") = %d", n)
			}
		})
	}
}
