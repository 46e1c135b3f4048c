package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, check func(r *http.Request, body map[string]any), lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(r, body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "%s\n", l)
			w.(http.Flusher).Flush()
		}
	}))
}

var testPrompt = Prompt{
	System:  "sys",
	Mood:    "mood",
	History: []Turn{{Role: RoleUser, Content: "earlier"}},
	User:    "now",
}

func TestOpenAIStreamerIncremental(t *testing.T) {
	srv := sseServer(t, func(r *http.Request, body map[string]any) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "gpt-test", body["model"])
		assert.Equal(t, true, body["stream"])
		assert.Len(t, body["messages"], 3)
	},
		frame("Hel"),
		"",
		frame("lo\n"),
		"data: {broken",
		frame("world"),
		"data: [DONE]",
	)
	defer srv.Close()

	s := NewOpenAIStreamer(srv.Client(), srv.URL, "sk-test", "gpt-test", time.Second)

	var emitted []string
	reply, err := s.Stream(context.Background(), testPrompt, func(seg string) {
		emitted = append(emitted, seg)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello\nworld", reply)
	assert.Equal(t, []string{"Hel", "lo\n", "world"}, emitted)
}

func TestOllamaStreamerLineBuffered(t *testing.T) {
	srv := sseServer(t, func(r *http.Request, body map[string]any) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "llama3", body["model"])

		opts, _ := body["options"].(map[string]any)
		assert.Equal(t, -2.0, opts["num_predict"])
		assert.Equal(t, 1.0, opts["temperature"])

		msgs, _ := body["messages"].([]any)
		if assert.Len(t, msgs, 3) {
			first, _ := msgs[0].(map[string]any)
			assert.Equal(t, "system", first["role"])
			assert.Equal(t, "sys\nmood", first["content"])
		}
	},
		frame("Hel"),
		frame("lo\n"),
		frame("world"),
	)
	defer srv.Close()

	s := NewOllamaStreamer(srv.Client(), srv.URL+"/", "llama3", time.Second)

	var emitted []string
	reply, err := s.Stream(context.Background(), testPrompt, func(seg string) {
		emitted = append(emitted, seg)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello\nworld", reply)
	assert.Equal(t, []string{"Hello", "world"}, emitted)
}

func TestStreamerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewOpenAIStreamer(srv.Client(), srv.URL, "nope", "m", time.Second)
	_, err := s.Stream(context.Background(), testPrompt, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Error(), "bad key")
}

func TestStreamerIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s\n", frame("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := NewOllamaStreamer(srv.Client(), srv.URL, "m", 50*time.Millisecond)
	reply, err := s.Stream(context.Background(), testPrompt, nil)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "", reply)
}

func TestStreamerTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewOpenAIStreamer(http.DefaultClient, url, "k", "m", time.Second)
	_, err := s.Stream(context.Background(), testPrompt, nil)
	assert.Error(t, err)

	var se *StatusError
	assert.False(t, errors.As(err, &se))
}
