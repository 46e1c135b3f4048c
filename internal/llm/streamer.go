package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	DefaultTimeout = 30 * time.Second

	maxLineSize = 1 << 20
)

var ErrTimeout = errors.New("completion stream timed out")

// Prompt is everything one completion request is built from.
type Prompt struct {
	System  string
	Mood    string
	History []Turn
	User    string
}

// Messages lays the prompt out as system, history, then the user turn.
func (p Prompt) Messages() []Turn {
	msgs := make([]Turn, 0, len(p.History)+2)
	msgs = append(msgs, Turn{Role: RoleSystem, Content: p.System + "\n" + p.Mood})
	msgs = append(msgs, p.History...)
	msgs = append(msgs, Turn{Role: RoleUser, Content: p.User})
	return msgs
}

// CompletionStreamer sends a prompt to a language model and streams the
// reply. emit receives displayable segments as they complete; the full
// reply is returned at the end.
type CompletionStreamer interface {
	Stream(ctx context.Context, p Prompt, emit func(segment string)) (string, error)
}

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("completion request failed: %s", e.Status)
	}
	return fmt.Sprintf("completion request failed: %s: %s", e.Status, e.Body)
}

// httpStream posts a JSON body and feeds the line-oriented response
// through an Assembler. The timeout bounds the wait for the response
// headers and for every following line.
type httpStream struct {
	client  *http.Client
	url     string
	headers map[string]string
	mode    Mode
	timeout time.Duration
}

func (s *httpStream) do(ctx context.Context, body any, emit func(string)) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timeout := s.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var timedOut atomic.Bool
	idle := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		cancel()
	})
	defer idle.Stop()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if timedOut.Load() {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("post %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(b)),
		}
	}

	if emit == nil {
		emit = func(string) {}
	}

	asm := NewAssembler(s.mode)

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		idle.Reset(timeout)
		for _, seg := range asm.Feed(sc.Text()) {
			emit(seg)
		}
	}

	if err := sc.Err(); err != nil {
		if timedOut.Load() {
			return asm.Response(), ErrTimeout
		}
		return asm.Response(), fmt.Errorf("read stream: %w", err)
	}

	if tail := asm.Finish(); tail != "" {
		emit(tail)
	}

	log.Debug("Completion stream done", "url", s.url, "chars", len(asm.Response()))

	return asm.Response(), nil
}
