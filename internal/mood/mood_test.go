package mood

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		text string
		want Mood
	}{
		{"I love talking to you", Flirty},
		{"I am so FURIOUS right now", Angry},
		{"feeling a bit down today", Sad},
		{"I'm scared of the dark", Fearful},
		{"wow I'm shocked", Surprised},
		{"that is revolting, I feel sick", Disgusted},
		{"I'm so happy", Joyful},
		{"it's okay I guess", Neutral},
		{"what's the weather", Neutral},
		{"", Neutral},
		// flirty outranks sad
		{"heartbroken but still in love", Flirty},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Analyze(tt.text))

			got, err := KeywordClassifier{}.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPromptStoreFallsBackWhenMissing(t *testing.T) {
	store := NewPromptStore(afero.NewMemMapFs(), "ava/prompts.json")

	assert.Equal(t, DefaultPrompts(), store.Load())
	for _, m := range []Mood{Happy, Sad, Flirty, Angry, Neutral, Fearful, Surprised, Disgusted, Joyful} {
		assert.NotEmpty(t, store.Adjust(m), m)
	}
	assert.Equal(t, "RESPOND WITH REASSURANCE.", store.Adjust(Fearful))
}

func TestPromptStoreFallsBackOnBadJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "ava/prompts.json", []byte(`{"happy": `), 0o644))

	store := NewPromptStore(fs, "ava/prompts.json")
	assert.Equal(t, DefaultPrompts(), store.Load())

	require.NoError(t, afero.WriteFile(fs, "ava/prompts.json", []byte(`null`), 0o644))
	assert.Equal(t, DefaultPrompts(), store.Load())
}

func TestPromptStoreUsesConfiguredText(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "ava/prompts.json",
		[]byte(`{"happy": "BE CHEERFUL.", "sad": "BE GENTLE."}`), 0o644))

	store := NewPromptStore(fs, "ava/prompts.json")

	assert.Equal(t, "BE CHEERFUL.", store.Adjust(Happy))
	assert.Equal(t, "BE GENTLE.", store.Adjust(Sad))
	assert.Equal(t, "", store.Adjust(Angry))
	assert.Equal(t, "", store.Adjust(Mood("bored")))

	// re-read on every call
	require.NoError(t, afero.WriteFile(fs, "ava/prompts.json", []byte(`{"happy": "YAY."}`), 0o644))
	assert.Equal(t, "YAY.", store.Adjust(Happy))
}

func TestUnknownMoodWithDefaults(t *testing.T) {
	store := NewPromptStore(afero.NewMemMapFs(), "missing.json")
	assert.Equal(t, "", store.Adjust(Mood("melancholic")))
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"*smiles* Hello there!", "Hello there!"},
		{"Sure 😀 let's go.", "Sure  let's go."},
		{"  plain text, ok?  ", "plain text, ok?"},
		{"Ça va? Très bien.", "Ça va? Très bien."},
		{"**bold** and *two* stars", "bold and  stars"},
		{"colons: dashes - and (parens)", "colons dashes  and parens"},
		{"snake_case stays\nacross lines", "snake_case stays\nacross lines"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), tt.in)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 400))
	assert.Equal(t, "abc...", Truncate("abcdef", 3))
	assert.Equal(t, "héé...", Truncate("hééllo", 3))
	assert.Equal(t, "anything", Truncate("anything", 0))
}

func TestParseLabel(t *testing.T) {
	m, err := parseLabel("  Sad.\n")
	require.NoError(t, err)
	assert.Equal(t, Sad, m)

	_, err = parseLabel("melancholy")
	assert.Error(t, err)
}

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			fmt.Fprint(w, `{"error":{"message":"boom"}}`)
			return
		}
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":0,"model":"m",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, content)
	}))
}

func newTestClient(url string) openai.Client {
	return openai.NewClient(
		option.WithAPIKey("sk-test"),
		option.WithBaseURL(url+"/"),
		option.WithMaxRetries(0),
	)
}

func TestOpenAIClassifier(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "Surprised")
	defer srv.Close()

	c := NewOpenAIClassifier(newTestClient(srv.URL), "gpt-test")
	m, err := c.Classify(context.Background(), "I love it")
	require.NoError(t, err)
	assert.Equal(t, Surprised, m)
}

func TestOpenAIClassifierFallsBackToKeywords(t *testing.T) {
	for name, srv := range map[string]*httptest.Server{
		"server error":  chatServer(t, http.StatusInternalServerError, ""),
		"unknown label": chatServer(t, http.StatusOK, "bored"),
	} {
		t.Run(name, func(t *testing.T) {
			defer srv.Close()

			c := NewOpenAIClassifier(newTestClient(srv.URL), "")
			m, err := c.Classify(context.Background(), "I'm so angry")
			require.NoError(t, err)
			assert.Equal(t, Angry, m)
		})
	}
}
