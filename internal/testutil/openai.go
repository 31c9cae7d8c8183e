package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// NewOpenAIServer serves /chat/completions with the relocations of Generator,
// for tests that exercise the real client.
func NewOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	gen := &Generator{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		content, err := gen.Generate(r.Context(), "", req.Messages[len(req.Messages)-1].Content)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 0,
			"model":   "test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// CopyFixture copies a testdata/java-layered project into a temp directory so
// that runs may write history next to it.
func CopyFixture(t *testing.T, name string) string {
	t.Helper()
	dst := t.TempDir()
	src := Fixture(name)
	if err := copyTree(src, dst); err != nil {
		t.Fatalf("copying fixture %s: %v", name, err)
	}
	return dst
}
