package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/isdelr/neuroscan-be/internal/models"
	"gotest.tools/v3/assert"
)

func TestCompleteSendsHistoryAndReturnsReply(t *testing.T) {
	var got struct {
		Model    string           `json:"model"`
		Messages []models.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/chat/completions")
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer test-key")
		assert.NilError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": "all clear"}}},
			"usage":   map[string]int{"total_tokens": 12},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})
	reply, err := c.Complete(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hello"},
	})
	assert.NilError(t, err)
	assert.Equal(t, reply, "all clear")
	assert.Equal(t, got.Model, "test-model")
	assert.Equal(t, len(got.Messages), 2)
	assert.Equal(t, got.Messages[1].Content, "hello")
}

func TestCompleteProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	_, err := c.Complete(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hi"}})
	assert.ErrorContains(t, err, "chat completion")
}
