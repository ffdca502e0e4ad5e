package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestOllamaResponder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream || req.Model != "qwen2.5:3b" || len(req.Messages) != 2 || req.Options.NumPredict != 150 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Message: ollamaMessage{Role: "assistant", Content: "唔使驚"}})
	}))
	defer srv.Close()

	o := NewOllamaResponder(srv.URL, "qwen2.5:3b", 2, 5*time.Second)
	got, err := o.Reply(context.Background(), Completion{System: "s", User: "u", Temperature: 0.7, MaxTokens: 150})
	if err != nil || got != "唔使驚" {
		t.Errorf("Reply = %q, %v", got, err)
	}
}

func TestOllamaResponderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaResponder(srv.URL, "m", 1, time.Second).Reply(context.Background(), Completion{})
	if err == nil || !strings.Contains(err.Error(), "ollama status 404") {
		t.Errorf("err = %v", err)
	}
}

func TestOpenAIResponder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer ark-key" {
			t.Errorf("Authorization = %q", auth)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "doubao-pro-32k" || req["temperature"] != 0.7 || req["max_tokens"] != float64(150) {
			t.Errorf("request = %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"doubao-pro-32k",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"我明白你嘅感受。"}}]}`))
	}))
	defer srv.Close()

	r := NewOpenAIResponder(srv.URL+"/api/v3", "ark-key", "doubao-pro-32k", 5*time.Second)
	got, err := r.Reply(context.Background(), Completion{System: "s", User: "u", Temperature: 0.7, MaxTokens: 150})
	if err != nil || got != "我明白你嘅感受。" {
		t.Errorf("Reply = %q, %v", got, err)
	}
}

func TestOpenAIResponderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIResponder(srv.URL, "k", "m", time.Second).Reply(context.Background(), Completion{})
	if err == nil {
		t.Error("expected error on 401")
	}
}
