package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerperSearch_Search(t *testing.T) {
	var body serperRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"organic": [
				{"title": "Venue A", "link": "https://a.example", "snippet": "Big hall", "position": 1},
				{"title": "Venue B", "link": "https://b.example", "snippet": "Small room", "position": 2, "date": "2026-01-01"},
				{"title": "Venue C", "link": "https://c.example", "snippet": "Rooftop", "position": 3}
			]
		}`))
	}))
	defer srv.Close()

	s := NewSerperSearchWithClient("secret", srv.URL, srv.Client())
	results, err := s.Search(context.Background(), "venues in San Francisco", WebSearchOptions{MaxResults: 2, Language: "en", Region: "us"})
	require.NoError(t, err)

	assert.Equal(t, "venues in San Francisco", body.Q)
	assert.Equal(t, 2, body.Num)
	assert.Equal(t, "en", body.HL)
	assert.Equal(t, "us", body.GL)

	require.Len(t, results, 2)
	assert.Equal(t, "https://a.example", results[0].URL)
	assert.Equal(t, "2026-01-01", results[1].Date)
	assert.Equal(t, "serper", s.Name())
}

func TestSerperSearch_AnswerBoxFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"answerBox":{"title":"Answer","answer":"42"},"organic":[{"title":"x","link":"https://x.example"}]}`))
	}))
	defer srv.Close()

	results, err := NewSerperSearchWithClient("k", srv.URL, srv.Client()).Search(context.Background(), "q", WebSearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "42", results[0].Snippet)
}

func TestSerperSearch_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"organic":[]}`))
	}))
	defer srv.Close()

	s := NewSerperSearchWithClient("k", srv.URL, srv.Client())
	results, err := s.Search(context.Background(), "q", WebSearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSerperSearch_GivesUpWhenRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewSerperSearchWithClient("k", srv.URL, srv.Client())
	s.MaxBackoff = 500 * time.Millisecond
	_, err := s.Search(context.Background(), "q", WebSearchOptions{})
	assert.ErrorContains(t, err, "rate limited")
}

func TestSerperSearch_Errors(t *testing.T) {
	_, err := NewSerperSearch("", "", 0).Search(context.Background(), "q", WebSearchOptions{})
	assert.ErrorContains(t, err, "API key is missing")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()
	_, err = NewSerperSearchWithClient("k", srv.URL, srv.Client()).Search(context.Background(), "q", WebSearchOptions{})
	assert.ErrorContains(t, err, "serper http 403")
}
