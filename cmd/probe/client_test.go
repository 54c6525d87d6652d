package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"pairline/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?token=abc"},
		{"https://chat.example.com/", "wss://chat.example.com/ws?token=abc"},
		{"https://chat.example.com/pairline", "wss://chat.example.com/pairline/ws?token=abc"},
	}
	for _, tt := range tests {
		got, err := signalURL(tt.server, "abc")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestGuestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/guest", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "probe", body["display_name"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"user_id":       "guest_1",
			"access_token":  "tok",
			"refresh_token": "ref",
			"expires_at":    1,
		})
	}))
	defer srv.Close()

	tokens, err := guestLogin(context.Background(), srv.URL, "probe", "")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("guest_1"), tokens.UserID)
	assert.Equal(t, "tok", tokens.AccessToken)
}

func TestGuestLogin_RejectsNonCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := guestLogin(context.Background(), srv.URL, "probe", "")
	assert.Error(t, err)
}

func TestAppliers_StopsOnFirstError(t *testing.T) {
	var calls int
	ok := applierFunc(func(domain.QualityTier) error { calls++; return nil })
	fail := applierFunc(func(domain.QualityTier) error { calls++; return assert.AnError })

	err := appliers{ok, fail, ok}.Apply(domain.QualityTier{Label: "480p"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

type applierFunc func(domain.QualityTier) error

func (f applierFunc) Apply(tier domain.QualityTier) error { return f(tier) }
