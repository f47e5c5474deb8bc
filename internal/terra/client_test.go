package terra

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestFetchSendsCredentialsAndWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sleep", r.URL.Path)
		require.Equal(t, "terra-abc", r.URL.Query().Get("user_id"))
		require.Equal(t, "2023-03-07", r.URL.Query().Get("start_date"))
		require.Equal(t, "2024-03-07", r.URL.Query().Get("end_date"))
		require.Equal(t, "dev-1", r.Header.Get("dev-id"))
		require.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data":   []any{map[string]any{"sleep_duration_seconds": 25200}},
		})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, APIKey: "key-1", DevID: "dev-1"})
	end := time.Date(2024, 3, 7, 18, 0, 0, 0, time.UTC)
	resp, err := client.Fetch(context.Background(), domain.DataTypeSleep, "terra-abc", end.AddDate(-1, 0, 0), end)
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	require.Equal(t, 25200.0, resp.Data[0]["sleep_duration_seconds"])
}

func TestFetchReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/body" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream unavailable"))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "user not found"})
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	now := time.Now()

	_, err := client.Fetch(context.Background(), domain.DataTypeBody, "x", now, now)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, "upstream unavailable", apiErr.Body)

	_, err = client.Fetch(context.Background(), domain.DataTypeDaily, "x", now, now)
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "user not found", apiErr.Message)
}

func TestGenerateWidgetSessionAndDeauthenticate(t *testing.T) {
	var deauthUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch r.URL.Path {
		case "/v2/auth/generateWidgetSession":
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "42", body["reference_id"])
			require.Equal(t, "WHOOP,OURA", body["providers"])
			_ = json.NewEncoder(w).Encode(WidgetSession{Status: "success", SessionID: "s1", URL: "https://widget.example/s1"})
		case "/auth/deauthenticateUser":
			require.Equal(t, http.MethodDelete, r.Method)
			deauthUser, _ = body["user_id"].(string)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL})
	session, err := client.GenerateWidgetSession(context.Background(), "42", []string{"WHOOP", "OURA"})
	require.NoError(t, err)
	require.Equal(t, "https://widget.example/s1", session.URL)

	require.NoError(t, client.Deauthenticate(context.Background(), "terra-abc"))
	require.Equal(t, "terra-abc", deauthUser)
}
