package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, handler http.HandlerFunc, stdin string, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	opts := &options{stdin: strings.NewReader(stdin), stdout: &out}
	root := newRootCmd(opts)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestWhoami_CredentialsFromFlagAndEnv(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")

	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "bob", user)
		assert.Equal(t, "pw-123456", pass)
		respond(w, http.StatusOK, map[string]any{"data": map[string]any{"username": "bob", "is_admin": true}})
	}, "", "--user", "bob", "whoami")

	require.NoError(t, err)
	assert.Equal(t, "bob (admin)\n", out)
}

func TestUsernamePromptedFromStdin(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")
	t.Setenv(EnvUser, "")

	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		user, _, _ := r.BasicAuth()
		respond(w, http.StatusOK, map[string]any{"data": map[string]any{"username": user}})
	}, "carol\n", "whoami")

	require.NoError(t, err)
	assert.Equal(t, "carol (user)\n", out)
}

func TestMissingPasswordWithoutTerminal(t *testing.T) {
	t.Setenv(EnvPassword, "")
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, "", "--user", "bob", "whoami")

	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvPassword)
}

func TestBook_ConflictIsDescribed(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")

	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2030-06-03T09:00", body["start_time"])
		respond(w, http.StatusConflict, map[string]any{
			"code":    "CONFLICT",
			"message": "room is already booked",
			"details": map[string]any{"reason": "conflict", "conflicting_booking_id": "b42"},
		})
	}, "", "--user", "bob", "book", "--room", "r1", "--start", "2030-06-03T09:00", "--end", "2030-06-03T10:00", "--purpose", "standup")

	require.Error(t, err)
	assert.Equal(t, "room is already booked (conflicts with booking b42)", err.Error())
}

func TestCheck_PrintsRejection(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")

	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bookings/check", r.URL.Path)
		respond(w, http.StatusOK, map[string]any{"data": map[string]any{
			"accepted":  false,
			"message":   "conflicts with booking b7",
			"rejection": map[string]any{"reason": "conflict", "conflicting_booking_id": "b7"},
		}})
	}, "", "--user", "bob", "check", "--room", "r1", "--start", "2030-06-03T09:00", "--end", "2030-06-03T10:00")

	require.NoError(t, err)
	assert.Contains(t, out, "Rejected: conflicts with booking b7")
	assert.Contains(t, out, "conflicts with booking b7\n")
}

func TestBookingsList_RequiresRoom(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")
	_, err := run(t, func(w http.ResponseWriter, r *http.Request) {}, "", "--user", "bob", "bookings", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room")
}

func TestBookingsMine_Table(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")

	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/bookings/mine", r.URL.Path)
		respond(w, http.StatusOK, map[string]any{"data": []map[string]any{{
			"id": "b1", "room_id": "r1", "user_name": "bob", "purpose": "retro",
			"start_time": "2030-06-03T09:00:00Z", "end_time": "2030-06-03T10:00:00Z",
		}}})
	}, "", "--user", "bob", "bookings", "mine")

	require.NoError(t, err)
	assert.Contains(t, out, "PURPOSE")
	assert.Contains(t, out, "retro")
}

func TestCancel(t *testing.T) {
	t.Setenv(EnvPassword, "pw-123456")

	out, err := run(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/bookings/id/b1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}, "", "--user", "bob", "cancel", "b1")

	require.NoError(t, err)
	assert.Equal(t, "Cancelled b1\n", out)
}
