package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withServer(t *testing.T, handler http.HandlerFunc) *registryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	prevServer, prevUser, prevRoles := serverURL, userName, userRoles
	t.Cleanup(func() { serverURL, userName, userRoles = prevServer, prevUser, prevRoles })
	serverURL = srv.URL
	return newClient()
}

func TestClientSendsIdentityHeaders(t *testing.T) {
	var gotUser, gotRoles string
	client := withServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-User")
		gotRoles = r.Header.Get("X-Roles")
		w.Write([]byte(`{}`))
	})
	userName = "alice"
	userRoles = "developer"

	var out map[string]any
	require.NoError(t, client.getJSON("/assets", &out))
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "developer", gotRoles)
}

func TestClientDecodesAPIError(t *testing.T) {
	client := withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"CYCLE","message":"dependency cycle detected","cycle_path":["a@1","b@1","a@1"]}`))
	})

	err := client.postJSON("/assets/a/dependencies", map[string]any{}, nil)
	require.Error(t, err)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "CYCLE", apiErr.Code)
	assert.Equal(t, []string{"a@1", "b@1", "a@1"}, apiErr.CyclePath)
	assert.Contains(t, apiErr.Error(), "cycle:")
}

func TestClientPassesThroughNonJSONErrors(t *testing.T) {
	client := withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream gone"))
	})

	err := client.getJSON("/assets", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream gone")
}

func TestRawJSONIsNotDoubleEncoded(t *testing.T) {
	var gotBody string
	client := withServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	})

	var out map[string]any
	require.NoError(t, client.postJSON("/assets", rawJSON(`{"name":"m"}`), &out))
	assert.JSONEq(t, `{"name":"m"}`, gotBody)
}
