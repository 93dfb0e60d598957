package whatsappsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvolutionClient_SendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/message/sendText/ellah-prod", r.URL.Path)
		assert.Equal(t, "evo-key", r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "5511999990000", body["number"])
		assert.Equal(t, "Ola", body["text"])

		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprint(w, `{"key":{"id":"BAE5F2"},"status":"PENDING"}`)
	}))
	defer srv.Close()

	id, err := NewEvolutionClient().SendText(context.Background(), srv.URL+"/", "ellah-prod", "evo-key", "(11) 99999-0000", "Ola")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "BAE5F2", *id)
}

func TestEvolutionClient_SendTextError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "instance not connected", http.StatusBadRequest)
	}))
	defer srv.Close()

	id, err := NewEvolutionClient().SendText(context.Background(), srv.URL, "x", "k", "5511999990000", "Ola")
	assert.Nil(t, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Evolution API HTTP 400: instance not connected")
}

func TestEvolutionClient_ConnectionState(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"instance":{"instanceName":"x","state":"open"}}`, "open"},
		{`{"state":"close"}`, "close"},
		{`{}`, "unknown"},
	}
	for _, tc := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/instance/connectionState/ellah", r.URL.Path)
			_, _ = fmt.Fprint(w, tc.body)
		}))
		state, err := NewEvolutionClient().ConnectionState(context.Background(), srv.URL, "ellah", "k")
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, tc.want, state)
	}
}
