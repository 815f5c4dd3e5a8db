package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostXML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/xml")
		w.Write([]byte("<ebicsResponse/>"))
	}))
	defer server.Close()

	client := NewClient(nil)
	resp, err := client.PostXML(context.Background(), server.URL, []byte("<ebicsRequest/>"))
	require.NoError(t, err)
	assert.Equal(t, []byte("<ebicsResponse/>"), resp)
}

func TestPostXMLServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(nil)
	_, err := client.PostXML(context.Background(), server.URL, []byte("<ebicsRequest/>"))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPostXMLConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(nil)
	_, err := client.PostXML(context.Background(), server.URL, []byte("<ebicsRequest/>"))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPostXMLContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(nil)
	_, err := client.PostXML(ctx, server.URL, []byte("<ebicsRequest/>"))
	assert.Error(t, err)
}
