package userfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateListenKeySendsAPIKeyHeaderAndParsesBody(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-MBX-APIKEY")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/listenKey", r.URL.Path)
		w.Write([]byte(`{"listenKey":"abc123"}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv.URL, "my-api-key")
	key, err := c.createListenKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
	assert.Equal(t, "my-api-key", gotHeader)
}

func TestCreateListenKeyMissingFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv.URL, "key")
	_, err := c.createListenKey(context.Background())
	assert.Error(t, err)
}

func TestKeepAliveListenKeyUsesPUT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv.URL, "key")
	assert.NoError(t, c.keepAliveListenKey(context.Background()))
}

func TestDeleteListenKeyUsesDELETE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv.URL, "key")
	assert.NoError(t, c.deleteListenKey(context.Background()))
}

func TestDoErrorsOnNon2xxStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key"}`))
	}))
	defer srv.Close()

	c := newRESTClient(srv.URL, "key")
	_, err := c.createListenKey(context.Background())
	assert.Error(t, err)
}
