package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stampgate/internal/stamping/models"
	id "stampgate/pkg/domain"
)

func stamp() models.CryptographicStamp {
	return models.CryptographicStamp{
		CSID:      id.NewStampID(),
		IRNValue:  "IRN0000000001ABCD",
		Algorithm: "Ed25519",
		Digest:    "deadbeef",
		Signature: []byte("sig"),
		QRPayload: "cXI=",
	}
}

func TestSubmitSuccess(t *testing.T) {
	var got submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/documents", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewHTTP(srv.URL, "secret", time.Second)
	s := stamp()
	require.NoError(t, c.Submit(context.Background(), s))
	require.Equal(t, s.IRNValue, got.IRNValue)
	require.Equal(t, s.Signature, got.Signature)
}

func TestSubmitClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{"server error is transient", http.StatusServiceUnavailable, true},
		{"throttling is transient", http.StatusTooManyRequests, true},
		{"rejection is fatal", http.StatusUnprocessableEntity, false},
		{"bad credentials are fatal", http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			err := NewHTTP(srv.URL, "secret", time.Second).Submit(context.Background(), stamp())
			require.Error(t, err)
			require.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestSubmitTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, "secret", 20*time.Millisecond).Submit(context.Background(), stamp())
	require.Error(t, err)
	require.True(t, IsTransient(err))
}

func TestSubmitCancellationIsNotTransient(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := NewHTTP(srv.URL, "secret", 5*time.Second).Submit(ctx, stamp())
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, IsTransient(err))
}
