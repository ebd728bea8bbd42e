package httpclient

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	inkerrors "inkwell/internal/errors"
	"inkwell/internal/logging"
)

func TestReadBodyEnforcesCap(t *testing.T) {
	data, err := ReadBody(strings.NewReader("hello"), 10)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	_, err = ReadBody(strings.NewReader("hello world"), 5)
	require.Error(t, err)
	require.True(t, IsBodyLimit(err))

	// a non-positive cap reads everything
	data, err = ReadBody(strings.NewReader("hello world"), 0)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestCircuitBreakerClientBlocksAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewWithCircuitBreakerConfig(time.Second, logging.Nop(), "test-api", inkerrors.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	for i := 0; i < 2; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	// breaker is open now; the request never reaches the server
	_, err := client.Get(server.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit breaker open")
}
