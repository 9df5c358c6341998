package wait

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

func TestWaitForRPC(t *testing.T) {
	t.Parallel()

	t.Run("ready on first probe returns before timeout", func(t *testing.T) {
		var (
			got         rpcRequest
			method      string
			contentType string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			contentType = r.Header.Get("Content-Type")
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"Geth/v1.13.15"}`))
		}))
		defer srv.Close()

		start := time.Now()
		ready, err := WaitForRPC(context.Background(), srv.URL, 5*time.Second, WithLogger(zaptest.NewLogger(t)))
		require.NoError(t, err)
		require.True(t, ready)
		require.Less(t, time.Since(start), time.Second)

		require.Equal(t, http.MethodPost, method)
		require.Equal(t, "application/json", contentType)
		require.Equal(t, "2.0", got.JSONRPC)
		require.Equal(t, "web3_clientVersion", got.Method)
		require.Empty(t, got.Params)
		require.Equal(t, 1, got.ID)
	})

	t.Run("never ready waits for the full timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		timeout := 300 * time.Millisecond
		start := time.Now()
		ready, err := WaitForRPC(context.Background(), srv.URL, timeout, WithInterval(50*time.Millisecond))
		elapsed := time.Since(start)

		require.False(t, ready)
		var te *types.TimeoutError
		require.ErrorAs(t, err, &te)
		require.Equal(t, timeout, te.After)
		require.GreaterOrEqual(t, elapsed, timeout)
		require.Less(t, elapsed, 3*time.Second)
	})

	t.Run("becomes ready after failed probes", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ready, err := WaitForRPC(context.Background(), srv.URL, 5*time.Second, WithInterval(20*time.Millisecond))
		require.NoError(t, err)
		require.True(t, ready)
		require.Equal(t, int32(3), hits.Load())
	})

	t.Run("connection refused is not fatal", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		ready, err := WaitForRPC(context.Background(), url, 200*time.Millisecond, WithInterval(20*time.Millisecond))
		require.False(t, ready)
		var te *types.TimeoutError
		require.ErrorAs(t, err, &te)
		require.Greater(t, te.Attempts, 1)
	})
}
