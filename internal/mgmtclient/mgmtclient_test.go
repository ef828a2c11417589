package mgmtclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func startFakeStatus(t *testing.T, healthy bool) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bar4_base":3735928559,"device_id":7,"tap_name":"tap0","bound":true,"uptime":"1s"}`))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"TotalTX":3,"TotalRX":1,"TXErrors":0,"RXDrops":0,"IRQsTX":3,"IRQsRX":1}`))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return u.Host
}

func TestConnectAndDeviceInfo(t *testing.T) {
	addr := startFakeStatus(t, true)
	c, err := Connect(context.Background(), addr)
	require.NoError(t, err)

	info, err := c.DeviceInfo(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(0xdeadbeef), info.BAR4Base)
	require.True(t, info.Bound)
}

func TestMetrics(t *testing.T) {
	addr := startFakeStatus(t, true)
	c, err := Connect(context.Background(), addr)
	require.NoError(t, err)

	m, err := c.Metrics(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(3), m.TotalTX)
}

func TestHealthy(t *testing.T) {
	addr := startFakeStatus(t, false)
	c := &Client{addr: addr, http: http.DefaultClient}
	require.False(t, c.Healthy(context.Background()))
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	_, err := Connect(context.Background(), "127.0.0.1:1")
	require.Error(t, err)
}
