// Package status serves the device daemon's HTTP health/metrics/device-info
// surface over gin, adapted from cmd/driver/hasher-host's
// handleHealth/handleMetrics/handleDeviceInfo trio (api.GET group under
// gin.New()+gin.Recovery()) to this domain's state instead of ASIC stats.
package status

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snic/internal/device"
	"snic/internal/wire"
)

// Source is what the status server reads from; internal/coordinator wires a
// *device.State plus its own bookkeeping into this.
type Source interface {
	Bound() bool // true once BAR4 base has been established, via OOB or the legacy CLI flags
	BAR4Base() uint64
	DeviceID() uint16
	TapName() string
	Stats() device.StatsSnapshot
	Uptime() time.Duration
	BAR0() wire.BAR0
}

func formatBAR0(b wire.BAR0) gin.H {
	return gin.H{
		"magic":   fmt.Sprintf("%#08x", b.Magic),
		"src_mac": hex.EncodeToString(b.SrcMAC[:]),
		"dst_mac": hex.EncodeToString(b.DstMAC[:]),
		"src_ip":  fmt.Sprintf("%d.%d.%d.%d", b.SrcIP>>24, b.SrcIP>>16&0xff, b.SrcIP>>8&0xff, b.SrcIP&0xff),
		"dst_ip":  fmt.Sprintf("%d.%d.%d.%d", b.DstIP>>24, b.DstIP>>16&0xff, b.DstIP>>8&0xff, b.DstIP&0xff),
	}
}

// Server wraps the gin router and the HTTP server it's bound to.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
}

// New builds the router; it does not start listening.
func New(src Source) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if !src.Bound() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "binding"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "uptime": src.Uptime().String()})
	})

	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.Stats())
	})

	r.GET("/device", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"bar4_base": src.BAR4Base(),
			"device_id": src.DeviceID(),
			"tap_name":  src.TapName(),
			"bound":     src.Bound(),
			"uptime":    src.Uptime().String(),
			"bar0":      formatBAR0(src.BAR0()),
		})
	})

	return &Server{engine: r}
}

// Run starts listening on addr and blocks until ctx is cancelled, at which
// point it shuts the HTTP server down gracefully. Starting the status
// surface is best-effort and never gates the device's control/data plane: a
// caller that can't bind addr just logs and moves on.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Handler exposes the underlying gin engine for tests that want to drive
// requests via httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }
