// Package server - Haupt-Router und Server-Setup fuer den xcvm-Dienst
// Beinhaltet: Server-Struct, Router-Registrierung, Host-Middleware, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/xcvm/envconfig"
	"github.com/ollama/xcvm/logutil"
	"github.com/ollama/xcvm/ml"
	"github.com/ollama/xcvm/ml/backend"
	"github.com/ollama/xcvm/version"
)

var mode string = gin.DebugMode

// Server fuehrt Programme gegen ein gemeinsames Backend aus
type Server struct {
	addr    net.Addr
	backend ml.Backend

	// begrenzt gleichzeitige Programmlaeufe (XCVM_NUM_PARALLEL)
	sem *semaphore.Weighted
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer creates a server running at most parallel programs at once.
func NewServer(addr net.Addr, b ml.Backend, parallel int) *Server {
	if parallel <= 0 {
		parallel = 1
	}
	return &Server{addr: addr, backend: b, sem: semaphore.NewWeighted(int64(parallel))}
}

// allowedHost prueft ob der Host erlaubt ist
func allowedHost(host string) bool {
	host = strings.ToLower(host)

	if host == "" || host == "localhost" {
		return true
	}

	if hostname, err := os.Hostname(); err == nil && host == strings.ToLower(hostname) {
		return true
	}

	for _, tld := range []string{"localhost", "local", "internal"} {
		if strings.HasSuffix(host, "."+tld) {
			return true
		}
	}

	return false
}

// allowedHostsMiddleware blockiert Anfragen an einen Loopback-Listener,
// deren Host-Header nicht lokal ist
func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}

		if addr, err := netip.ParseAddrPort(addr.String()); err == nil && !addr.Addr().IsLoopback() {
			c.Next()
			return
		}

		host, _, err := net.SplitHostPort(c.Request.Host)
		if err != nil {
			host = c.Request.Host
		}

		if addr, err := netip.ParseAddr(host); err == nil {
			if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() {
				c.Next()
				return
			}
		}

		if allowedHost(host) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}

			c.Next()
			return
		}

		c.AbortWithStatus(http.StatusForbidden)
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "xcvm is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "xcvm is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Programme
	r.POST("/api/run", s.RunHandler)
	r.POST("/api/dump", s.DumpHandler)
	r.GET("/api/devices", s.DevicesHandler)

	return r
}

// Serve startet den HTTP-Server auf ln
func Serve(ln net.Listener) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	b, err := backend.FromEnvironment()
	if err != nil {
		return err
	}
	defer b.Close()

	for _, d := range ml.DeviceInfos(b) {
		slog.Info("device", "name", d.Name, "host", d.Host, "default", d.Default)
	}

	s := NewServer(ln.Addr(), b, int(envconfig.NumParallel()))
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srvr.Close()
	}()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	if err := srvr.Serve(ln); err != http.ErrServerClosed {
		return err
	}
	return nil
}
