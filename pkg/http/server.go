package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ImpactRank/pkg/http/middleware"
	applogger "ImpactRank/pkg/logger"
)

type ServerOption func(*serverOptions)

type serverOptions struct {
	host          string
	port          int
	readTimeout   time.Duration
	writeTimeout  time.Duration
	shutdown      time.Duration
	bodyLimit     string
	metricsPath   string
	corsOrigins   []string
	slowThreshold time.Duration
	logger        *applogger.Logger
}

// Server is the echo instance plus its listener. The listener is bound in
// Start so address errors surface there instead of in a goroutine.
type Server struct {
	e    *echo.Echo
	opts serverOptions
	l    *applogger.Logger

	ln   net.Listener
	done chan struct{}
}

func NewServer(handler Handler, opts ...ServerOption) *Server {
	o := serverOptions{
		host:          "0.0.0.0",
		port:          8080,
		readTimeout:   10 * time.Second,
		writeTimeout:  10 * time.Second,
		shutdown:      10 * time.Second,
		bodyLimit:     "4M",
		metricsPath:   "/metrics",
		corsOrigins:   []string{"*"},
		slowThreshold: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	l := o.logger
	if l == nil {
		l = applogger.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = o.readTimeout
	e.Server.WriteTimeout = o.writeTimeout
	e.HTTPErrorHandler = errorHandler(l)

	e.Use(middleware.Recover(l))
	e.Use(middleware.RequestLogging(l))
	e.Use(middleware.Metrics(l, o.slowThreshold))
	if o.bodyLimit != "" {
		e.Use(echomw.BodyLimit(o.bodyLimit))
	}
	if len(o.corsOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: o.corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			MaxAge:       600,
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if o.metricsPath != "" {
		e.GET(o.metricsPath, echo.WrapHandler(promhttp.Handler()))
	}
	return &Server{e: e, opts: o, l: l}
}

// errorHandler renders errors that escape handlers in the API envelope.
func errorHandler(l *applogger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		var he *echo.HTTPError
		var ae *AppError
		switch {
		case errors.As(err, &ae):
			status = ae.Status
		case errors.As(err, &he):
			status = he.Code
		default:
			l.Error("unhandled http error", applogger.String("path", c.Path()), applogger.Error(err))
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else if ae != nil {
			err = AppErrorResponse(c, ae)
		} else {
			err = DataResponse(c, status, nil)
		}
		if err != nil {
			l.Warn("write error response", applogger.Error(err))
		}
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.opts.host, strconv.Itoa(s.opts.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	s.e.Listener = ln
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		s.l.Info("http server listening", applogger.String("addr", ln.Addr().String()))
		if err := s.e.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http server stopped unexpectedly", applogger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address, useful when the port was 0.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop drains in-flight requests, bounded by the shutdown timeout and ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	if s.opts.shutdown > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.shutdown)
		defer cancel()
	}
	if err := s.e.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-s.done
	s.l.Info("http server stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.e }

func WithHost(host string) ServerOption {
	return func(o *serverOptions) { o.host = host }
}

// WithPort sets the listen port. 0 picks a free one.
func WithPort(port int) ServerOption {
	return func(o *serverOptions) { o.port = port }
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.readTimeout, o.writeTimeout, o.shutdown = read, write, shutdown
	}
}

// WithCORSOrigins sets the allowed origins. An empty list disables CORS.
func WithCORSOrigins(origins []string) ServerOption {
	return func(o *serverOptions) { o.corsOrigins = origins }
}

// WithBodyLimit caps request bodies, e.g. "4M". Empty disables the limit.
func WithBodyLimit(limit string) ServerOption {
	return func(o *serverOptions) { o.bodyLimit = limit }
}

// WithMetricsPath sets where Prometheus is scraped. Empty disables it.
func WithMetricsPath(path string) ServerOption {
	return func(o *serverOptions) { o.metricsPath = path }
}

// WithSlowThreshold sets the latency above which requests are logged at Warn.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(o *serverOptions) { o.slowThreshold = d }
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}
