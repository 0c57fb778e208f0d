package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"raid-health-check/internal/checker"
	"raid-health-check/internal/report"
)

// shutdownTimeout bounds how long in-flight scrapes may delay exit
const shutdownTimeout = 5 * time.Second

// Results is the source of the latest run
type Results interface {
	Last() *checker.Result
}

// Config holds the HTTP surface settings
type Config struct {
	Listen      string
	MetricsPath string
	Interval    time.Duration
	Version     string
}

// Server exposes metrics and health reports over HTTP
type Server struct {
	cfg      Config
	results  Results
	gatherer prometheus.Gatherer
	log      *zap.Logger
	router   *gin.Engine
}

var indexPage = template.Must(template.New("index").Parse(`<html>
<head><title>RAID Health Check</title></head>
<body>
<h1>RAID Health Check</h1>
<p><a href="{{.MetricsPath}}">Metrics</a></p>
<p><a href="/health">Health Check</a></p>
<p><a href="/health/json">Health JSON</a></p>
<p>Version: {{.Version}}</p>
<p>Check Interval: {{.Interval}}</p>
{{with .Last}}<p>Last run: {{.Finished.Format "2006-01-02T15:04:05Z07:00"}} ({{.Severity}})</p>{{end}}
</body>
</html>
`))

// New creates a server. gatherer is the registry the metrics were
// registered with.
func New(cfg Config, results Results, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:      cfg,
		results:  results,
		gatherer: gatherer,
		log:      log,
		router:   gin.New(),
	}
	s.router.Use(s.accessLog(), gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	s.router.GET("/", s.index)
	s.router.GET("/health", s.health)
	s.router.GET("/health/json", s.healthJSON)
}

// index renders the landing page
func (s *Server) index(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	err := indexPage.Execute(c.Writer, struct {
		Config
		Last *checker.Result
	}{s.cfg, s.results.Last()})
	if err != nil {
		s.log.Warn("failed to render index", zap.Error(err))
	}
}

// health reports liveness of the exporter itself
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": report.ServiceName})
}

// healthJSON reports the latest run. ?details=true adds the extracted
// tables.
func (s *Server) healthJSON(c *gin.Context) {
	last := s.results.Last()
	if last == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting", "service": report.ServiceName})
		return
	}

	details, _ := strconv.ParseBool(c.Query("details"))
	c.IndentedJSON(http.StatusOK, report.Health(last, report.Options{Version: s.cfg.Version, Details: details}))
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// Run serves until ctx is cancelled and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", zap.String("listen", s.cfg.Listen), zap.String("metrics_path", s.cfg.MetricsPath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
