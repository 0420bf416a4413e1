package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/voxrec/internal/capture"
	"github.com/tphakala/voxrec/internal/datastore"
	"github.com/tphakala/voxrec/internal/logger"
	"github.com/tphakala/voxrec/internal/recorder"
)

// Engine starts and stops capture sessions.
type Engine interface {
	Start(ctx context.Context) (string, error)
	Stop() error
	Devices() ([]capture.DeviceInfo, error)
}

// History lists finished sessions.
type History interface {
	Recent(ctx context.Context, limit int) ([]datastore.SessionRecord, error)
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo *echo.Echo

	detector       *recorder.Detector
	engine         Engine
	history        History
	metricsHandler http.Handler
	deviceCache    *cache.Cache
	log            logger.Logger
	startTime      time.Time

	// ctx outlives requests; sessions started over HTTP keep running after
	// the response is written.
	ctx    context.Context
	cancel context.CancelFunc
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithHistory enables GET /sessions.
func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(c *Controller) { c.metricsHandler = h }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController creates the controller and registers its routes on e.
func NewController(e *echo.Echo, detector *recorder.Detector, engine Engine, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		Echo:        e,
		detector:    detector,
		engine:      engine,
		deviceCache: cache.New(DeviceCacheTTL, 2*DeviceCacheTTL),
		log:         GetLogger(),
		startTime:   time.Now(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	e.Use(middleware.Recover())
	e.Use(c.LoggingMiddleware())

	c.initRoutes()
	return c
}

var getAndPost = []string{http.MethodGet, http.MethodPost}

// initRoutes registers all API endpoints. Every route accepts GET and POST
// with parameters in the query string or form body.
func (c *Controller) initRoutes() {
	c.Echo.Match(getAndPost, "/", c.GetHelp)
	c.Echo.Match(getAndPost, "/help", c.GetHelp)
	c.Echo.Match(getAndPost, "/status", c.GetStatus)
	c.Echo.Match(getAndPost, "/device", c.SetDevice)
	c.Echo.Match(getAndPost, "/format", c.SetFormat)
	c.Echo.Match(getAndPost, "/file", c.SetOutputPath)
	c.Echo.Match(getAndPost, "/thresholds", c.SetThresholds)
	c.Echo.Match(getAndPost, "/start", c.StartSession)
	c.Echo.Match(getAndPost, "/stop", c.StopSession)
	c.Echo.Match(getAndPost, "/devices", c.ListDevices)
	c.Echo.Match(getAndPost, "/sessions", c.ListSessions)
	c.Echo.Match(getAndPost, "/health", c.HealthCheck)
	if c.metricsHandler != nil {
		c.Echo.Match(getAndPost, "/metrics", echo.WrapHandler(c.metricsHandler))
	}
}

// Shutdown cancels the controller context.
func (c *Controller) Shutdown() {
	c.cancel()
}
