// Package httpapi serves the admin endpoints: health, subscriptions, stats,
// one-shot publishing and prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"portal-bus/internal/broker"
	"portal-bus/internal/logger"
	"portal-bus/internal/stats"
	"portal-bus/internal/topic"
)

// Server is the admin HTTP server
type Server struct {
	session *broker.Session
	stats   *stats.StatsCollector
	logger  *logger.Logger
	engine  *gin.Engine
	srv     *http.Server
	addr    net.Addr
}

// PublishRequest is the body of POST /publish
type PublishRequest struct {
	Topic        string          `json:"topic" binding:"required"`
	Payload      json.RawMessage `json:"payload"`
	QoS          byte            `json:"qos"`
	Retain       bool            `json:"retain"`
	TraceID      string          `json:"traceId"`
	ParentID     string          `json:"parentId"`
	Color        string          `json:"color"`
	PartitionKey string          `json:"partitionKey"`
}

// NewServer builds the router. metricsHandler is mounted at metricsPath when
// not nil.
func NewServer(session *broker.Session, st *stats.StatsCollector, log *logger.Logger, metricsPath string, metricsHandler http.Handler) *Server {
	if log == nil {
		log = logger.Nop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		session: session,
		stats:   st,
		logger:  log,
		engine:  engine,
	}

	engine.GET("/healthz", s.health)
	engine.GET("/subscriptions", s.subscriptions)
	engine.GET("/stats", s.statistics)
	engine.POST("/publish", s.publish)
	if metricsHandler != nil {
		engine.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	return s
}

// Handler returns the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on address and serves in the background
func (s *Server) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.addr = ln.Addr()
	s.srv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin api server failed", "error", err)
		}
	}()

	s.logger.Info("admin api listening", "address", s.addr.String())
	return nil
}

// Addr returns the listening address once started
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	state := s.session.State()
	body := gin.H{
		"status":  state,
		"adapter": s.session.Adapter().Name(),
	}
	if state == broker.StateConnected {
		body["connectedAt"] = s.session.ConnectedAt()
	}
	if err := s.session.Err(); err != nil {
		body["error"] = err.Error()
	}

	code := http.StatusOK
	if state != broker.StateConnected {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}

func (s *Server) subscriptions(c *gin.Context) {
	handles, filters := s.session.Registry().Counts()
	c.JSON(http.StatusOK, gin.H{
		"handles":       handles,
		"filters":       filters,
		"subscriptions": s.session.Registry().Subscriptions(),
	})
}

func (s *Server) statistics(c *gin.Context) {
	body := s.stats.GetStats()
	body["dispatch_rate"] = s.stats.CalculateRate()
	c.JSON(http.StatusOK, body)
}

func (s *Server) publish(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var message interface{}
	if len(req.Payload) > 0 {
		message = req.Payload
	}

	err := s.session.Publish(req.Topic, message, broker.PublishOptions{
		QoS:          req.QoS,
		Retain:       req.Retain,
		TraceID:      req.TraceID,
		ParentID:     req.ParentID,
		Color:        req.Color,
		PartitionKey: req.PartitionKey,
	})
	if err != nil {
		c.JSON(publishStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"topic": req.Topic})
}

func publishStatus(err error) int {
	switch {
	case errors.Is(err, broker.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, topic.ErrInvalidTopic), errors.Is(err, broker.ErrInvalidQoS):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// requestLogger logs one line per request
func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("admin api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
			"client", c.ClientIP())
	}
}
