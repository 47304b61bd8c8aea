package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stormguard/stormguard/internal/alerter"
	"github.com/stormguard/stormguard/internal/announce"
	"github.com/stormguard/stormguard/internal/config"
	"github.com/stormguard/stormguard/internal/store"
	"github.com/stormguard/stormguard/internal/version"
	"github.com/stormguard/stormguard/internal/webui"
)

// Announcements is the announcement board the API exposes
type Announcements interface {
	Latest() announce.Announcement
	Set(a announce.Announcement) (announce.Announcement, error)
	Subscribers() int
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Sequences reports shutdown sequence state
type Sequences interface {
	Snapshot() []alerter.SequenceStatus
}

// Entities lists monitored entities
type Entities interface {
	List() []store.Entity
	Lookup(id string) (store.Entity, bool)
}

// Server provides the HTTP API
type Server struct {
	logger        zerolog.Logger
	port          string
	startTime     time.Time
	announcements Announcements
	sequences     Sequences
	entities      Entities
	logBuffer     *webui.LogBuffer
	gatherer      prometheus.Gatherer
	reloader      Reloader
	config        *config.Config
	configPath    string
	version       version.Info
	versionMu     sync.RWMutex
}

// NewServer creates a new API server
func NewServer(announcements Announcements, logger zerolog.Logger, port string) *Server {
	return &Server{
		announcements: announcements,
		logger:        logger.With().Str("component", "api").Logger(),
		port:          port,
		startTime:     time.Now(),
	}
}

// SetSequences sets the shutdown sequencer reported by /status
func (s *Server) SetSequences(seq Sequences) {
	s.sequences = seq
}

// SetEntities sets the entity store served under /api/entities
func (s *Server) SetEntities(e Entities) {
	s.entities = e
}

// SetLogBuffer sets the log buffer served at /api/logs
func (s *Server) SetLogBuffer(lb *webui.LogBuffer) {
	s.logBuffer = lb
}

// SetGatherer enables /metrics
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// SetReloader enables POST /api/reload
func (s *Server) SetReloader(r Reloader) {
	s.reloader = r
}

// SetConfig sets the configuration summarized on the dashboard
func (s *Server) SetConfig(cfg *config.Config, configPath string) {
	s.config = cfg
	s.configPath = configPath
}

// SetVersion sets the version information
func (s *Server) SetVersion(info version.Info) {
	s.versionMu.Lock()
	defer s.versionMu.Unlock()
	s.version = info
}

// Handler builds the router
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger))

	r.GET("/", s.handleDashboard)
	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)

	r.GET("/announcements", s.handleGetAnnouncements)
	r.POST("/announcements", s.handlePostAnnouncement)
	r.GET("/announcements/ws", func(c *gin.Context) {
		s.announcements.ServeWS(c.Writer, c.Request)
	})

	api := r.Group("/api")
	{
		api.GET("/logs", s.handleLogs)
		api.POST("/reload", s.handleReload)
		api.GET("/entities", s.handleEntities)
		api.GET("/entities/:id", s.handleEntity)
	}

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", srv.Addr).Msg("Starting API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Stopping API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	s.versionMu.RLock()
	info := s.version
	s.versionMu.RUnlock()

	sequences := []alerter.SequenceStatus{}
	pending := 0
	if s.sequences != nil {
		sequences = s.sequences.Snapshot()
		for _, seq := range sequences {
			if seq.Pending {
				pending++
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"time":                     time.Now().UTC().Format(time.RFC3339),
		"uptime":                   time.Since(s.startTime).Round(time.Second).String(),
		"version":                  info.Version,
		"commit":                   info.Commit,
		"build_date":               info.BuildDate,
		"pending_sequences":        pending,
		"sequences":                sequences,
		"announcement_subscribers": s.announcements.Subscribers(),
	})
}

func (s *Server) handleGetAnnouncements(c *gin.Context) {
	c.JSON(http.StatusOK, []announce.Announcement{s.announcements.Latest()})
}

type announcementRequest struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Message  string `json:"message" binding:"required"`
}

func (s *Server) handlePostAnnouncement(c *gin.Context) {
	var req announcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	a, err := s.announcements.Set(announce.Announcement{
		Username: req.Username,
		Avatar:   req.Avatar,
		Message:  req.Message,
	})
	if errors.Is(err, announce.ErrEmptyMessage) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to update announcement")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update announcement"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleLogs(c *gin.Context) {
	if s.logBuffer == nil {
		c.JSON(http.StatusOK, []webui.LogEntry{})
		return
	}
	n, err := strconv.Atoi(c.DefaultQuery("n", "100"))
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
		return
	}
	c.JSON(http.StatusOK, s.logBuffer.GetRecentEntries(n, c.Query("level")))
}

func (s *Server) handleEntities(c *gin.Context) {
	if s.entities == nil {
		c.JSON(http.StatusOK, []store.Entity{})
		return
	}
	c.JSON(http.StatusOK, s.entities.List())
}

func (s *Server) handleEntity(c *gin.Context) {
	if s.entities == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	ent, ok := s.entities.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.JSON(http.StatusOK, ent)
}
