// Package server exposes the backup/restore operations as HTTP trigger
// endpoints, the structured-request counterpart of the CLI subcommands.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MacJediWizard/influxvault/internal/backup"
	"github.com/MacJediWizard/influxvault/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Runner is the orchestration engine behind the endpoints.
type Runner interface {
	IncrementalBackup(ctx context.Context, req backup.Request) (*backup.RunResult, error)
	IncrementalRestore(ctx context.Context, req backup.Request) (*backup.RunResult, error)
	SnapshotBackup(ctx context.Context, req backup.Request) (*backup.RunResult, error)
	SnapshotRestore(ctx context.Context, req backup.Request) (*backup.RunResult, error)
}

// BackupResponse is the success body of the backup endpoints.
type BackupResponse struct {
	Message string   `json:"message"`
	Buckets []string `json:"buckets"`
}

// RestoreResponse is the success body of the restore endpoints.
type RestoreResponse struct {
	Message         string   `json:"message"`
	RestoredBuckets []string `json:"restored_buckets"`
	FailedBuckets   []string `json:"failed_buckets"`
}

// ErrorResponse is the body of every failed invocation.
type ErrorResponse struct {
	Error         string   `json:"error"`
	FailedBuckets []string `json:"failed_buckets,omitempty"`
}

// Server wires the Runner into an HTTP API.
type Server struct {
	runner  Runner
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a Server.
func New(runner Runner, m *metrics.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		runner:  runner,
		metrics: m,
		logger:  logger.With().Str("component", "server").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.POST("/backups/incremental", s.handle("incremental_backup", s.runner.IncrementalBackup, s.respondBackup))
	v1.POST("/backups/snapshot", s.handle("snapshot_backup", s.runner.SnapshotBackup, s.respondBackup))
	v1.POST("/restores/incremental", s.handle("incremental_restore", s.runner.IncrementalRestore, s.respondRestore))
	v1.POST("/restores/snapshot", s.handle("snapshot_restore", s.runner.SnapshotRestore, s.respondRestore))

	return r
}

// handle runs one operation and maps its RunResult onto the response shape.
// Run errors and all-buckets-failed results produce a 500 with an error body;
// anything else is a 200 with the operation's success body.
func (s *Server) handle(operation string, run func(context.Context, backup.Request) (*backup.RunResult, error), respond func(*gin.Context, *backup.RunResult)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req backup.Request
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			return
		}

		start := time.Now()
		result, err := run(c.Request.Context(), req)
		duration := time.Since(start)

		if err != nil {
			s.logger.Error().Err(err).Str("operation", operation).Msg("run failed")
			resp := ErrorResponse{Error: err.Error()}
			var failed int
			if result != nil {
				resp.FailedBuckets = result.Failed
				failed = len(result.Failed)
			}
			s.observe(operation, false, duration, 0, failed)
			c.JSON(http.StatusInternalServerError, resp)
			return
		}

		s.observe(operation, result.OK(), duration, len(result.Succeeded), len(result.Failed))
		if !result.OK() {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:         fmt.Sprintf("operation failed for all buckets: %v", result.Failed),
				FailedBuckets: result.Failed,
			})
			return
		}
		respond(c, result)
	}
}

func (s *Server) respondBackup(c *gin.Context, result *backup.RunResult) {
	c.JSON(http.StatusOK, BackupResponse{
		Message: result.Message,
		Buckets: result.Succeeded,
	})
}

func (s *Server) respondRestore(c *gin.Context, result *backup.RunResult) {
	c.JSON(http.StatusOK, RestoreResponse{
		Message:         result.Message,
		RestoredBuckets: result.Succeeded,
		FailedBuckets:   result.Failed,
	})
}

func (s *Server) observe(operation string, ok bool, duration time.Duration, succeeded, failed int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveRun(operation, ok, duration, succeeded, failed)
}
