// Package api exposes the matching engine over HTTP for dashboards and
// manual triggers.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mleitner/bankmatch/internal/booking"
	"github.com/mleitner/bankmatch/internal/common"
	"github.com/mleitner/bankmatch/internal/engine"
	"github.com/mleitner/bankmatch/internal/ledgermatch"
	"github.com/mleitner/bankmatch/internal/match"
	"github.com/mleitner/bankmatch/internal/model"
	"github.com/mleitner/bankmatch/internal/service"
	"github.com/mleitner/bankmatch/internal/storage"
)

// matchJobName is the job store key for API-triggered batches.
const matchJobName = "match-batch"

// Server wires the pipeline components behind HTTP handlers.
type Server struct {
	store      *storage.SQLiteStorage
	jobs       service.JobStore
	classifier *match.Classifier
	booker     *booking.Engine
	batch      *engine.Engine
	ledger     *ledgermatch.Matcher
	token      string
}

// NewServer creates the API server. The ledger matcher may be nil when no
// external ledger is configured; its routes then report 503. An empty token
// leaves the API open, for localhost-only deployments.
func NewServer(store *storage.SQLiteStorage, jobs service.JobStore, classifier *match.Classifier, booker *booking.Engine, batch *engine.Engine, ledger *ledgermatch.Matcher, token string) *Server {
	return &Server{
		store:      store,
		jobs:       jobs,
		classifier: classifier,
		booker:     booker,
		batch:      batch,
		ledger:     ledger,
		token:      token,
	}
}

// Router builds the gin router.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/health"},
	}))

	router.GET("/health", s.health)

	api := router.Group("/api")
	if s.token != "" {
		api.Use(s.requireToken)
	}
	{
		api.GET("/stats", s.getStats)
		api.GET("/transactions", s.getTransactions)
		api.GET("/transactions/:id", s.getTransaction)
		api.GET("/transactions/:id/match", s.dryRunMatch)
		api.POST("/transactions/other-income", s.markOtherIncome)

		api.POST("/batch/run", s.runBatch)
		api.GET("/jobs/:name", s.getJobStatus)

		api.GET("/ledger/:id", s.getLedgerMatch)
		api.POST("/ledger/:id/match", s.runLedgerMatch)
		api.POST("/ledger/sweep", s.runLedgerSweep)

		api.GET("/synclogs", s.getSyncLogs)
	}
	return router
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// requireToken guards the API group. The health route stays open for
// liveness probes.
func (s *Server) requireToken(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-API-Token")), []byte(s.token)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API token"})
		return
	}
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.Statistics(c.Request.Context())
	if err != nil {
		slog.Error("Failed to fetch statistics", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	filter := service.TransactionFilter{
		Status:      model.TransactionStatus(c.Query("status")),
		BankAccount: c.Query("account"),
		Limit:       limit,
	}
	if from, err := time.Parse("2006-01-02", c.Query("from")); err == nil {
		filter.FromDate = &from
	}
	if to, err := time.Parse("2006-01-02", c.Query("to")); err == nil {
		filter.ToDate = &to
	}

	transactions, err := s.store.GetTransactions(c.Request.Context(), filter)
	if err != nil {
		slog.Error("Failed to fetch transactions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transactions"})
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (s *Server) getTransaction(c *gin.Context) {
	tx, err := s.store.GetTransaction(c.Request.Context(), c.Param("id"))
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transaction"})
		return
	}
	c.JSON(http.StatusOK, tx)
}

// dryRunMatch classifies without booking, so operators can preview what a
// batch would do with one transaction.
func (s *Server) dryRunMatch(c *gin.Context) {
	result, err := s.classifier.Classify(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
	case errors.Is(err, common.ErrAmbiguousCustomer), errors.Is(err, common.ErrTooManyCandidates):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		slog.Error("Classification failed", "transaction", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "classification failed"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

func (s *Server) markOtherIncome(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}
	updated, err := s.batch.MarkOtherIncome(c.Request.Context(), req.IDs)
	if err != nil && updated == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "requested": len(req.IDs)})
}

// runBatch starts a matching batch in the background and returns
// immediately; progress is polled via the job status route.
func (s *Server) runBatch(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	if existing, err := s.jobs.Get(c.Request.Context(), matchJobName); err == nil && existing.Active() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already running", "job": matchJobName})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()
		if _, err := s.batch.RunBatch(ctx, matchJobName, service.TransactionFilter{}, limit); err != nil {
			slog.Error("Batch failed", "job", matchJobName, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job": matchJobName, "state": "started"})
}

func (s *Server) getJobStatus(c *gin.Context) {
	status, err := s.jobs.Get(c.Request.Context(), c.Param("name"))
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such job"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch job status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getLedgerMatch(c *gin.Context) {
	result, err := s.store.GetLedgerMatch(c.Request.Context(), c.Param("id"))
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ledger match recorded"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch ledger match"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) runLedgerMatch(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no external ledger configured"})
		return
	}
	result, err := s.ledger.Match(c.Request.Context(), c.Param("id"))
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	if err != nil {
		slog.Error("Ledger match failed", "transaction", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger match failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) runLedgerSweep(c *gin.Context) {
	if s.ledger == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no external ledger configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	stats, err := s.ledger.SweepPending(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Ledger sweep failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ledger sweep failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) getSyncLogs(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	if days <= 0 {
		days = 7
	}
	logs, err := s.store.RecentSyncLogs(c.Request.Context(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch sync logs"})
		return
	}
	c.JSON(http.StatusOK, logs)
}
