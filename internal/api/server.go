package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pix-settlement-go/internal/common"
	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerUserId     = "X-User-Id"
	headerAdminToken = "X-Admin-Token"
	contextUserId    = "user_id"

	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"

	maxWebhookBody = 1 << 20
)

// Server is the HTTP surface of the settlement engine.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     models.ServerConfig
	services   *common.Services
	ledger     *LedgerService
}

func NewServer(config models.ServerConfig, services *common.Services) *Server {
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		config:   config,
		services: services,
		ledger:   NewLedgerService(services.DbService),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(s.services.Metrics.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.POST("/webhooks/pix", s.handleWebhook)
	v1.POST("/users", s.handleRegister)
	v1.GET("/plans", s.handleListPlans)

	users := v1.Group("/users/:id")
	{
		users.GET("/balances", s.handleGetBalances)
		users.GET("/ledger", s.handleGetLedger)
		users.GET("/cycles", s.handleListCycles)
		users.GET("/cycles/:cycleId/earnings", s.handleCycleEarnings)
		users.GET("/rewards/streak", s.handleRewardStreak)
		users.GET("/commissions", s.handleListCommissions)
		users.GET("/withdrawals", s.handleListWithdrawals)
	}

	acting := v1.Group("")
	acting.Use(requireUser())
	{
		acting.POST("/deposits", s.handleCreateDeposit)
		acting.GET("/deposits/:id", s.handleGetDeposit)
		acting.POST("/purchases", s.handlePurchase)
		acting.POST("/withdrawals", s.handleRequestWithdrawal)
		acting.POST("/rewards/claim", s.handleClaimReward)
	}

	admin := v1.Group("/admin")
	admin.Use(s.requireAdmin())
	{
		admin.GET("/withdrawals/stats", s.handleWithdrawalStats)
		admin.POST("/withdrawals/:id/approve", s.handleApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", s.handleRejectWithdrawal)
		admin.POST("/withdrawals/:id/pay", s.handlePayWithdrawal)
		admin.POST("/withdrawals/:id/process", s.handleProcessWithdrawal)
		admin.POST("/webhooks/:id/reprocess", s.handleReprocessWebhook)
		admin.POST("/sweeps/:sweep", s.handleSweep)
		admin.GET("/reconcile", s.handleReconcile)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	zap.L().Info("HTTP server listening", zap.String("addr", s.config.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("Shutting down HTTP server")
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// requireUser takes the acting user from X-User-Id. Authentication happens upstream.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.GetHeader(headerUserId)
		if userId == "" {
			errorResponse(c, http.StatusUnauthorized, codeUnauthorized, headerUserId+" header is required")
			c.Abort()
			return
		}
		c.Set(contextUserId, userId)
		c.Next()
	}
}

// requireAdmin rejects every admin call when no token is configured.
func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(headerAdminToken)
		if s.config.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
			errorResponse(c, http.StatusForbidden, codeForbidden, "admin token required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func errorResponse(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func successResponse(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, gin.H{"data": data})
}

// statusFor maps an error code to the HTTP status returned with it.
func statusFor(code string) int {
	switch code {
	case models.CodeNotFound, models.CodePlanNotFound:
		return http.StatusNotFound
	case models.CodeValidation, models.CodeAmountTooLow, models.CodeInvalidPixKey,
		models.CodeInvalidDocument, models.CodeMinDeposit:
		return http.StatusBadRequest
	case models.CodeInvalidStatus, models.CodeAlreadyClaimedToday:
		return http.StatusConflict
	case models.CodeInsufficientBalance, models.CodeNoCycles, models.CodeWindowClosed,
		models.CodeDailyLimitReached, models.CodePlanInactive, models.CodePurchaseLimitReached:
		return http.StatusUnprocessableEntity
	case models.CodePixGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes a SettlementError as-is and hides anything else behind INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	if se, ok := models.AsSettlementError(err); ok {
		errorResponse(c, statusFor(se.Code), se.Code, se.Message)
		return
	}
	if errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrNotFound) {
		errorResponse(c, http.StatusNotFound, models.CodeNotFound, err.Error())
		return
	}

	zap.L().Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	errorResponse(c, http.StatusInternalServerError, models.CodeInternal, "internal error")
}

func actingUser(c *gin.Context) string {
	return c.GetString(contextUserId)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.ledger.HealthCheck(c.Request.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
