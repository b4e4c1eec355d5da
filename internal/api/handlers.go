package api

import (
	"io"
	"net/http"
	"strconv"

	"pix-settlement-go/internal/models"
	"pix-settlement-go/internal/referral"
	"pix-settlement-go/internal/withdrawal"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Cpf      string `json:"cpf"`
	Referrer string `json:"referrer"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type purchaseRequest struct {
	PlanId string `json:"plan_id" binding:"required"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type payRequest struct {
	TransactionId string `json:"transaction_id"`
}

func bindError(c *gin.Context, err error) {
	errorResponse(c, http.StatusBadRequest, models.CodeValidation, "invalid request body: "+err.Error())
}

// handleWebhook acknowledges every delivery it could record, matched or not.
func (s *Server) handleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, models.CodeValidation, "unable to read payload")
		return
	}

	outcome, err := s.services.Webhooks.Handle(c.Request.Context(), payload)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, outcome)
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := s.services.Referrals.Register(c.Request.Context(), referral.RegisterParams{
		Name:     req.Name,
		Email:    req.Email,
		Cpf:      req.Cpf,
		Referrer: req.Referrer,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, user)
}

func (s *Server) handleListPlans(c *gin.Context) {
	plans, err := s.ledger.ListPlans(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, plans)
}

func (s *Server) handleGetBalances(c *gin.Context) {
	balances, err := s.ledger.GetUserBalances(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, balances)
}

func (s *Server) handleGetLedger(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := s.ledger.GetLedgerHistory(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, entries)
}

func (s *Server) handleListCycles(c *gin.Context) {
	cycles, err := s.services.DbService.ListUserCycles(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if cycles == nil {
		cycles = []models.Cycle{}
	}
	successResponse(c, http.StatusOK, cycles)
}

func (s *Server) handleCycleEarnings(c *gin.Context) {
	ctx := c.Request.Context()
	cycle, err := s.services.DbService.GetCycle(ctx, c.Param("cycleId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if cycle.UserId != c.Param("id") {
		errorResponse(c, http.StatusNotFound, models.CodeNotFound, "cycle "+c.Param("cycleId")+" not found")
		return
	}

	earnings, err := s.services.DbService.ListCycleEarnings(ctx, cycle.Id)
	if err != nil {
		respondError(c, err)
		return
	}
	if earnings == nil {
		earnings = []models.Earning{}
	}
	successResponse(c, http.StatusOK, gin.H{"cycle": cycle, "earnings": earnings})
}

func (s *Server) handleRewardStreak(c *gin.Context) {
	streak, err := s.services.Rewards.Streak(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, gin.H{"user_id": c.Param("id"), "streak": streak})
}

func (s *Server) handleListCommissions(c *gin.Context) {
	commissions, err := s.services.DbService.ListUserCommissions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if commissions == nil {
		commissions = []models.Commission{}
	}
	successResponse(c, http.StatusOK, commissions)
}

func (s *Server) handleListWithdrawals(c *gin.Context) {
	withdrawals, err := s.services.Withdrawals.ListUserWithdrawals(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if withdrawals == nil {
		withdrawals = []models.Withdrawal{}
	}
	successResponse(c, http.StatusOK, withdrawals)
}

func (s *Server) handleCreateDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	deposit, err := s.services.Deposits.Create(c.Request.Context(), actingUser(c), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, deposit)
}

func (s *Server) handleGetDeposit(c *gin.Context) {
	deposit, err := s.services.Deposits.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if deposit.UserId != actingUser(c) {
		errorResponse(c, http.StatusNotFound, models.CodeNotFound, "deposit "+c.Param("id")+" not found")
		return
	}
	successResponse(c, http.StatusOK, deposit)
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := s.services.Cycles.Purchase(c.Request.Context(), actingUser(c), req.PlanId)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, result)
}

func (s *Server) handleRequestWithdrawal(c *gin.Context) {
	var req withdrawal.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	req.UserId = actingUser(c)

	w, err := s.services.Withdrawals.Request(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusCreated, w)
}

func (s *Server) handleClaimReward(c *gin.Context) {
	result, err := s.services.Rewards.Claim(c.Request.Context(), actingUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, result)
}

func (s *Server) handleWithdrawalStats(c *gin.Context) {
	stats, err := s.services.Withdrawals.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, stats)
}

func (s *Server) handleApproveWithdrawal(c *gin.Context) {
	w, err := s.services.Withdrawals.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, w)
}

func (s *Server) handleRejectWithdrawal(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	w, err := s.services.Withdrawals.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, w)
}

func (s *Server) handlePayWithdrawal(c *gin.Context) {
	var req payRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}

	w, err := s.services.Withdrawals.MarkPaid(c.Request.Context(), c.Param("id"), req.TransactionId)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, w)
}

func (s *Server) handleProcessWithdrawal(c *gin.Context) {
	w, err := s.services.Withdrawals.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, w)
}

func (s *Server) handleReprocessWebhook(c *gin.Context) {
	outcome, err := s.services.Webhooks.Reprocess(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, outcome)
}

// handleSweep runs one batch job synchronously and returns its stats.
func (s *Server) handleSweep(c *gin.Context) {
	sweep, ok := s.services.Sweep(c.Param("sweep"))
	if !ok {
		errorResponse(c, http.StatusNotFound, models.CodeNotFound, "unknown sweep "+c.Param("sweep"))
		return
	}

	stats, err := sweep.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	zap.L().Info("Sweep triggered over HTTP", zap.String("sweep", sweep.Name))
	successResponse(c, http.StatusOK, stats)
}

func (s *Server) handleReconcile(c *gin.Context) {
	report, err := s.services.Reconciler.Run(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}
	successResponse(c, http.StatusOK, report)
}
