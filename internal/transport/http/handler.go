package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/walletchat/groupwallet-service/internal/model"
	"github.com/walletchat/groupwallet-service/internal/service"
)

// Services bundles what the handlers need.
type Services struct {
	Wallets      *service.WalletService
	Transactions *service.TransactionService
	Approvals    *service.ApprovalService
}

func RegisterHandlers(r *gin.Engine, svcs Services) {
	v1 := r.Group("/v1")
	{
		v1.POST("/wallets", createWalletHandler(svcs.Wallets))
		v1.GET("/wallets/:id", getWalletHandler(svcs.Wallets))
		v1.GET("/wallets/:id/balance", balanceHandler(svcs.Wallets))
		v1.PATCH("/wallets/:id", updateWalletHandler(svcs.Wallets))
		v1.DELETE("/wallets/:id", deleteWalletHandler(svcs.Wallets))
		v1.GET("/users/:id/wallets", listWalletsHandler(svcs.Wallets))

		v1.POST("/wallets/:id/transactions", createTransactionHandler(svcs.Transactions))
		v1.GET("/wallets/:id/transactions", listTransactionsHandler(svcs.Transactions))
		v1.DELETE("/transactions/:id", deleteTransactionHandler(svcs.Transactions))

		// The UI's approve and reject buttons both funnel into CastVote.
		v1.POST("/transactions/:id/approve", castVoteHandler(svcs.Approvals, model.VoteApprove))
		v1.POST("/transactions/:id/reject", castVoteHandler(svcs.Approvals, model.VoteReject))
	}
}

// statusFor maps the service error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrDuplicateVote),
		errors.Is(err, service.ErrInvariantViolation):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func abortWith(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type createWalletReq struct {
	Name               string   `json:"name" binding:"required"`
	Currency           string   `json:"currency" binding:"required"`
	RequiredSignatures int      `json:"required_signatures" binding:"required"`
	Members            []string `json:"members" binding:"required"`
	ChatID             *string  `json:"chat_id"`
}

func createWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createWalletReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		w, err := svc.CreateWallet(c, req.Name, model.Currency(req.Currency), req.RequiredSignatures, req.Members, req.ChatID)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, w)
	}
}

func getWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.GetWallet(c, c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func balanceHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.GetBalance(c, c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance": bal})
	}
}

type updateWalletReq struct {
	Name               *string  `json:"name"`
	Currency           *string  `json:"currency"`
	RequiredSignatures *int     `json:"required_signatures"`
	Members            []string `json:"members"`
}

func updateWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateWalletReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		upd := service.UpdateWalletInput{
			Name:               req.Name,
			RequiredSignatures: req.RequiredSignatures,
			Members:            req.Members,
		}
		if req.Currency != nil {
			cur := model.Currency(*req.Currency)
			upd.Currency = &cur
		}
		w, err := svc.UpdateWallet(c, c.Param("id"), upd)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func deleteWalletHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := svc.DeleteWallet(c, c.Param("id")); err != nil {
			abortWith(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listWalletsHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := svc.ListWalletsForUser(c, c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, ws)
	}
}

type createTransactionReq struct {
	Type        string `json:"type" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	Description string `json:"description"`
	CreatedBy   string `json:"created_by" binding:"required"`
}

func createTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTransactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		t, err := svc.CreateTransaction(c, c.Param("id"), model.TransactionType(req.Type), amt, req.Description, req.CreatedBy)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func listTransactionsHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.ListTransactionsForWallet(c, c.Param("id"))
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, txs)
	}
}

type deleteTransactionReq struct {
	UserID string `json:"user_id" binding:"required"`
}

func deleteTransactionHandler(svc *service.TransactionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req deleteTransactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.DeleteTransaction(c, c.Param("id"), req.UserID); err != nil {
			abortWith(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type castVoteReq struct {
	UserID    string `json:"user_id" binding:"required"`
	Signature string `json:"signature"`
}

func castVoteHandler(svc *service.ApprovalService, choice model.VoteChoice) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req castVoteReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := svc.CastVote(c, c.Param("id"), req.UserID, choice, req.Signature)
		if err != nil {
			abortWith(c, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
