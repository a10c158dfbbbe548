package handler

import (
	"net/http"

	"github.com/cuongbtq/transfer-market/internal/api/dto"
	"github.com/cuongbtq/transfer-market/internal/apperr"
	"github.com/cuongbtq/transfer-market/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const defaultTransactionPage = 20

// GetBalance handles GET /api/v1/balance
// A user who never funded their account has no row yet and sees zero.
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	bal, err := h.ledger.Balance(c.Request.Context(), actor.UserID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		bal, err = &ledger.Balance{UserID: actor.UserID, Balance: decimal.Zero}, nil
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewBalanceDTO(bal))
}

// ListTransactions handles GET /api/v1/balance/transactions
func (h *BalanceHandler) ListTransactions(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req dto.ListTransactionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		writeBindError(c, h.logger, err)
		return
	}
	if req.PageSize == 0 {
		req.PageSize = defaultTransactionPage
	}

	filter := ledger.TransactionFilter{
		UserID:   actor.UserID,
		Type:     ledger.TxType(req.Type),
		PageSize: req.PageSize,
	}
	cursor, err := DecodeTransactionCursor(req.Cursor)
	if err != nil {
		writeError(c, h.logger, apperr.Validation("invalid cursor"))
		return
	}
	filter.Cursor = cursor

	txs, err := h.ledger.History(c.Request.Context(), filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	resp := dto.ListTransactionsResponse{Transactions: make([]dto.TransactionDTO, len(txs))}
	for i := range txs {
		resp.Transactions[i] = dto.NewTransactionDTO(&txs[i])
	}
	if len(txs) == req.PageSize {
		last := txs[len(txs)-1]
		resp.NextCursor = EncodeTransactionCursor(&ledger.TransactionCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	c.JSON(http.StatusOK, resp)
}

// Reconcile handles GET /api/v1/balance/reconcile
func (h *BalanceHandler) Reconcile(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewReconciliationDTO(rec))
}
