package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"lotteryledger/internal/chain"
	"lotteryledger/internal/models"
	"lotteryledger/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
)

// MaxRequestBytes bounds the body of a submitted transaction.
const MaxRequestBytes = 16 << 10

// HTTPHandler exposes a dev chain and the ledgers deployed on it over JSON.
type HTTPHandler struct {
	chain *chain.Chain
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(c *chain.Chain) *HTTPHandler {
	return &HTTPHandler{
		chain: c,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	v1.POST("/transactions", h.SubmitTransaction)
	v1.GET("/lotteries/:address", h.ShowLottery)
	v1.GET("/lotteries/:address/count", h.GetEntryCount)
	v1.GET("/lotteries/:address/entries/:index", h.GetEntry)
	v1.GET("/accounts/:address", h.ShowAccount)
	v1.GET("/blocks/latest", h.LatestBlock)
}

// SubmitTransaction executes a signed transaction. Calls the ledger refuses
// still answer 200 with a receipt whose status is 0.
func (h *HTTPHandler) SubmitTransaction(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBytes)
	var stx chain.SignedTx
	if err := c.ShouldBindJSON(&stx); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "transaction too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed transaction: " + err.Error()})
		return
	}

	receipt, err := h.chain.Submit(c.Request.Context(), stx)
	if err != nil {
		logger.Infof("Rejected transaction: %v", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ShowLottery returns the owner, the size and the pool of the current round.
func (h *HTTPHandler) ShowLottery(c *gin.Context) {
	addr, ledger, ok := h.ledger(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	count, err := ledger.GetEntryCount(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	pool, err := ledger.Pool(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":    addr,
		"owner":      ledger.Owner(),
		"entryCount": count,
		"pool":       pool,
		"custody":    h.chain.Balance(addr),
	})
}

// GetEntryCount returns the number of entries in the current round.
func (h *HTTPHandler) GetEntryCount(c *gin.Context) {
	_, ledger, ok := h.ledger(c)
	if !ok {
		return
	}
	count, err := ledger.GetEntryCount(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetEntry returns one entry as {userAddress, name, amount}.
func (h *HTTPHandler) GetEntry(c *gin.Context) {
	_, ledger, ok := h.ledger(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}
	entry, err := ledger.GetEntry(c.Request.Context(), index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ShowAccount returns the balance and next nonce of an account.
func (h *HTTPHandler) ShowAccount(c *gin.Context) {
	addr, err := models.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address": addr,
		"balance": h.chain.Balance(addr),
		"nonce":   h.chain.Nonce(addr),
	})
}

// LatestBlock returns the head of the chain.
func (h *HTTPHandler) LatestBlock(c *gin.Context) {
	c.JSON(http.StatusOK, h.chain.LatestBlock())
}

func (h *HTTPHandler) ledger(c *gin.Context) (models.Address, *services.LotteryLedger, bool) {
	addr, err := models.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return addr, nil, false
	}
	ledger, err := h.chain.Ledger(addr)
	if err != nil {
		h.fail(c, err)
		return addr, nil, false
	}
	return addr, ledger, true
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("Request %s failed: %v", c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrIndexOutOfRange), errors.Is(err, chain.ErrUnknownLedger):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNoEntries):
		return http.StatusConflict
	case errors.Is(err, services.ErrPayoutFailed):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrInvalidStake),
		errors.Is(err, chain.ErrInvalidSignature),
		errors.Is(err, chain.ErrNonce),
		errors.Is(err, chain.ErrInsufficientFunds),
		errors.Is(err, chain.ErrGasPriceTooLow),
		errors.Is(err, chain.ErrInvalidValue),
		errors.Is(err, chain.ErrLabelTooLong),
		errors.Is(err, chain.ErrUnknownMethod):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
