// Package handler exposes the account API over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
	"github.com/JoaoGuiPan/bank-account/internal/middleware"
	"github.com/JoaoGuiPan/bank-account/internal/money"
	"github.com/JoaoGuiPan/bank-account/internal/service"
)

// AccountOperations defines the mutation-side operations used by AccountHandler.
type AccountOperations interface {
	OpenAccount(ctx context.Context, cmd service.OpenAccountCommand) (*domain.Account, error)
	GetAllAccountBalances(ctx context.Context) ([]domain.AccountBalance, error)
	DepositAmount(ctx context.Context, accountID, amount string) (*domain.Account, error)
	WithdrawAmount(ctx context.Context, accountID, amount string) (*domain.Account, error)
	TransferAmount(ctx context.Context, fromAccountID, toAccountID, amount string) (*domain.Account, error)
	DeleteAllAccounts(ctx context.Context) error
}

// AccountReader defines the read-side lookup used by AccountHandler. Served
// from the Redis view cache with a PostgreSQL fallback.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

type AccountHandler struct {
	accounts AccountOperations
	reader   AccountReader
}

func NewAccountHandler(accounts AccountOperations, reader AccountReader) *AccountHandler {
	return &AccountHandler{accounts: accounts, reader: reader}
}

type OpenAccountRequest struct {
	UserLastName string `json:"userLastName" validate:"required"`
	CardType     string `json:"cardType" validate:"required,oneof=DEBIT CREDIT"`
	Balance      string `json:"balance" validate:"required"`
}

type TransferRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
}

type AccountBalancesResponse struct {
	Accounts []domain.AccountBalance `json:"accounts"`
}

func (h *AccountHandler) OpenAccount(c *gin.Context) {
	var req OpenAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	log.Printf("Opening account for holder %s", req.UserLastName)
	account, err := h.accounts.OpenAccount(c.Request.Context(), service.OpenAccountCommand{
		UserLastName: req.UserLastName,
		CardType:     domain.CardType(req.CardType),
		Balance:      req.Balance,
	})
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) GetAllAccountBalances(c *gin.Context) {
	balances, err := h.accounts.GetAllAccountBalances(c.Request.Context())
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	if balances == nil {
		balances = []domain.AccountBalance{}
	}
	c.JSON(http.StatusOK, AccountBalancesResponse{Accounts: balances})
}

func (h *AccountHandler) WithdrawAmount(c *gin.Context) {
	id := c.Param("id")
	amount := c.Query("amount")

	log.Printf("Withdrawing %s from account %s", amount, id)
	account, err := h.accounts.WithdrawAmount(c.Request.Context(), id, amount)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) DepositAmount(c *gin.Context) {
	id := c.Param("id")
	amount := c.Query("amount")

	log.Printf("Depositing %s to account %s", amount, id)
	account, err := h.accounts.DepositAmount(c.Request.Context(), id, amount)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) TransferAmount(c *gin.Context) {
	id := c.Param("id")

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return
	}

	log.Printf("Transferring %s from account %s to account %s", req.Amount, id, req.Recipient)
	account, err := h.accounts.TransferAmount(c.Request.Context(), id, req.Recipient, req.Amount)
	if err != nil {
		respondWithServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) GetAccount(c *gin.Context) {
	account, err := h.reader.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// DeleteAllAccounts empties the store. Reachable only through the
// JWT-protected admin route.
func (h *AccountHandler) DeleteAllAccounts(c *gin.Context) {
	log.Printf("Deleting all accounts")
	if err := h.accounts.DeleteAllAccounts(c.Request.Context()); err != nil {
		respondWithServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// respondWithServiceError maps the service error taxonomy onto HTTP statuses.
// The reference API collapsed everything to 500 {message, exception}; client
// errors are differentiated here on purpose, and the 500 body keeps the
// reference shape.
func respondWithServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, domain.ErrNegativeBalance),
		errors.Is(err, domain.ErrSameAccountTransfer):
		middleware.RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrAccountNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, "Account not found")
	case errors.Is(err, domain.ErrDuplicateHolder):
		middleware.RespondWithError(c, http.StatusConflict, "Account holder already exists")
	case errors.Is(err, domain.ErrConflict):
		middleware.RespondWithError(c, http.StatusConflict, "Account was modified concurrently, retry the operation")
	case errors.Is(err, domain.ErrInsufficientFunds):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "Insufficient funds")
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"message":   "An unexpected error occurred.",
			"exception": err.Error(),
		})
	}
}
