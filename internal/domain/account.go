package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/JoaoGuiPan/bank-account/internal/money"
)

// CardType drives the fee policy for an account. Operations that remove money
// from a CREDIT account incur a 1% surcharge; DEBIT accounts pay no fee.
type CardType string

const (
	CardTypeDebit  CardType = "DEBIT"
	CardTypeCredit CardType = "CREDIT"
)

// Valid reports whether the card type is one of the known variants.
func (c CardType) Valid() bool {
	return c == CardTypeDebit || c == CardTypeCredit
}

// Account is the mutable-balance write model. ID, UserID, CardID and CardType
// are assigned at creation and never change; Balance and UpdatedAt change on
// every committed mutation. Version is the optimistic-concurrency counter used
// by the store's compare-and-set updates and is never serialized.
type Account struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user"`
	UserLastName string      `json:"userLastName"`
	CardID       string      `json:"card"`
	CardType     CardType    `json:"cardType"`
	Balance      money.Money `json:"balance"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Version      int64       `json:"-"`
}

// NewAccount builds an account with fresh identities and the current date.
func NewAccount(userLastName string, cardType CardType, balance money.Money) *Account {
	return &Account{
		ID:           uuid.New().String(),
		UserID:       uuid.New().String(),
		UserLastName: userLastName,
		CardID:       uuid.New().String(),
		CardType:     cardType,
		Balance:      balance,
		UpdatedAt:    time.Now().UTC(),
	}
}

// AccountBalance is the projection returned by the balances listing.
type AccountBalance struct {
	Account      string      `json:"account"`
	UserLastName string      `json:"userLastName"`
	Balance      money.Money `json:"balance"`
}
