// Package events defines the account event contract and the stream transports
// that carry it (Redis Streams by default, Kafka optionally).
package events

import (
	"time"

	"github.com/JoaoGuiPan/bank-account/internal/money"
)

// Event types
const (
	AccountOpened     = "account.opened"
	BalanceUpdated    = "balance.updated"
	TransferCompleted = "transfer.completed"
)

// AccountEventsStream is the stream all account events are published to.
const AccountEventsStream = "account.events"

// Event is the envelope put on the stream. ID is a uuid assigned by the
// publisher; consumers use it to deduplicate under at-least-once delivery.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type AccountOpenedEvent struct {
	AccountID    string      `json:"accountId"`
	UserID       string      `json:"userId"`
	UserLastName string      `json:"userLastName"`
	CardType     string      `json:"cardType"`
	Balance      money.Money `json:"balance"`
}

// BalanceUpdatedEvent is published after a deposit or withdrawal commits.
type BalanceUpdatedEvent struct {
	AccountID  string      `json:"accountId"`
	Operation  string      `json:"operation"`
	Amount     money.Money `json:"amount"`
	NewBalance money.Money `json:"newBalance"`
}

// TransferCompletedEvent is published after both sides of a transfer commit.
type TransferCompletedEvent struct {
	FromAccountID string      `json:"fromAccountId"`
	ToAccountID   string      `json:"toAccountId"`
	Amount        money.Money `json:"amount"`
	FromBalance   money.Money `json:"fromBalance"`
	ToBalance     money.Money `json:"toBalance"`
}
