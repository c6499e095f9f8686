// Package service implements the account mutation core: opening accounts,
// reporting balances and moving money between accounts with exact decimal
// arithmetic and the credit-card fee policy.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
	"github.com/JoaoGuiPan/bank-account/internal/events"
	"github.com/JoaoGuiPan/bank-account/internal/money"
)

// AccountStore is the durable-state collaborator. Implementations must
// serialize read-modify-write cycles on the same account (the repositories
// here use compare-and-set versioning, surfacing domain.ErrConflict on a lost
// race) and must make UpdateAll atomic: all rows visible together or none.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUserLastName(ctx context.Context, userLastName string) (*domain.Account, error)
	FindAll(ctx context.Context) ([]domain.Account, error)
	Insert(ctx context.Context, account *domain.Account) error
	Update(ctx context.Context, account *domain.Account) error
	UpdateAll(ctx context.Context, accounts ...*domain.Account) error
	DeleteAll(ctx context.Context) error
}

// EventPublisher pushes account events onto the event stream. Publish
// failures never fail the mutation that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

// OpenAccountCommand carries the account-opening input. Balance stays a
// string until the service parses it: the API accepts decimal strings and
// rejecting bad input is the service's job.
type OpenAccountCommand struct {
	UserLastName string
	CardType     domain.CardType
	Balance      string
}

// AccountService orchestrates every account mutation. It is stateless and
// safe for concurrent use; all durable state lives behind AccountStore.
type AccountService struct {
	store     AccountStore
	publisher EventPublisher
}

func NewAccountService(store AccountStore, publisher EventPublisher) *AccountService {
	return &AccountService{store: store, publisher: publisher}
}

// OpenAccount validates the opening balance, enforces holder uniqueness and
// persists a new account with fresh identities.
func (s *AccountService) OpenAccount(ctx context.Context, cmd OpenAccountCommand) (*domain.Account, error) {
	balance, err := money.Parse(cmd.Balance)
	if err != nil {
		return nil, err
	}
	if !balance.IsPositive() {
		return nil, domain.ErrNegativeBalance
	}
	if !cmd.CardType.Valid() {
		return nil, fmt.Errorf("invalid card type %q", cmd.CardType)
	}

	_, err = s.store.GetByUserLastName(ctx, cmd.UserLastName)
	if err == nil {
		return nil, domain.ErrDuplicateHolder
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	account := domain.NewAccount(cmd.UserLastName, cmd.CardType, balance)
	if err := s.store.Insert(ctx, account); err != nil {
		return nil, err
	}

	s.publish(ctx, events.AccountOpened, events.AccountOpenedEvent{
		AccountID:    account.ID,
		UserID:       account.UserID,
		UserLastName: account.UserLastName,
		CardType:     string(account.CardType),
		Balance:      account.Balance,
	})
	return account, nil
}

// GetAllAccountBalances projects id, holder and balance for every account,
// preserving the store's iteration order.
func (s *AccountService) GetAllAccountBalances(ctx context.Context) ([]domain.AccountBalance, error) {
	accounts, err := s.store.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	balances := make([]domain.AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		balances = append(balances, domain.AccountBalance{
			Account:      account.ID,
			UserLastName: account.UserLastName,
			Balance:      account.Balance,
		})
	}
	return balances, nil
}

// DepositAmount adds the parsed amount to the account balance. Deposits never
// carry a fee, and a non-positive amount is rejected outright: a negative
// "deposit" would otherwise act as a withdrawal that bypasses the fee rules.
func (s *AccountService) DepositAmount(ctx context.Context, accountID, amount string) (*domain.Account, error) {
	deposit, err := parsePositiveAmount(amount)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	account.Balance = account.Balance.Add(deposit)
	account.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, account); err != nil {
		return nil, err
	}

	s.publish(ctx, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountID:  account.ID,
		Operation:  "deposit",
		Amount:     deposit,
		NewBalance: account.Balance,
	})
	return account, nil
}

// WithdrawAmount removes the fee-adjusted amount from the account balance.
// Credit-card accounts pay 1% extra on the amount removed. The balance must
// stay non-negative or nothing is written.
func (s *AccountService) WithdrawAmount(ctx context.Context, accountID, amount string) (*domain.Account, error) {
	withdrawal, err := parsePositiveAmount(amount)
	if err != nil {
		return nil, err
	}
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Sub(withCardFee(withdrawal, account.CardType))
	if newBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	account.Balance = newBalance
	account.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, account); err != nil {
		return nil, err
	}

	s.publish(ctx, events.BalanceUpdated, events.BalanceUpdatedEvent{
		AccountID:  account.ID,
		Operation:  "withdrawal",
		Amount:     withdrawal,
		NewBalance: account.Balance,
	})
	return account, nil
}

// TransferAmount moves money from one account to another. Both sides are
// validated before anything is written, and both rows are persisted through a
// single atomic store write, so a reader never observes half a transfer. The
// source account pays the credit-card fee if it is a CREDIT account. Returns
// the updated source account.
func (s *AccountService) TransferAmount(ctx context.Context, fromAccountID, toAccountID, amount string) (*domain.Account, error) {
	transfer, err := parsePositiveAmount(amount)
	if err != nil {
		return nil, err
	}
	if fromAccountID == toAccountID {
		return nil, domain.ErrSameAccountTransfer
	}

	from, err := s.store.GetByID(ctx, fromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.store.GetByID(ctx, toAccountID)
	if err != nil {
		return nil, err
	}

	newFromBalance := from.Balance.Sub(withCardFee(transfer, from.CardType))
	if newFromBalance.IsNegative() {
		return nil, domain.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	from.Balance = newFromBalance
	from.UpdatedAt = now
	to.Balance = to.Balance.Add(transfer)
	to.UpdatedAt = now

	if err := s.store.UpdateAll(ctx, from, to); err != nil {
		return nil, err
	}

	s.publish(ctx, events.TransferCompleted, events.TransferCompletedEvent{
		FromAccountID: from.ID,
		ToAccountID:   to.ID,
		Amount:        transfer,
		FromBalance:   from.Balance,
		ToBalance:     to.Balance,
	})
	return from, nil
}

// DeleteAllAccounts wipes the store. Administrative reset only.
func (s *AccountService) DeleteAllAccounts(ctx context.Context) error {
	return s.store.DeleteAll(ctx)
}

// withCardFee returns the amount actually removed from an account: 1% extra
// for credit cards, unchanged for debit.
func withCardFee(amount money.Money, cardType domain.CardType) money.Money {
	if cardType == domain.CardTypeCredit {
		return amount.WithCreditFee()
	}
	return amount
}

func parsePositiveAmount(amount string) (money.Money, error) {
	m, err := money.Parse(amount)
	if err != nil {
		return money.Zero, err
	}
	if !m.IsPositive() {
		return money.Zero, fmt.Errorf("%w: amount must be positive", money.ErrInvalidAmount)
	}
	return m, nil
}

func (s *AccountService) publish(ctx context.Context, eventType string, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, events.AccountEventsStream, eventType, data); err != nil {
		log.Printf("Failed to publish %s event: %v", eventType, err)
	}
}
