package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/JoaoGuiPan/bank-account/internal/domain"
	"github.com/JoaoGuiPan/bank-account/internal/money"
	"github.com/JoaoGuiPan/bank-account/internal/repository"
)

// ---- mock store ----

// mockAccountStore counts writes so tests can assert that failed operations
// never touch the store.
type mockAccountStore struct {
	getByIDFn           func(ctx context.Context, id string) (*domain.Account, error)
	getByUserLastNameFn func(ctx context.Context, name string) (*domain.Account, error)
	findAllFn           func(ctx context.Context) ([]domain.Account, error)

	insertCalls    int
	updateCalls    int
	updateAllCalls int
	deleteAllCalls int
}

func (m *mockAccountStore) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrAccountNotFound
}

func (m *mockAccountStore) GetByUserLastName(ctx context.Context, name string) (*domain.Account, error) {
	if m.getByUserLastNameFn != nil {
		return m.getByUserLastNameFn(ctx, name)
	}
	return nil, domain.ErrAccountNotFound
}

func (m *mockAccountStore) FindAll(ctx context.Context) ([]domain.Account, error) {
	if m.findAllFn != nil {
		return m.findAllFn(ctx)
	}
	return nil, nil
}

func (m *mockAccountStore) Insert(ctx context.Context, account *domain.Account) error {
	m.insertCalls++
	return nil
}

func (m *mockAccountStore) Update(ctx context.Context, account *domain.Account) error {
	m.updateCalls++
	return nil
}

func (m *mockAccountStore) UpdateAll(ctx context.Context, accounts ...*domain.Account) error {
	m.updateAllCalls++
	return nil
}

func (m *mockAccountStore) DeleteAll(ctx context.Context) error {
	m.deleteAllCalls++
	return nil
}

func (m *mockAccountStore) writes() int {
	return m.insertCalls + m.updateCalls + m.updateAllCalls + m.deleteAllCalls
}

// ---- recording publisher ----

type recordingPublisher struct {
	mu     sync.Mutex
	types  []string
	failWith error
}

func (p *recordingPublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	p.types = append(p.types, eventType)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

// ---- helpers ----

func newMemoryService(t *testing.T) (*AccountService, *repository.MemoryAccountStore, *recordingPublisher) {
	t.Helper()
	store := repository.NewMemoryAccountStore()
	publisher := &recordingPublisher{}
	return NewAccountService(store, publisher), store, publisher
}

func openAccount(t *testing.T, svc *AccountService, lastName string, cardType domain.CardType, balance string) *domain.Account {
	t.Helper()
	account, err := svc.OpenAccount(context.Background(), OpenAccountCommand{
		UserLastName: lastName,
		CardType:     cardType,
		Balance:      balance,
	})
	if err != nil {
		t.Fatalf("OpenAccount(%s): %v", lastName, err)
	}
	return account
}

// ---- tests ----

func TestOpenAccount(t *testing.T) {
	svc, _, publisher := newMemoryService(t)

	account := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")

	if account.ID == "" || account.UserID == "" || account.CardID == "" {
		t.Error("expected generated identities on new account")
	}
	if account.UserLastName != "Doe" || account.CardType != domain.CardTypeDebit {
		t.Errorf("unexpected account fields: %+v", account)
	}
	if !account.Balance.Equal(money.MustParse("100.00")) {
		t.Errorf("balance = %s, want 100.00", account.Balance)
	}
	if got := publisher.published(); len(got) != 1 || got[0] != "account.opened" {
		t.Errorf("published events = %v, want [account.opened]", got)
	}
}

func TestOpenAccountValidation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     OpenAccountCommand
		wantErr error
	}{
		{
			name:    "unparsable balance",
			cmd:     OpenAccountCommand{UserLastName: "Doe", CardType: domain.CardTypeDebit, Balance: "not-a-number"},
			wantErr: money.ErrInvalidAmount,
		},
		{
			name:    "negative balance",
			cmd:     OpenAccountCommand{UserLastName: "Doe", CardType: domain.CardTypeDebit, Balance: "-100.00"},
			wantErr: domain.ErrNegativeBalance,
		},
		{
			name:    "zero balance",
			cmd:     OpenAccountCommand{UserLastName: "Doe", CardType: domain.CardTypeDebit, Balance: "0"},
			wantErr: domain.ErrNegativeBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockAccountStore{}
			svc := NewAccountService(store, nil)
			_, err := svc.OpenAccount(context.Background(), tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("OpenAccount = %v, want %v", err, tt.wantErr)
			}
			if store.writes() != 0 {
				t.Errorf("expected zero store writes, got %d", store.writes())
			}
		})
	}
}

func TestOpenAccountDuplicateHolder(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")

	_, err := svc.OpenAccount(context.Background(), OpenAccountCommand{
		UserLastName: "Doe",
		CardType:     domain.CardTypeCredit,
		Balance:      "50.00",
	})
	if !errors.Is(err, domain.ErrDuplicateHolder) {
		t.Fatalf("expected ErrDuplicateHolder, got %v", err)
	}

	accounts, _ := store.FindAll(context.Background())
	if len(accounts) != 1 {
		t.Errorf("expected 1 persisted account, got %d", len(accounts))
	}
}

func TestGetAllAccountBalancesPreservesOrder(t *testing.T) {
	svc, _, _ := newMemoryService(t)
	first := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")
	second := openAccount(t, svc, "Smith", domain.CardTypeCredit, "200.00")

	balances, err := svc.GetAllAccountBalances(context.Background())
	if err != nil {
		t.Fatalf("GetAllAccountBalances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	if balances[0].Account != first.ID || balances[1].Account != second.ID {
		t.Error("balances not in store iteration order")
	}
	if balances[0].UserLastName != "Doe" || !balances[0].Balance.Equal(money.MustParse("100.00")) {
		t.Errorf("unexpected projection: %+v", balances[0])
	}
}

func TestDepositAmount(t *testing.T) {
	svc, _, publisher := newMemoryService(t)
	account := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")

	updated, err := svc.DepositAmount(context.Background(), account.ID, "50.00")
	if err != nil {
		t.Fatalf("DepositAmount: %v", err)
	}
	if !updated.Balance.Equal(money.MustParse("150.00")) {
		t.Errorf("balance = %s, want 150.00", updated.Balance)
	}
	if got := publisher.published(); got[len(got)-1] != "balance.updated" {
		t.Errorf("expected balance.updated event, got %v", got)
	}
}

func TestDepositRejectsNonPositiveAmounts(t *testing.T) {
	for _, amount := range []string{"-50.00", "0", "abc", ""} {
		t.Run(fmt.Sprintf("amount=%q", amount), func(t *testing.T) {
			store := &mockAccountStore{}
			svc := NewAccountService(store, nil)
			_, err := svc.DepositAmount(context.Background(), "acc-1", amount)
			if !errors.Is(err, money.ErrInvalidAmount) {
				t.Fatalf("expected ErrInvalidAmount, got %v", err)
			}
			if store.writes() != 0 {
				t.Errorf("expected zero store writes, got %d", store.writes())
			}
		})
	}
}

func TestWithdrawAmount(t *testing.T) {
	tests := []struct {
		name     string
		cardType domain.CardType
		balance  string
		amount   string
		want     string
	}{
		{name: "debit pays no fee", cardType: domain.CardTypeDebit, balance: "100.00", amount: "50.00", want: "50.00"},
		{name: "credit pays 1% fee", cardType: domain.CardTypeCredit, balance: "100.00", amount: "50.00", want: "49.50"},
		{name: "withdraw to exactly zero", cardType: domain.CardTypeDebit, balance: "100.00", amount: "100.00", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newMemoryService(t)
			account := openAccount(t, svc, "Doe", tt.cardType, tt.balance)

			updated, err := svc.WithdrawAmount(context.Background(), account.ID, tt.amount)
			if err != nil {
				t.Fatalf("WithdrawAmount: %v", err)
			}
			if !updated.Balance.Equal(money.MustParse(tt.want)) {
				t.Errorf("balance = %s, want %s", updated.Balance, tt.want)
			}
		})
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	account := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")

	_, err := svc.WithdrawAmount(context.Background(), account.ID, "1000.00")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	unchanged, _ := store.GetByID(context.Background(), account.ID)
	if !unchanged.Balance.Equal(money.MustParse("100.00")) {
		t.Errorf("balance changed to %s on failed withdrawal", unchanged.Balance)
	}
}

func TestWithdrawCreditFeeBoundary(t *testing.T) {
	// 100 covers 99.00 + 0.99 fee exactly, but not a cent more.
	svc, _, _ := newMemoryService(t)
	account := openAccount(t, svc, "Doe", domain.CardTypeCredit, "100.00")

	_, err := svc.WithdrawAmount(context.Background(), account.ID, "99.01")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds for fee overflow, got %v", err)
	}

	updated, err := svc.WithdrawAmount(context.Background(), account.ID, "99.00")
	if err != nil {
		t.Fatalf("WithdrawAmount: %v", err)
	}
	if !updated.Balance.Equal(money.MustParse("0.01")) {
		t.Errorf("balance = %s, want 0.01", updated.Balance)
	}
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	svc, _, _ := newMemoryService(t)
	account := openAccount(t, svc, "Doe", domain.CardTypeDebit, "123.45")

	if _, err := svc.DepositAmount(context.Background(), account.ID, "0.10"); err != nil {
		t.Fatalf("DepositAmount: %v", err)
	}
	updated, err := svc.WithdrawAmount(context.Background(), account.ID, "0.10")
	if err != nil {
		t.Fatalf("WithdrawAmount: %v", err)
	}
	if !updated.Balance.Equal(money.MustParse("123.45")) {
		t.Errorf("balance = %s, want exactly 123.45", updated.Balance)
	}
}

func TestMutationsAgainstUnknownAccount(t *testing.T) {
	ops := []struct {
		name string
		call func(svc *AccountService) error
	}{
		{"withdraw", func(svc *AccountService) error {
			_, err := svc.WithdrawAmount(context.Background(), "missing", "10.00")
			return err
		}},
		{"deposit", func(svc *AccountService) error {
			_, err := svc.DepositAmount(context.Background(), "missing", "10.00")
			return err
		}},
		{"transfer", func(svc *AccountService) error {
			_, err := svc.TransferAmount(context.Background(), "missing", "also-missing", "10.00")
			return err
		}},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			store := &mockAccountStore{}
			svc := NewAccountService(store, nil)
			if err := op.call(svc); !errors.Is(err, domain.ErrAccountNotFound) {
				t.Fatalf("expected ErrAccountNotFound, got %v", err)
			}
			if store.writes() != 0 {
				t.Errorf("expected zero store writes, got %d", store.writes())
			}
		})
	}
}

func TestTransferAmount(t *testing.T) {
	svc, store, publisher := newMemoryService(t)
	from := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")
	to := openAccount(t, svc, "Smith", domain.CardTypeDebit, "200.00")

	updated, err := svc.TransferAmount(context.Background(), from.ID, to.ID, "50.00")
	if err != nil {
		t.Fatalf("TransferAmount: %v", err)
	}
	if updated.ID != from.ID {
		t.Errorf("transfer returned account %s, want source %s", updated.ID, from.ID)
	}
	if !updated.Balance.Equal(money.MustParse("50.00")) {
		t.Errorf("source balance = %s, want 50.00", updated.Balance)
	}

	dest, _ := store.GetByID(context.Background(), to.ID)
	if !dest.Balance.Equal(money.MustParse("250.00")) {
		t.Errorf("destination balance = %s, want 250.00", dest.Balance)
	}
	if got := publisher.published(); got[len(got)-1] != "transfer.completed" {
		t.Errorf("expected transfer.completed event, got %v", got)
	}
}

func TestTransferSourcePaysCreditFee(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	from := openAccount(t, svc, "Doe", domain.CardTypeCredit, "100.00")
	to := openAccount(t, svc, "Smith", domain.CardTypeDebit, "200.00")

	updated, err := svc.TransferAmount(context.Background(), from.ID, to.ID, "50.00")
	if err != nil {
		t.Fatalf("TransferAmount: %v", err)
	}
	// Source pays 50 * 1.01; destination receives the plain amount.
	if !updated.Balance.Equal(money.MustParse("49.50")) {
		t.Errorf("source balance = %s, want 49.50", updated.Balance)
	}
	dest, _ := store.GetByID(context.Background(), to.ID)
	if !dest.Balance.Equal(money.MustParse("250.00")) {
		t.Errorf("destination balance = %s, want 250.00", dest.Balance)
	}
}

func TestTransferInsufficientFundsLeavesBothUnchanged(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	from := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")
	to := openAccount(t, svc, "Smith", domain.CardTypeDebit, "200.00")

	_, err := svc.TransferAmount(context.Background(), from.ID, to.ID, "1000.00")
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	source, _ := store.GetByID(context.Background(), from.ID)
	dest, _ := store.GetByID(context.Background(), to.ID)
	if !source.Balance.Equal(money.MustParse("100.00")) || !dest.Balance.Equal(money.MustParse("200.00")) {
		t.Errorf("failed transfer mutated balances: source=%s dest=%s", source.Balance, dest.Balance)
	}
}

func TestTransferToSameAccount(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	account := openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")

	_, err := svc.TransferAmount(context.Background(), account.ID, account.ID, "10.00")
	if !errors.Is(err, domain.ErrSameAccountTransfer) {
		t.Fatalf("expected ErrSameAccountTransfer, got %v", err)
	}
	unchanged, _ := store.GetByID(context.Background(), account.ID)
	if !unchanged.Balance.Equal(money.MustParse("100.00")) {
		t.Errorf("balance changed to %s on rejected transfer", unchanged.Balance)
	}
}

// TestTransferAtomicityUnderConcurrency shuttles money between two accounts
// from many goroutines while a reader checks the combined balance. Because
// both rows commit together, the total must hold at every observation, not
// just at the end.
func TestTransferAtomicityUnderConcurrency(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	a := openAccount(t, svc, "Doe", domain.CardTypeDebit, "1000.00")
	b := openAccount(t, svc, "Smith", domain.CardTypeDebit, "1000.00")
	total := money.MustParse("2000.00")

	ctx := context.Background()
	transfer := func(fromID, toID string) {
		// Version conflicts are expected under contention; retry like a
		// caller would. Insufficient funds just means this shuttle lost.
		for {
			_, err := svc.TransferAmount(ctx, fromID, toID, "1.00")
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("TransferAmount: %v", err)
			}
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			accounts, err := store.FindAll(ctx)
			if err != nil {
				t.Errorf("FindAll: %v", err)
				return
			}
			sum := money.Zero
			for _, acc := range accounts {
				sum = sum.Add(acc.Balance)
			}
			if !sum.Equal(total) {
				t.Errorf("observed partial transfer: total = %s, want %s", sum, total)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			transfer(a.ID, b.ID)
		}()
		go func() {
			defer wg.Done()
			transfer(b.ID, a.ID)
		}()
	}
	wg.Wait()
	<-done

	accounts, _ := store.FindAll(ctx)
	sum := money.Zero
	for _, acc := range accounts {
		sum = sum.Add(acc.Balance)
	}
	if !sum.Equal(total) {
		t.Errorf("final total = %s, want %s", sum, total)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := repository.NewMemoryAccountStore()
	publisher := &recordingPublisher{failWith: errors.New("stream down")}
	svc := NewAccountService(store, publisher)

	account, err := svc.OpenAccount(context.Background(), OpenAccountCommand{
		UserLastName: "Doe",
		CardType:     domain.CardTypeDebit,
		Balance:      "100.00",
	})
	if err != nil {
		t.Fatalf("OpenAccount must succeed despite publish failure, got %v", err)
	}
	if account == nil {
		t.Fatal("expected account")
	}
}

func TestDeleteAllAccounts(t *testing.T) {
	svc, store, _ := newMemoryService(t)
	openAccount(t, svc, "Doe", domain.CardTypeDebit, "100.00")
	openAccount(t, svc, "Smith", domain.CardTypeDebit, "200.00")

	if err := svc.DeleteAllAccounts(context.Background()); err != nil {
		t.Fatalf("DeleteAllAccounts: %v", err)
	}
	accounts, _ := store.FindAll(context.Background())
	if len(accounts) != 0 {
		t.Errorf("expected empty store, got %d accounts", len(accounts))
	}
}
