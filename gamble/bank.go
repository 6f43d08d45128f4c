// Package gamble implements the channel points mini-game: a per-user
// bank of points that chatters can bet, borrow against, and pay back.
package gamble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/beanjamin25/beanbot/ledger"
)

// DefaultPoints is the starting balance for new users and the size of a
// single loan.
const DefaultPoints = 100

// bankLedger is the document name the bank persists under.
const bankLedger = "gamble"

var (
	// ErrNotBroke means the user tried to borrow while still holding points.
	ErrNotBroke = errors.New("gamble: user still has points")
	// ErrNoDebt means the user tried to pay back with nothing owed.
	ErrNoDebt = errors.New("gamble: user has no debt")
	// ErrNoPoints means the user tried to pay back with an empty balance.
	ErrNoPoints = errors.New("gamble: user has no points")
)

// Account is one user's standing in the bank.
type Account struct {
	Points int `json:"points"`
	Debt   int `json:"debts"`
}

// Bank tracks points and debts per user, writing through to the ledger
// store after every mutation.
type Bank struct {
	mu       sync.Mutex
	store    ledger.Store
	accounts map[string]Account
}

// NewBank loads the persisted bank, starting empty when no document
// exists yet.
func NewBank(ctx context.Context, store ledger.Store) (*Bank, error) {
	b := &Bank{
		store:    store,
		accounts: make(map[string]Account),
	}
	err := store.Load(ctx, bankLedger, &b.accounts)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("load bank: %w", err)
	}
	return b, nil
}

func (b *Bank) initLocked(user string) Account {
	acct, ok := b.accounts[user]
	if !ok {
		acct = Account{Points: DefaultPoints}
		b.accounts[user] = acct
	}
	return acct
}

func (b *Bank) saveLocked(ctx context.Context) error {
	return b.store.Save(ctx, bankLedger, b.accounts)
}

// Balance returns the user's account, opening one with the default
// grant on first sight.
func (b *Bank) Balance(user string) Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initLocked(user)
}

// Add applies a points delta to the user's balance. The balance never
// goes below zero.
func (b *Bank) Add(ctx context.Context, user string, delta int) (Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.initLocked(user)
	acct.Points += delta
	if acct.Points < 0 {
		acct.Points = 0
	}
	b.accounts[user] = acct
	return acct, b.saveLocked(ctx)
}

// Borrow grants a loan of DefaultPoints, increasing both balance and
// debt. Only a broke user may borrow; otherwise ErrNotBroke is
// returned along with the unchanged account.
func (b *Bank) Borrow(ctx context.Context, user string) (Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.initLocked(user)
	if acct.Points > 0 {
		return acct, ErrNotBroke
	}
	acct.Points += DefaultPoints
	acct.Debt += DefaultPoints
	b.accounts[user] = acct
	return acct, b.saveLocked(ctx)
}

// Payback repays as much of the user's debt as the balance covers,
// reducing both by min(points, debt). ErrNoDebt and ErrNoPoints mark
// the two cases where no payment is possible.
func (b *Bank) Payback(ctx context.Context, user string) (Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct := b.initLocked(user)
	if acct.Debt == 0 {
		return acct, ErrNoDebt
	}
	if acct.Points == 0 {
		return acct, ErrNoPoints
	}
	repay := acct.Points
	if acct.Debt < repay {
		repay = acct.Debt
	}
	acct.Points -= repay
	acct.Debt -= repay
	b.accounts[user] = acct
	return acct, b.saveLocked(ctx)
}
