package gamble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
)

// Game renders the chat-facing side of the points bank: each command
// returns the reply line the bot should send to the channel.
type Game struct {
	bank *Bank

	// injectable for tests
	winRoll   func() bool
	randomBet func(points int) int
}

// NewGame wraps a bank with the coin-flip and random-bet rolls.
func NewGame(bank *Bank) *Game {
	return &Game{
		bank:      bank,
		winRoll:   func() bool { return rand.Float64() > 0.5 },
		randomBet: func(points int) int { return rand.Intn(points) + 1 },
	}
}

// Points reports the user's balance and any outstanding debt.
func (g *Game) Points(user string) string {
	acct := g.bank.Balance(user)
	msg := fmt.Sprintf("%s, you have %d points", user, acct.Points)
	if acct.Debt > 0 {
		msg += fmt.Sprintf(", and you have a debt of %d points", acct.Debt)
	}
	return msg
}

// Gamble bets points on a coin flip. With no argument a random bet
// between 1 and the full balance is placed; "all in" bets everything.
func (g *Game) Gamble(ctx context.Context, user string, args []string) string {
	acct := g.bank.Balance(user)
	if acct.Points == 0 {
		return fmt.Sprintf("%s, you don't have any points to gamble. You can borrow more points with !borrow if you want to keep playing!", user)
	}

	bet, ok := g.parseBet(args, acct.Points)
	if !ok {
		return "You need to bet an integer number of points!"
	}
	if bet > acct.Points {
		return fmt.Sprintf("%s, you cant bet more points than you have! You can either bet all in with !gamble all in, or bet up to %d points", user, acct.Points)
	}

	delta := bet
	win := g.winRoll()
	if !win {
		delta = -bet
	}
	acct, err := g.bank.Add(ctx, user, delta)
	if err != nil {
		slog.Error("persist gamble result", "user", user, "error", err)
	}

	var msg string
	if win {
		msg = fmt.Sprintf("You WIN %s! You now have %d", user, acct.Points)
	} else {
		msg = fmt.Sprintf("You LOSE %s NotLikeThis You now have %d", user, acct.Points)
	}
	if acct.Debt > 0 {
		msg += fmt.Sprintf(" and %d points of debt", acct.Debt)
	}
	return msg
}

func (g *Game) parseBet(args []string, points int) (int, bool) {
	joined := strings.Join(args, "")
	if joined == "allin" {
		return points, true
	}
	if len(args) == 0 {
		return g.randomBet(points), true
	}
	bet, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, false
	}
	return bet, true
}

// Borrow takes out a loan when the user is broke.
func (g *Game) Borrow(ctx context.Context, user string) string {
	acct, err := g.bank.Borrow(ctx, user)
	switch {
	case errors.Is(err, ErrNotBroke):
		return fmt.Sprintf("%s, you don't need to borrow any points, you still have %d points to gamble!", user, acct.Points)
	case err != nil:
		slog.Error("persist loan", "user", user, "error", err)
	}
	return fmt.Sprintf("%s, you now have a debt of %d points. Good luck! When you are ready, you can pay back the loan with !payback", user, acct.Debt)
}

// Payback pays down the user's loan from their balance.
func (g *Game) Payback(ctx context.Context, user string) string {
	acct, err := g.bank.Payback(ctx, user)
	switch {
	case errors.Is(err, ErrNoDebt):
		return fmt.Sprintf("%s, you're already debt free, silly! You don't need to pay anything back yet!", user)
	case errors.Is(err, ErrNoPoints):
		return fmt.Sprintf("%s, you don't have any points to pay back your debts with! You'll need to borrow some points first with !borrow.", user)
	case err != nil:
		slog.Error("persist loan payment", "user", user, "error", err)
	}
	return fmt.Sprintf("Thanks for making a loan payment %s. You now have %d points and a remaining debt of %d points", user, acct.Points, acct.Debt)
}
