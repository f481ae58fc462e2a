package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/miguel-bm/repobot/internal/db"
	"github.com/miguel-bm/repobot/internal/telegram"
)

// PublicCommands may run without a linked account.
var PublicCommands = []string{"/start", "/login"}

// AccountLookup resolves the stored account of a chat-platform user.
type AccountLookup interface {
	GetAccountByPlatformID(platformUserID int64) (*db.Account, error)
}

type Outcome int

const (
	Allowed Outcome = iota
	Unauthorized
)

func (o Outcome) String() string {
	if o == Unauthorized {
		return "unauthorized"
	}
	return "allowed"
}

// Decision is the gate's verdict. Account is nil when Outcome is Allowed for
// a public command, and always nil when Outcome is Unauthorized.
type Decision struct {
	Outcome Outcome
	Account *db.Account
}

// Gate decides whether an update may be processed.
type Gate struct {
	accounts AccountLookup
	public   map[string]bool
}

// NewGate creates a gate that lets the given command tokens through without
// a store lookup.
func NewGate(accounts AccountLookup, public ...string) *Gate {
	g := &Gate{accounts: accounts, public: make(map[string]bool, len(public))}
	for _, cmd := range public {
		g.public[strings.ToLower(cmd)] = true
	}
	return g
}

// Check authenticates upd. An account that exists but was logged out counts
// as unauthorized.
func (g *Gate) Check(upd telegram.Update) (Decision, error) {
	if g.public[upd.Token()] {
		return Decision{Outcome: Allowed}, nil
	}

	account, err := g.accounts.GetAccountByPlatformID(upd.SenderID())
	if errors.Is(err, db.ErrNotFound) {
		return Decision{Outcome: Unauthorized}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("lookup account %d: %w", upd.SenderID(), err)
	}
	if !account.LoggedIn() {
		return Decision{Outcome: Unauthorized}, nil
	}
	return Decision{Outcome: Allowed, Account: account}, nil
}
