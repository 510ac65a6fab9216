package auction

import "fmt"

// Ledger owns player balances, loan flags and submission counts. It is not
// safe for concurrent use: the session event loop is its only caller.
type Ledger struct {
	rules   Rules
	players map[string]*Player
	order   []string
}

func NewLedger(rules Rules) *Ledger {
	return &Ledger{rules: rules, players: make(map[string]*Player)}
}

// Register creates the player on first sight and is a no-op afterwards. The
// display name is refreshed on every call so renames propagate.
func (l *Ledger) Register(id, name string) *Player {
	if p, ok := l.players[id]; ok {
		if name != "" {
			p.Name = name
		}
		return p
	}
	p := &Player{
		ID:    id,
		Name:  name,
		Money: l.rules.StartingBalance,
		seq:   len(l.order),
	}
	if p.Name == "" {
		p.Name = id
	}
	l.players[id] = p
	l.order = append(l.order, id)
	return p
}

func (l *Ledger) Get(id string) (*Player, bool) {
	p, ok := l.players[id]
	return p, ok
}

// GrantLoan credits the loan bonus exactly once per player.
func (l *Ledger) GrantLoan(id string) (*Player, error) {
	p, ok := l.players[id]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	if p.Loan {
		return nil, ErrDuplicateLoan
	}
	p.Loan = true
	p.Money += l.rules.LoanBonus
	return p, nil
}

// Debit withdraws amount from the player. Bid validation already guarantees
// coverage; the ledger re-asserts the invariant anyway.
func (l *Ledger) Debit(id string, amount int) error {
	p, ok := l.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	if amount < 0 {
		return fmt.Errorf("negative debit %d for %s", amount, id)
	}
	if p.Money-amount < 0 {
		return fmt.Errorf("debit %d exceeds balance %d for %s: %w", amount, p.Money, id, ErrInsufficientFunds)
	}
	p.Money -= amount
	return nil
}

// CountArtwork increments the player's submission counter against the cap.
func (l *Ledger) CountArtwork(id string) error {
	p, ok := l.players[id]
	if !ok {
		return ErrUnknownPlayer
	}
	if p.ArtsCnt >= l.rules.ArtworkCap {
		return ErrArtworkLimit
	}
	p.ArtsCnt++
	return nil
}

// Players returns all players in registration order.
func (l *Ledger) Players() []*Player {
	out := make([]*Player, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.players[id])
	}
	return out
}

// AllAtCap reports whether every registered player submitted the full quota.
// An empty ledger is never ready.
func (l *Ledger) AllAtCap() bool {
	if len(l.players) == 0 {
		return false
	}
	for _, p := range l.players {
		if p.ArtsCnt < l.rules.ArtworkCap {
			return false
		}
	}
	return true
}
