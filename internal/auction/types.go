package auction

import (
	"errors"
	"time"
)

// Phase is the lifecycle of a game session.
type Phase string

const (
	PhaseIdle      Phase = "IDLE"      // collecting players and artworks
	PhaseOpen      Phase = "OPEN"      // a lot is on the floor, countdown running
	PhaseResolving Phase = "RESOLVING" // outcome being applied
	PhaseFinished  Phase = "FINISHED"
)

// ReasonTag explains why a round resolved. The tags are part of the
// presentation contract and are stable.
type ReasonTag string

const (
	ReasonAllOthersPassed   ReasonTag = "all others passed"
	ReasonAllPassedNoBids   ReasonTag = "all passed, no bids"
	ReasonTimeExpired       ReasonTag = "time expired"
	ReasonTimeExpiredNoBids ReasonTag = "time expired, no bids"
	ReasonNoEligibleBidders ReasonTag = "no eligible bidders"
)

// OutcomeKind classifies how a lot left the floor.
type OutcomeKind string

const (
	// OutcomeSold means a buyer won the lot at the recorded price.
	OutcomeSold OutcomeKind = "SOLD"
	// OutcomeReturned means the lot went back to its author at price 0.
	OutcomeReturned OutcomeKind = "RETURNED"
)

// Outcome is the write-once resolution record of a lot. HolderID is the buyer
// for SOLD and the author for RETURNED; the holder's capital is credited with
// the lot's real value at settlement either way.
type Outcome struct {
	Kind     OutcomeKind `json:"kind"`
	HolderID string      `json:"holder_id"`
	Price    int         `json:"price"`
	Reason   ReasonTag   `json:"reason"`
}

// Player is a registered participant.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Money   int    `json:"money"`
	Loan    bool   `json:"loan"`
	ArtsCnt int    `json:"arts_created"`

	seq int // registration order, stable tie-break for standings
}

// Lot is a single auctioned item. RealValue stays concealed until the final
// reveal; StartPrice is always strictly below it and both are multiples of
// the price step.
type Lot struct {
	ID         int      `json:"id"`
	AuthorID   string   `json:"author_id"`
	Title      string   `json:"title"`
	ArtworkRef string   `json:"artwork_ref"`
	RealValue  int      `json:"real_value"`
	StartPrice int      `json:"start_price"`
	Outcome    *Outcome `json:"outcome,omitempty"`
}

// Resolved reports whether the lot's outcome has been written.
func (l *Lot) Resolved() bool { return l != nil && l.Outcome != nil }

// Rules are the fixed-at-startup game constants.
type Rules struct {
	StartingBalance int
	LoanBonus       int
	LoanPayback     int
	ArtworkCap      int
	RealValueMin    int
	RealValueMax    int
	StartOffsets    []int
	PriceStep       int
	CountdownTicks  int
	TickInterval    time.Duration
	StartDelay      time.Duration
	BidSteps        []int // increments offered by the bid keyboard
}

// DefaultRules mirrors the classic game constants.
func DefaultRules() Rules {
	return Rules{
		StartingBalance: 3000,
		LoanBonus:       1000,
		LoanPayback:     1500,
		ArtworkCap:      2,
		RealValueMin:    100,
		RealValueMax:    3500,
		StartOffsets:    []int{100, 200, 300},
		PriceStep:       10,
		CountdownTicks:  10,
		TickInterval:    time.Second,
		StartDelay:      2 * time.Second,
		BidSteps:        []int{100, 200, 300},
	}
}

// Caller-recoverable rejections. Every one of these leaves session state
// untouched; none of them terminate the auction.
var (
	ErrBidTooLow         = errors.New("bid must exceed the current price")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotEligible       = errors.New("player is not eligible for this lot")
	ErrNoActiveLot       = errors.New("no active lot")
	ErrDuplicateLoan     = errors.New("loan already taken")
	ErrArtworkLimit      = errors.New("artwork limit reached")
	ErrAuctionStarted    = errors.New("auction already started")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrGameFinished      = errors.New("game is finished")

	// ErrAlreadyResolved indicates a second resolution attempt for the same
	// lot. It must never surface through the public API while events are
	// serialized; seeing it means a serialization bug.
	ErrAlreadyResolved = errors.New("lot already resolved")
)

// LotCreated acknowledges an accepted artwork submission.
type LotCreated struct {
	LotID      int
	StartPrice int
}

// LotView is the presentation snapshot of the lot on the floor.
type LotView struct {
	LotID      int
	ArtworkRef string
	StartPrice int
	Price      int
	LeaderName string
}

// PlayerStatus is the /status view of one player.
type PlayerStatus struct {
	ID        string
	Name      string
	Money     int
	Loan      bool
	ArtsCnt   int
	ArtCap    int
	OwnedLots []int
}

// Standing is one row of the final ranking.
type Standing struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Capital  int    `json:"capital"`
	Balance  int    `json:"balance"`
	ArtValue int    `json:"art_value"`
	Loan     bool   `json:"loan"`
}

// LotReveal discloses a lot completely, real value included.
type LotReveal struct {
	LotID      int       `json:"lot_id"`
	Title      string    `json:"title"`
	AuthorName string    `json:"author_name"`
	Outcome    Outcome   `json:"outcome"`
	HolderName string    `json:"holder_name"`
	RealValue  int       `json:"real_value"`
	ReasonTag  ReasonTag `json:"reason_tag"`
}

// FinalReport is the settlement output: standings plus the full reveal.
type FinalReport struct {
	GameID    string      `json:"game_id"`
	Room      string      `json:"room"`
	Standings []Standing  `json:"standings"`
	Lots      []LotReveal `json:"lots"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   time.Time   `json:"ended_at"`
}

// Notifier receives outbound presentation events. Implementations must be
// quick and must never block auction progress; delivery is best-effort and
// errors are the implementation's own concern.
type Notifier interface {
	AuctionStarting(lotCount int)
	LotOpened(lot LotView)
	BidAccepted(lot LotView)
	Tick(secondsRemaining int)
	LotResolved(lotID int, outcome Outcome, holderName string)
	AuctionFinished(report FinalReport)
}

type nopNotifier struct{}

func (nopNotifier) AuctionStarting(int)              {}
func (nopNotifier) LotOpened(LotView)                {}
func (nopNotifier) BidAccepted(LotView)              {}
func (nopNotifier) Tick(int)                         {}
func (nopNotifier) LotResolved(int, Outcome, string) {}
func (nopNotifier) AuctionFinished(FinalReport)      {}

// roundDown truncates x to the nearest lower multiple of step: 237 -> 230.
func roundDown(x, step int) int {
	if step <= 0 {
		return x
	}
	return (x / step) * step
}
