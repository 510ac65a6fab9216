package auctionpresenter

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/azatbro/art-auction-bot/internal/auction"
	"github.com/azatbro/art-auction-bot/pkg/auctiondto"
)

// SendFunc delivers a message to the session's room and returns the message
// id for later edits. EditFunc rewrites a previously sent message in place.
type (
	SendFunc func(text string, buttons [][]auctiondto.Button) (int64, error)
	EditFunc func(messageID int64, text string, buttons [][]auctiondto.Button) error
)

// Presenter delivers formatted auction events without coupling to the
// transport layer. It implements the engine's notifier interface; delivery
// failures are logged and swallowed so the game never stalls on chat I/O.
type Presenter struct {
	fmt    *Formatter
	rules  auction.Rules
	send   SendFunc
	edit   EditFunc
	logger *zap.Logger

	mu        sync.Mutex
	tickMsgID int64
}

func NewPresenter(f *Formatter, rules auction.Rules, send SendFunc, edit EditFunc, logger *zap.Logger) *Presenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presenter{fmt: f, rules: rules, send: send, edit: edit, logger: logger}
}

var _ auction.Notifier = (*Presenter)(nil)

func (p *Presenter) AuctionStarting(lotCount int) {
	p.deliver(p.fmt.AuctionStarting(lotCount), nil)
}

func (p *Presenter) LotOpened(lot auction.LotView) {
	p.resetTickMessage()
	p.deliver(p.fmt.LotOpened(lot), BidButtons(lot, p.rules.BidSteps))
}

func (p *Presenter) BidAccepted(lot auction.LotView) {
	p.resetTickMessage()
	p.deliver(p.fmt.BidAccepted(lot), BidButtons(lot, p.rules.BidSteps))
}

// Tick edits a single countdown message in place instead of flooding the
// room with one message per second.
func (p *Presenter) Tick(secondsRemaining int) {
	text := p.fmt.Tick(secondsRemaining)
	if strings.TrimSpace(text) == "" {
		return
	}

	p.mu.Lock()
	msgID := p.tickMsgID
	p.mu.Unlock()

	if msgID != 0 && p.edit != nil {
		if err := p.edit(msgID, text, nil); err == nil {
			return
		}
		// edit failed (message deleted, too old); fall through to a fresh send
	}
	if p.send == nil {
		return
	}
	id, err := p.send(text, nil)
	if err != nil {
		p.logger.Warn("presenter_send_error", zap.String("event", "tick"), zap.Error(err))
		return
	}
	p.mu.Lock()
	p.tickMsgID = id
	p.mu.Unlock()
}

func (p *Presenter) LotResolved(lotID int, outcome auction.Outcome, holderName string) {
	p.resetTickMessage()
	p.deliver(p.fmt.LotResolved(lotID, outcome, holderName), nil)
}

func (p *Presenter) AuctionFinished(report auction.FinalReport) {
	p.resetTickMessage()
	p.deliver(p.fmt.Report(ToDTOReport(&report)), nil)
}

func (p *Presenter) deliver(text string, buttons [][]auctiondto.Button) {
	if p == nil || p.send == nil || strings.TrimSpace(text) == "" {
		return
	}
	if _, err := p.send(text, buttons); err != nil {
		p.logger.Warn("presenter_send_error", zap.Error(err))
	}
}

func (p *Presenter) resetTickMessage() {
	p.mu.Lock()
	p.tickMsgID = 0
	p.mu.Unlock()
}
