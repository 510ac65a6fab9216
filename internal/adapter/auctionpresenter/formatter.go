package auctionpresenter

import (
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/azatbro/art-auction-bot/internal/auction"
	"github.com/azatbro/art-auction-bot/internal/msgcat"
	"github.com/azatbro/art-auction-bot/pkg/auctiondto"
)

// Formatter renders auction DTOs into chat text via the message catalog.
type Formatter struct {
	cat    *msgcat.Catalog
	rules  auction.Rules
	logger *zap.Logger
}

func NewFormatter(cat *msgcat.Catalog, rules auction.Rules, logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{cat: cat, rules: rules, logger: logger}
}

func (f *Formatter) render(key string, data any) string {
	text, err := f.cat.Render(key, data)
	if err != nil {
		f.logger.Error("msgcat_render_error", zap.String("key", key), zap.Error(err))
		return ""
	}
	return text
}

func (f *Formatter) Help() string {
	return f.render("help", map[string]any{
		"LoanBonus":   f.rules.LoanBonus,
		"LoanPayback": f.rules.LoanPayback,
	})
}

func (f *Formatter) Joined(name string, money int) string {
	return f.render("joined", map[string]any{"Name": name, "Money": money})
}

func (f *Formatter) Status(s *auctiondto.PlayerStatus) string {
	if s == nil {
		return ""
	}
	return f.render("status", map[string]any{
		"Name":    s.Name,
		"Money":   s.Money,
		"Loan":    s.Loan,
		"ArtsCnt": s.ArtsCnt,
		"ArtCap":  s.ArtCap,
		"Owned":   formatLotIDs(s.Owned),
	})
}

func (f *Formatter) LoanGranted(money int) string {
	return f.render("loan.granted", map[string]any{
		"Bonus":   f.rules.LoanBonus,
		"Payback": f.rules.LoanPayback,
		"Money":   money,
	})
}

func (f *Formatter) SubmitAccepted(created auction.LotCreated) string {
	return f.render("submit.accepted", map[string]any{
		"LotID":      created.LotID,
		"StartPrice": created.StartPrice,
	})
}

func (f *Formatter) AuctionStarting(lotCount int) string {
	return f.render("auction.starting", map[string]any{"Lots": lotCount})
}

func (f *Formatter) LotOpened(lot auction.LotView) string {
	return f.render("lot.opened", map[string]any{
		"LotID":      lot.LotID,
		"StartPrice": lot.StartPrice,
	})
}

func (f *Formatter) BidAccepted(lot auction.LotView) string {
	return f.render("lot.bid_accepted", map[string]any{
		"LotID":      lot.LotID,
		"Price":      lot.Price,
		"LeaderName": lot.LeaderName,
	})
}

func (f *Formatter) Tick(seconds int) string {
	return f.render("tick", map[string]any{"Seconds": seconds})
}

func (f *Formatter) LotResolved(lotID int, outcome auction.Outcome, holderName string) string {
	if outcome.Kind == auction.OutcomeSold {
		return f.render("lot.sold", map[string]any{
			"LotID":      lotID,
			"HolderName": holderName,
			"Price":      outcome.Price,
			"Reason":     string(outcome.Reason),
		})
	}
	return f.render("lot.returned", map[string]any{
		"LotID":  lotID,
		"Reason": string(outcome.Reason),
	})
}

// Report renders the full settlement announcement: header, per-lot reveals,
// then the standings table.
func (f *Formatter) Report(r *auctiondto.Report) string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(f.render("results.header", nil))
	for _, lot := range r.Reveals {
		sb.WriteString("\n")
		key := "results.lot_returned"
		if lot.Sold {
			key = "results.lot_sold"
		}
		sb.WriteString(f.render(key, map[string]any{
			"LotID":      lot.LotID,
			"Title":      lot.Title,
			"AuthorName": lot.AuthorName,
			"HolderName": lot.HolderName,
			"Price":      lot.Price,
			"RealValue":  lot.RealValue,
		}))
	}
	sb.WriteString("\n\n")
	sb.WriteString(f.render("results.standings_header", nil))
	for _, st := range r.Standings {
		sb.WriteString("\n")
		sb.WriteString(f.render("results.standing", map[string]any{
			"Rank":     st.Rank,
			"Name":     st.Name,
			"Capital":  st.Capital,
			"Balance":  st.Balance,
			"ArtValue": st.ArtValue,
			"Loan":     st.Loan,
		}))
	}
	return sb.String()
}

func (f *Formatter) RestartDone() string {
	return f.render("restart.done", nil)
}

func (f *Formatter) LoanDuplicate() string {
	return f.render("loan.duplicate", nil)
}

func (f *Formatter) SubmitLimit() string {
	return f.render("submit.limit", nil)
}

func (f *Formatter) SubmitAfterStart() string {
	return f.render("submit.started", nil)
}

func (f *Formatter) BidAck() string {
	return f.render("reject.bid_ack", nil)
}

func (f *Formatter) PassAck() string {
	return f.render("reject.pass_ack", nil)
}

// Reject maps an engine rejection to its user-facing text. Unknown errors get
// an empty string so callers can fall back to a generic reply.
func (f *Formatter) Reject(err error) string {
	switch {
	case errors.Is(err, auction.ErrBidTooLow):
		return f.render("reject.bid_low", nil)
	case errors.Is(err, auction.ErrInsufficientFunds):
		return f.render("reject.funds", nil)
	case errors.Is(err, auction.ErrNotEligible):
		return f.render("reject.not_eligible", nil)
	case errors.Is(err, auction.ErrNoActiveLot):
		return f.render("reject.no_lot", nil)
	case errors.Is(err, auction.ErrDuplicateLoan):
		return f.LoanDuplicate()
	case errors.Is(err, auction.ErrArtworkLimit):
		return f.SubmitLimit()
	case errors.Is(err, auction.ErrAuctionStarted):
		return f.SubmitAfterStart()
	default:
		return ""
	}
}

func formatLotIDs(ids []int) string {
	if len(ids) == 0 {
		return "—"
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, "#"+strconv.Itoa(id))
	}
	return strings.Join(parts, ", ")
}
