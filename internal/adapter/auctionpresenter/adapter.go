package auctionpresenter

import (
	"fmt"

	"github.com/azatbro/art-auction-bot/internal/auction"
	"github.com/azatbro/art-auction-bot/pkg/auctiondto"
)

// ToDTOStatus converts the engine's player view for presentation.
func ToDTOStatus(s *auction.PlayerStatus) *auctiondto.PlayerStatus {
	if s == nil {
		return nil
	}
	return &auctiondto.PlayerStatus{
		Name:    s.Name,
		Money:   s.Money,
		Loan:    s.Loan,
		ArtsCnt: s.ArtsCnt,
		ArtCap:  s.ArtCap,
		Owned:   append([]int(nil), s.OwnedLots...),
	}
}

// ToDTOReport converts the settlement report for presentation.
func ToDTOReport(r *auction.FinalReport) *auctiondto.Report {
	if r == nil {
		return nil
	}
	out := &auctiondto.Report{
		GameID:    r.GameID,
		Room:      r.Room,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
	for _, lot := range r.Lots {
		out.Reveals = append(out.Reveals, auctiondto.LotReveal{
			LotID:      lot.LotID,
			Title:      lot.Title,
			AuthorName: lot.AuthorName,
			Sold:       lot.Outcome.Kind == auction.OutcomeSold,
			HolderName: lot.HolderName,
			Price:      lot.Outcome.Price,
			RealValue:  lot.RealValue,
		})
	}
	for _, st := range r.Standings {
		out.Standings = append(out.Standings, auctiondto.Standing{
			Rank:     st.Rank,
			Name:     st.Name,
			Capital:  st.Capital,
			Balance:  st.Balance,
			ArtValue: st.ArtValue,
			Loan:     st.Loan,
		})
	}
	return out
}

// BidButtons builds the inline actions for an open lot: one raise button per
// configured step plus a pass button. Callback data is "bid:<lot>:<amount>"
// and "pass:<lot>".
func BidButtons(lot auction.LotView, steps []int) [][]auctiondto.Button {
	var row []auctiondto.Button
	for _, step := range steps {
		amount := lot.Price + step
		row = append(row, auctiondto.Button{
			Text: fmt.Sprintf("+%d (%d)", step, amount),
			Data: fmt.Sprintf("bid:%d:%d", lot.LotID, amount),
		})
	}
	pass := []auctiondto.Button{{
		Text: "Pass 🚫",
		Data: fmt.Sprintf("pass:%d", lot.LotID),
	}}
	return [][]auctiondto.Button{row, pass}
}
