package auction

import (
	"sort"
	"time"
)

// buildReport computes the final standings and the full reveal once the queue
// is exhausted. Capital = balance + real value of held lots − loan payback.
// Returned lots count for their author: the painting stays theirs, so its
// real value does too.
func buildReport(gameID, room string, ledger *Ledger, catalog *Catalog, rules Rules, startedAt, endedAt time.Time) FinalReport {
	lots := catalog.AllLots()

	heldValue := make(map[string]int)
	for _, lot := range lots {
		if lot.Resolved() {
			heldValue[lot.Outcome.HolderID] += lot.RealValue
		}
	}

	players := ledger.Players()
	standings := make([]Standing, 0, len(players))
	for _, p := range players {
		capital := p.Money + heldValue[p.ID]
		if p.Loan {
			capital -= rules.LoanPayback
		}
		standings = append(standings, Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Capital:  capital,
			Balance:  p.Money,
			ArtValue: heldValue[p.ID],
			Loan:     p.Loan,
		})
	}
	// Ties keep registration order.
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Capital > standings[j].Capital
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}

	nameOf := func(id string) string {
		if p, ok := ledger.Get(id); ok {
			return p.Name
		}
		return id
	}

	reveal := make([]LotReveal, 0, len(lots))
	for _, lot := range lots {
		r := LotReveal{
			LotID:      lot.ID,
			Title:      lot.Title,
			AuthorName: nameOf(lot.AuthorID),
			RealValue:  lot.RealValue,
		}
		if lot.Resolved() {
			r.Outcome = *lot.Outcome
			r.HolderName = nameOf(lot.Outcome.HolderID)
			r.ReasonTag = lot.Outcome.Reason
		}
		reveal = append(reveal, r)
	}

	return FinalReport{
		GameID:    gameID,
		Room:      room,
		Standings: standings,
		Lots:      reveal,
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}
}
