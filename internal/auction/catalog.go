package auction

import (
	"fmt"
	"math/rand"
)

// Catalog owns the lots. Like the ledger it is single-owner state driven by
// the session event loop.
type Catalog struct {
	rules Rules
	rng   *rand.Rand
	lots  []*Lot
}

func NewCatalog(rules Rules, rng *rand.Rand) *Catalog {
	return &Catalog{rules: rules, rng: rng}
}

// CreateLot mints the next lot with randomized pricing. The title defaults to
// a sequential one when the submission carried none.
func (c *Catalog) CreateLot(authorID, title, artworkRef string) *Lot {
	real, start := derivePricing(c.rng, c.rules)
	lot := &Lot{
		ID:         len(c.lots) + 1,
		AuthorID:   authorID,
		Title:      title,
		ArtworkRef: artworkRef,
		RealValue:  real,
		StartPrice: start,
	}
	if lot.Title == "" {
		lot.Title = fmt.Sprintf("Painting #%d", lot.ID)
	}
	c.lots = append(c.lots, lot)
	return lot
}

func (c *Catalog) Get(id int) (*Lot, bool) {
	if id < 1 || id > len(c.lots) {
		return nil, false
	}
	return c.lots[id-1], true
}

// Resolve writes the lot's outcome exactly once.
func (c *Catalog) Resolve(id int, out Outcome) error {
	lot, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("lot %d not found: %w", id, ErrNoActiveLot)
	}
	if lot.Resolved() {
		return fmt.Errorf("lot %d: %w", id, ErrAlreadyResolved)
	}
	if out.Price < 0 {
		return fmt.Errorf("lot %d: negative price %d", id, out.Price)
	}
	lot.Outcome = &out
	return nil
}

// AllLots returns every lot in creation order, resolved or not.
func (c *Catalog) AllLots() []*Lot {
	return append([]*Lot(nil), c.lots...)
}

func (c *Catalog) Len() int { return len(c.lots) }

// derivePricing draws the concealed real value and the visible start price.
// Both are multiples of the price step, real stays within [RealValueMin,
// RealValueMax] and start is clamped to RealValueMin..real-step so the
// strictness invariant holds even at the bottom of the range.
func derivePricing(rng *rand.Rand, rules Rules) (real, start int) {
	step := rules.PriceStep
	real = roundDown(rules.RealValueMin+rng.Intn(rules.RealValueMax-rules.RealValueMin+1), step)
	if real <= rules.RealValueMin {
		real = rules.RealValueMin + step
	}
	offset := rules.StartOffsets[rng.Intn(len(rules.StartOffsets))]
	start = real - offset
	if start < rules.RealValueMin {
		start = rules.RealValueMin
	}
	start = roundDown(start, step)
	if start >= real {
		start = real - step
	}
	return real, start
}
