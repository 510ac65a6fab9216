package auction

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type resolvedEvent struct {
	lotID   int
	outcome Outcome
	holder  string
}

// recNotifier records presentation events and exposes the interesting ones on
// channels so tests can wait for asynchronous delivery.
type recNotifier struct {
	mu       sync.Mutex
	starting []int
	ticks    []int

	openedCh   chan LotView
	bidCh      chan LotView
	resolvedCh chan resolvedEvent
	finishedCh chan FinalReport
}

func newRecNotifier() *recNotifier {
	return &recNotifier{
		openedCh:   make(chan LotView, 16),
		bidCh:      make(chan LotView, 16),
		resolvedCh: make(chan resolvedEvent, 16),
		finishedCh: make(chan FinalReport, 1),
	}
}

func (r *recNotifier) AuctionStarting(n int) {
	r.mu.Lock()
	r.starting = append(r.starting, n)
	r.mu.Unlock()
}

func (r *recNotifier) LotOpened(lv LotView)   { r.openedCh <- lv }
func (r *recNotifier) BidAccepted(lv LotView) { r.bidCh <- lv }

func (r *recNotifier) Tick(sec int) {
	r.mu.Lock()
	r.ticks = append(r.ticks, sec)
	r.mu.Unlock()
}

func (r *recNotifier) LotResolved(lotID int, out Outcome, holder string) {
	r.resolvedCh <- resolvedEvent{lotID: lotID, outcome: out, holder: holder}
}

func (r *recNotifier) AuctionFinished(rep FinalReport) { r.finishedCh <- rep }

func testRules(artworkCap int) Rules {
	return Rules{
		StartingBalance: 3000,
		LoanBonus:       1000,
		LoanPayback:     1500,
		ArtworkCap:      artworkCap,
		RealValueMin:    100,
		RealValueMax:    300,
		StartOffsets:    []int{100},
		PriceStep:       10,
		CountdownTicks:  3,
		TickInterval:    time.Second,
		StartDelay:      time.Second,
		BidSteps:        []int{100, 200, 300},
	}
}

func newTestSession(t *testing.T, rules Rules, rec *recNotifier, clk *clockwork.FakeClock) *Session {
	t.Helper()
	s := NewSession("room-1", rules, Deps{
		Clock:    clk,
		Rand:     rand.New(rand.NewSource(42)),
		Notifier: rec,
		Logger:   zap.NewNop(),
	})
	t.Cleanup(s.Close)
	return s
}

func waitOpened(t *testing.T, rec *recNotifier) LotView {
	t.Helper()
	select {
	case lv := <-rec.openedCh:
		return lv
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for lot to open")
		return LotView{}
	}
}

func waitBid(t *testing.T, rec *recNotifier) LotView {
	t.Helper()
	select {
	case lv := <-rec.bidCh:
		return lv
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for bid event")
		return LotView{}
	}
}

func waitResolved(t *testing.T, rec *recNotifier) resolvedEvent {
	t.Helper()
	select {
	case ev := <-rec.resolvedCh:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for resolution")
		return resolvedEvent{}
	}
}

func waitFinished(t *testing.T, rec *recNotifier) FinalReport {
	t.Helper()
	select {
	case rep := <-rec.finishedCh:
		return rep
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for the final report")
		return FinalReport{}
	}
}

// advance waits for the expected number of clock sleepers, then moves time.
func advance(t *testing.T, clk *clockwork.FakeClock, sleepers int, d time.Duration) {
	t.Helper()
	clk.BlockUntil(sleepers)
	clk.Advance(d)
}

func TestQueueRunsEveryLotExactlyOnce(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	rules := testRules(2)
	s := newTestSession(t, rules, rec, clk)

	players := []struct{ id, name string }{{"u1", "alice"}, {"u2", "bob"}}
	for _, p := range players {
		if _, err := s.Join(p.id, p.name); err != nil {
			t.Fatalf("Join(%s): %v", p.id, err)
		}
	}
	for i := 0; i < 2; i++ {
		for _, p := range players {
			if _, err := s.SubmitArtwork(p.id, p.name, "", "ref-"+p.id); err != nil {
				t.Fatalf("SubmitArtwork(%s): %v", p.id, err)
			}
		}
	}

	// start delay, then nobody bids: each lot burns its full countdown
	advance(t, clk, 1, rules.StartDelay)

	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		lv := waitOpened(t, rec)
		if seen[lv.LotID] {
			t.Fatalf("lot %d opened twice", lv.LotID)
		}
		seen[lv.LotID] = true
		if lv.Price != lv.StartPrice {
			t.Fatalf("fresh lot %d: price %d != start price %d", lv.LotID, lv.Price, lv.StartPrice)
		}
		for tick := 0; tick < rules.CountdownTicks; tick++ {
			advance(t, clk, 1, rules.TickInterval)
		}
		ev := waitResolved(t, rec)
		if ev.lotID != lv.LotID {
			t.Fatalf("resolved lot %d while %d was on the floor", ev.lotID, lv.LotID)
		}
		if ev.outcome.Kind != OutcomeReturned || ev.outcome.Reason != ReasonTimeExpiredNoBids {
			t.Fatalf("lot %d: got %s/%q, want returned on expiry with no bids", ev.lotID, ev.outcome.Kind, ev.outcome.Reason)
		}
	}

	rep := waitFinished(t, rec)
	if len(rep.Lots) != 4 {
		t.Fatalf("final report has %d lots, want 4", len(rep.Lots))
	}
	if len(rep.Standings) != 2 {
		t.Fatalf("final report has %d standings, want 2", len(rep.Standings))
	}
	for _, st := range rep.Standings {
		if st.Balance != rules.StartingBalance {
			t.Fatalf("%s: balance %d changed without a sale", st.Name, st.Balance)
		}
		if st.ArtValue <= 0 {
			t.Fatalf("%s: returned lots must credit the author, got art value %d", st.Name, st.ArtValue)
		}
		if st.Capital != st.Balance+st.ArtValue {
			t.Fatalf("%s: capital %d != balance %d + art %d", st.Name, st.Capital, st.Balance, st.ArtValue)
		}
	}
	for _, lot := range rep.Lots {
		if lot.RealValue < rules.RealValueMin || lot.RealValue > rules.RealValueMax {
			t.Fatalf("lot %d: real value %d out of range", lot.LotID, lot.RealValue)
		}
		if lot.RealValue%rules.PriceStep != 0 {
			t.Fatalf("lot %d: real value %d not a step multiple", lot.LotID, lot.RealValue)
		}
	}

	rec.mu.Lock()
	starting := append([]int(nil), rec.starting...)
	rec.mu.Unlock()
	if len(starting) != 1 || starting[0] != 4 {
		t.Fatalf("starting announcements = %v, want one with 4 lots", starting)
	}
}

func TestBidThenAllOthersPassedSellsImmediately(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	s := newTestSession(t, testRules(1), rec, clk)

	ids := []string{"u1", "u2", "u3"}
	for _, id := range ids {
		if _, err := s.Join(id, "name-"+id); err != nil {
			t.Fatalf("Join(%s): %v", id, err)
		}
	}
	for _, id := range ids {
		if _, err := s.SubmitArtwork(id, "", "", "art-"+id); err != nil {
			t.Fatalf("SubmitArtwork(%s): %v", id, err)
		}
	}
	advance(t, clk, 1, time.Second)

	lv := waitOpened(t, rec)
	author := lv.ArtworkRef[len("art-"):]
	var eligible []string
	for _, id := range ids {
		if id != author {
			eligible = append(eligible, id)
		}
	}
	bidder, passer := eligible[0], eligible[1]

	// 105 over the price normalizes down to a clean +100
	if err := s.Bid(bidder, lv.LotID, lv.Price+105); err != nil {
		t.Fatalf("Bid: %v", err)
	}
	bid := waitBid(t, rec)
	if bid.Price != lv.Price+100 {
		t.Fatalf("bid price %d, want %d after normalization", bid.Price, lv.Price+100)
	}
	if bid.LeaderName != "name-"+bidder {
		t.Fatalf("leader %q, want %q", bid.LeaderName, "name-"+bidder)
	}

	if err := s.Pass(passer, lv.LotID); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	ev := waitResolved(t, rec)
	if ev.outcome.Kind != OutcomeSold || ev.outcome.Reason != ReasonAllOthersPassed {
		t.Fatalf("got %s/%q, want immediate sale once all others passed", ev.outcome.Kind, ev.outcome.Reason)
	}
	if ev.outcome.HolderID != bidder || ev.outcome.Price != lv.Price+100 {
		t.Fatalf("sold to %s at %d, want %s at %d", ev.outcome.HolderID, ev.outcome.Price, bidder, lv.Price+100)
	}

	st, err := s.Status(bidder)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Money != 3000-(lv.Price+100) {
		t.Fatalf("buyer balance %d, want %d", st.Money, 3000-(lv.Price+100))
	}
	if len(st.OwnedLots) != 1 || st.OwnedLots[0] != lv.LotID {
		t.Fatalf("buyer owns %v, want [%d]", st.OwnedLots, lv.LotID)
	}
}

func TestAllPassedWithNoBidsReturnsLot(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	s := newTestSession(t, testRules(1), rec, clk)

	for _, id := range []string{"u1", "u2"} {
		if _, err := s.Join(id, id); err != nil {
			t.Fatalf("Join: %v", err)
		}
		if _, err := s.SubmitArtwork(id, "", "", "art-"+id); err != nil {
			t.Fatalf("SubmitArtwork: %v", err)
		}
	}
	advance(t, clk, 1, time.Second)

	lv := waitOpened(t, rec)
	author := lv.ArtworkRef[len("art-"):]
	other := "u1"
	if author == "u1" {
		other = "u2"
	}

	if err := s.Pass(other, lv.LotID); err != nil {
		t.Fatalf("Pass: %v", err)
	}
	ev := waitResolved(t, rec)
	if ev.outcome.Kind != OutcomeReturned || ev.outcome.Reason != ReasonAllPassedNoBids {
		t.Fatalf("got %s/%q, want return once everyone passed with no bids", ev.outcome.Kind, ev.outcome.Reason)
	}
	if ev.outcome.HolderID != author || ev.outcome.Price != 0 {
		t.Fatalf("returned to %s at %d, want author %s at 0", ev.outcome.HolderID, ev.outcome.Price, author)
	}
}

func TestBidResetsCountdown(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	rules := testRules(1)
	s := newTestSession(t, rules, rec, clk)

	for _, id := range []string{"u1", "u2"} {
		if _, err := s.Join(id, id); err != nil {
			t.Fatalf("Join: %v", err)
		}
		if _, err := s.SubmitArtwork(id, "", "", "art-"+id); err != nil {
			t.Fatalf("SubmitArtwork: %v", err)
		}
	}
	advance(t, clk, 1, rules.StartDelay)

	lv := waitOpened(t, rec)
	author := lv.ArtworkRef[len("art-"):]
	bidder := "u1"
	if author == "u1" {
		bidder = "u2"
	}

	// burn 2 of the 3 ticks, then bid: the countdown must restart in full
	advance(t, clk, 1, rules.TickInterval)
	advance(t, clk, 1, rules.TickInterval)
	if err := s.Bid(bidder, lv.LotID, lv.Price+100); err != nil {
		t.Fatalf("Bid: %v", err)
	}
	waitBid(t, rec)

	// the superseded countdown is still sleeping alongside the fresh one
	advance(t, clk, 2, rules.TickInterval)
	if got := s.Phase(); got != PhaseOpen {
		t.Fatalf("phase %s after stale expiry, want still open", got)
	}
	advance(t, clk, 1, rules.TickInterval)
	if got := s.Phase(); got != PhaseOpen {
		t.Fatalf("phase %s with one tick left, want still open", got)
	}
	advance(t, clk, 1, rules.TickInterval)

	ev := waitResolved(t, rec)
	if ev.outcome.Kind != OutcomeSold || ev.outcome.Reason != ReasonTimeExpired {
		t.Fatalf("got %s/%q, want sale on expiry with a standing bid", ev.outcome.Kind, ev.outcome.Reason)
	}
	if ev.outcome.HolderID != bidder {
		t.Fatalf("sold to %s, want %s", ev.outcome.HolderID, bidder)
	}

	// only one resolution may ever land for a lot
	select {
	case extra := <-rec.resolvedCh:
		if extra.lotID == ev.lotID {
			t.Fatalf("lot %d resolved twice", ev.lotID)
		}
	default:
	}
}

func TestBidAndPassValidation(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	s := newTestSession(t, testRules(1), rec, clk)

	if err := s.Bid("u1", 0, 500); !errors.Is(err, ErrNoActiveLot) {
		t.Fatalf("bid before start: %v, want ErrNoActiveLot", err)
	}
	if _, err := s.Status("ghost"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("status of unknown player: %v, want ErrUnknownPlayer", err)
	}

	for _, id := range []string{"u1", "u2"} {
		if _, err := s.Join(id, id); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}
	if _, err := s.SubmitArtwork("u1", "", "sunset", "art-u1"); err != nil {
		t.Fatalf("SubmitArtwork: %v", err)
	}
	if _, err := s.SubmitArtwork("u1", "", "", "art-u1-extra"); !errors.Is(err, ErrArtworkLimit) {
		t.Fatalf("submit over the cap: %v, want ErrArtworkLimit", err)
	}

	if balance, err := s.GrantLoan("u2"); err != nil || balance != 4000 {
		t.Fatalf("GrantLoan: balance=%d err=%v, want 4000", balance, err)
	}
	if _, err := s.GrantLoan("u2"); !errors.Is(err, ErrDuplicateLoan) {
		t.Fatalf("second loan: %v, want ErrDuplicateLoan", err)
	}

	if _, err := s.SubmitArtwork("u2", "", "", "art-u2"); err != nil {
		t.Fatalf("SubmitArtwork: %v", err)
	}
	if _, err := s.SubmitArtwork("u2", "", "", "late"); !errors.Is(err, ErrAuctionStarted) {
		t.Fatalf("submit after queue build: %v, want ErrAuctionStarted", err)
	}

	advance(t, clk, 1, time.Second)
	lv := waitOpened(t, rec)
	author := lv.ArtworkRef[len("art-"):]
	bidder := "u1"
	if author == "u1" {
		bidder = "u2"
	}

	if err := s.Bid(author, lv.LotID, lv.Price+100); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("author bidding own lot: %v, want ErrNotEligible", err)
	}
	if err := s.Bid("ghost", lv.LotID, lv.Price+100); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("stranger bidding: %v, want ErrNotEligible", err)
	}
	if err := s.Bid(bidder, lv.LotID, lv.Price); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("bid at current price: %v, want ErrBidTooLow", err)
	}
	if err := s.Bid(bidder, lv.LotID, lv.Price+5); !errors.Is(err, ErrBidTooLow) {
		t.Fatalf("bid that normalizes to current price: %v, want ErrBidTooLow", err)
	}
	if err := s.Bid(bidder, lv.LotID, 9000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("bid over the balance: %v, want ErrInsufficientFunds", err)
	}
	if err := s.Bid(bidder, 99, lv.Price+100); !errors.Is(err, ErrNoActiveLot) {
		t.Fatalf("bid on a closed lot id: %v, want ErrNoActiveLot", err)
	}
	if err := s.Pass(author, lv.LotID); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("author passing own lot: %v, want ErrNotEligible", err)
	}

	// none of the rejections may have moved the price
	if err := s.Bid(bidder, lv.LotID, lv.Price+10); err != nil {
		t.Fatalf("minimal raise after rejections: %v", err)
	}
	bid := waitBid(t, rec)
	if bid.Price != lv.Price+10 {
		t.Fatalf("price %d after rejections, want %d", bid.Price, lv.Price+10)
	}
}

func TestLotWithoutEligibleBiddersReturnsInstantly(t *testing.T) {
	rec := newRecNotifier()
	clk := clockwork.NewFakeClock()
	rules := testRules(1)
	s := newTestSession(t, rules, rec, clk)

	if _, err := s.Join("solo", "solo"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := s.SubmitArtwork("solo", "", "self portrait", "art-solo"); err != nil {
		t.Fatalf("SubmitArtwork: %v", err)
	}
	advance(t, clk, 1, rules.StartDelay)

	ev := waitResolved(t, rec)
	if ev.outcome.Kind != OutcomeReturned || ev.outcome.Reason != ReasonNoEligibleBidders {
		t.Fatalf("got %s/%q, want instant return with no eligible bidders", ev.outcome.Kind, ev.outcome.Reason)
	}
	if ev.outcome.HolderID != "solo" {
		t.Fatalf("holder %s, want the author", ev.outcome.HolderID)
	}

	rep := waitFinished(t, rec)
	if len(rep.Standings) != 1 {
		t.Fatalf("standings %d, want 1", len(rep.Standings))
	}
	st := rep.Standings[0]
	if st.Rank != 1 || st.Balance != rules.StartingBalance {
		t.Fatalf("standing %+v, want rank 1 with untouched balance", st)
	}
	if st.Capital != st.Balance+rep.Lots[0].RealValue {
		t.Fatalf("capital %d, want balance plus the returned lot's real value %d", st.Capital, rep.Lots[0].RealValue)
	}

	if _, err := s.Join("late", "late"); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("join after finish: %v, want ErrGameFinished", err)
	}
	if _, ok := s.Report(); !ok {
		t.Fatalf("report missing after finish")
	}
}
