package auction

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Session is one independent auction game bound to a chat room. All game
// state (ledger, catalog, queue, round context) is owned by a single event
// loop goroutine; public methods hand closures to that loop and wait for the
// reply, so bids, passes and timer events are strictly serialized.
type Session struct {
	id    string
	room  string
	rules Rules

	clock    clockwork.Clock
	rng      *rand.Rand
	logger   *zap.Logger
	notifier Notifier
	store    *Store
	repo     *Repository

	events chan request
	outbox chan func(Notifier)
	done   chan struct{}
	once   sync.Once

	// owned by the run loop
	phase     Phase
	ledger    *Ledger
	catalog   *Catalog
	queue     *Queue
	round     *roundContext
	gen       uint64
	report    *FinalReport
	startedAt time.Time
	createdAt time.Time
}

// roundContext is the transient state of the lot on the floor. It exists only
// between pop and resolution.
type roundContext struct {
	lot      *Lot
	eligible map[string]struct{}
	price    int
	leader   string
	passed   map[string]struct{}
}

type request struct {
	fn    func() error
	reply chan error
}

// Deps carries the session's collaborators. Zero values get safe defaults, so
// a bare Deps{} yields a fully offline session.
type Deps struct {
	Clock    clockwork.Clock
	Rand     *rand.Rand
	Notifier Notifier
	Store    *Store
	Repo     *Repository
	Logger   *zap.Logger
}

func NewSession(room string, rules Rules, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	rules = rules.normalized()
	s := &Session{
		id:        uuid.NewString(),
		room:      room,
		rules:     rules,
		clock:     deps.Clock,
		rng:       deps.Rand,
		logger:    deps.Logger,
		notifier:  deps.Notifier,
		store:     deps.Store,
		repo:      deps.Repo,
		events:    make(chan request, 64),
		outbox:    make(chan func(Notifier), 256),
		done:      make(chan struct{}),
		phase:     PhaseIdle,
		createdAt: deps.Clock.Now(),
	}
	s.ledger = NewLedger(rules)
	s.catalog = NewCatalog(rules, s.rng)
	go s.run()
	go s.dispatch()
	return s
}

func (s *Session) ID() string   { return s.id }
func (s *Session) Room() string { return s.room }

// Close stops the event loop and supersedes any live countdown. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.events:
			err := req.fn()
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

func (s *Session) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.outbox:
			fn(s.notifier)
		}
	}
}

// call runs fn on the event loop and waits for its result.
func (s *Session) call(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case s.events <- request{fn: fn, reply: reply}:
	case <-s.done:
		return ErrGameFinished
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrGameFinished
	}
}

// post enqueues fn without waiting; used by timer goroutines.
func (s *Session) post(fn func() error) {
	select {
	case s.events <- request{fn: fn}:
	case <-s.done:
	}
}

// emit hands a notification to the dispatcher. A full outbox drops the event
// rather than stall the loop.
func (s *Session) emit(fn func(Notifier)) {
	select {
	case s.outbox <- fn:
	default:
		s.logger.Warn("auction_outbox_full", zap.String("game_id", s.id), zap.String("room", s.room))
	}
}

// Join registers the player (idempotent) and returns their status.
func (s *Session) Join(userID, name string) (PlayerStatus, error) {
	var st PlayerStatus
	err := s.call(func() error {
		if s.phase == PhaseFinished {
			return ErrGameFinished
		}
		p := s.ledger.Register(userID, name)
		st = s.statusOf(p)
		s.logger.Info("auction_join",
			zap.String("game_id", s.id),
			zap.String("room", s.room),
			zap.String("player_id", p.ID),
		)
		return nil
	})
	return st, err
}

// SubmitArtwork creates a lot for the player's artwork. Submissions are
// accepted only while the queue has not been built; once every player hits
// the cap the queue is shuffled and the first lot opens after the start
// delay.
func (s *Session) SubmitArtwork(userID, name, title, artworkRef string) (LotCreated, error) {
	var created LotCreated
	err := s.call(func() error {
		if s.phase == PhaseFinished {
			return ErrGameFinished
		}
		if s.phase != PhaseIdle || s.queue != nil {
			return ErrAuctionStarted
		}
		p := s.ledger.Register(userID, name)
		if err := s.ledger.CountArtwork(p.ID); err != nil {
			return err
		}
		lot := s.catalog.CreateLot(p.ID, title, artworkRef)
		created = LotCreated{LotID: lot.ID, StartPrice: lot.StartPrice}
		s.logger.Info("auction_lot_created",
			zap.String("game_id", s.id),
			zap.Int("lot_id", lot.ID),
			zap.String("author_id", p.ID),
			zap.Int("start_price", lot.StartPrice),
		)
		if s.ledger.AllAtCap() {
			s.scheduleStart()
		}
		s.persistSnapshot()
		return nil
	})
	return created, err
}

// GrantLoan credits the one-time loan and returns the new balance.
func (s *Session) GrantLoan(userID string) (int, error) {
	var balance int
	err := s.call(func() error {
		if s.phase == PhaseFinished {
			return ErrGameFinished
		}
		s.ledger.Register(userID, "")
		p, err := s.ledger.GrantLoan(userID)
		if err != nil {
			return err
		}
		balance = p.Money
		s.logger.Info("auction_loan",
			zap.String("game_id", s.id),
			zap.String("player_id", userID),
			zap.Int("balance", balance),
		)
		s.persistSnapshot()
		return nil
	})
	return balance, err
}

// Bid places a bid on the active lot. The amount is normalized down to the
// price step before any comparison; caller-computed totals are never trusted.
// lotID 0 means "whatever lot is on the floor".
func (s *Session) Bid(userID string, lotID, amount int) error {
	return s.call(func() error {
		if s.phase != PhaseOpen || s.round == nil {
			return ErrNoActiveLot
		}
		r := s.round
		if lotID != 0 && lotID != r.lot.ID {
			return ErrNoActiveLot
		}
		if _, ok := r.eligible[userID]; !ok {
			return ErrNotEligible
		}
		p, ok := s.ledger.Get(userID)
		if !ok {
			return ErrNotEligible
		}
		normalized := roundDown(amount, s.rules.PriceStep)
		if p.Money < normalized {
			return ErrInsufficientFunds
		}
		if normalized <= r.price {
			return ErrBidTooLow
		}
		r.price = normalized
		r.leader = userID
		r.passed = make(map[string]struct{})
		s.gen++
		s.startCountdown(s.gen)
		s.logger.Info("auction_bid",
			zap.String("game_id", s.id),
			zap.Int("lot_id", r.lot.ID),
			zap.String("player_id", userID),
			zap.Int("price", r.price),
		)
		lv := s.lotView()
		s.emit(func(n Notifier) { n.BidAccepted(lv) })
		s.persistSnapshot()
		return nil
	})
}

// Pass records a pass for the active lot and applies the two soft-close
// conditions, in order: sale to the leader once everyone else passed, or
// return to the author once everyone passed with no bids at all.
func (s *Session) Pass(userID string, lotID int) error {
	return s.call(func() error {
		if s.phase != PhaseOpen || s.round == nil {
			return ErrNoActiveLot
		}
		r := s.round
		if lotID != 0 && lotID != r.lot.ID {
			return ErrNoActiveLot
		}
		if _, ok := r.eligible[userID]; !ok {
			return ErrNotEligible
		}
		r.passed[userID] = struct{}{}
		s.logger.Info("auction_pass",
			zap.String("game_id", s.id),
			zap.Int("lot_id", r.lot.ID),
			zap.String("player_id", userID),
			zap.Int("passed", len(r.passed)),
		)
		if r.leader != "" {
			others := 0
			allPassed := true
			for id := range r.eligible {
				if id == r.leader {
					continue
				}
				others++
				if _, ok := r.passed[id]; !ok {
					allPassed = false
				}
			}
			if others > 0 && allPassed {
				s.resolveRound(Outcome{Kind: OutcomeSold, HolderID: r.leader, Price: r.price, Reason: ReasonAllOthersPassed})
				return nil
			}
		}
		if r.leader == "" {
			allPassed := true
			for id := range r.eligible {
				if _, ok := r.passed[id]; !ok {
					allPassed = false
					break
				}
			}
			if allPassed {
				s.resolveRound(Outcome{Kind: OutcomeReturned, HolderID: r.lot.AuthorID, Price: 0, Reason: ReasonAllPassedNoBids})
			}
		}
		return nil
	})
}

// Status returns the player's balance, loan flag, submission count and the
// lots they hold.
func (s *Session) Status(userID string) (PlayerStatus, error) {
	var st PlayerStatus
	err := s.call(func() error {
		p, ok := s.ledger.Get(userID)
		if !ok {
			return ErrUnknownPlayer
		}
		st = s.statusOf(p)
		return nil
	})
	return st, err
}

// Phase reports the session's current state machine phase.
func (s *Session) Phase() Phase {
	phase := PhaseFinished
	_ = s.call(func() error {
		phase = s.phase
		return nil
	})
	return phase
}

// Report returns the settlement output once the queue is exhausted.
func (s *Session) Report() (FinalReport, bool) {
	var (
		report FinalReport
		ok     bool
	)
	_ = s.call(func() error {
		if s.report != nil {
			report = *s.report
			ok = true
		}
		return nil
	})
	return report, ok
}

// --- event-loop internals ---

func (s *Session) scheduleStart() {
	s.queue = BuildQueue(s.catalog.AllLots(), s.rng)
	s.startedAt = s.clock.Now()
	count := s.queue.Len()
	s.logger.Info("auction_start_scheduled",
		zap.String("game_id", s.id),
		zap.String("room", s.room),
		zap.Int("lots", count),
	)
	s.emit(func(n Notifier) { n.AuctionStarting(count) })
	go func() {
		select {
		case <-s.clock.After(s.rules.StartDelay):
			s.post(func() error {
				if s.phase != PhaseIdle || s.queue == nil {
					return nil
				}
				s.openNext()
				return nil
			})
		case <-s.done:
		}
	}()
}

// openNext pops lots until one opens for bidding or the queue empties. Lots
// with no eligible bidders go straight back to their author.
func (s *Session) openNext() {
	for {
		id, ok := s.queue.Pop()
		if !ok {
			s.finish()
			return
		}
		lot, found := s.catalog.Get(id)
		if !found || lot.Resolved() {
			s.fail(ErrAlreadyResolved)
			return
		}
		eligible := make(map[string]struct{})
		for _, p := range s.ledger.Players() {
			if p.ID != lot.AuthorID {
				eligible[p.ID] = struct{}{}
			}
		}
		if len(eligible) == 0 {
			out := Outcome{Kind: OutcomeReturned, HolderID: lot.AuthorID, Price: 0, Reason: ReasonNoEligibleBidders}
			if err := s.applyOutcome(lot, out); err != nil {
				s.fail(err)
				return
			}
			continue
		}
		s.round = &roundContext{
			lot:      lot,
			eligible: eligible,
			price:    lot.StartPrice,
			passed:   make(map[string]struct{}),
		}
		s.phase = PhaseOpen
		s.gen++
		s.startCountdown(s.gen)
		s.logger.Info("auction_lot_opened",
			zap.String("game_id", s.id),
			zap.Int("lot_id", lot.ID),
			zap.Int("start_price", lot.StartPrice),
			zap.Int("eligible", len(eligible)),
		)
		lv := s.lotView()
		s.emit(func(n Notifier) { n.LotOpened(lv) })
		s.persistSnapshot()
		return
	}
}

// startCountdown launches the round countdown under the given generation.
// Ticks and the final expiry are posted back into the event loop and dropped
// there when the generation moved on, so a bid accepted in the same instant
// as expiry always wins.
func (s *Session) startCountdown(gen uint64) {
	ticks := s.rules.CountdownTicks
	go func() {
		remaining := ticks
		for remaining > 0 {
			select {
			case <-s.clock.After(s.rules.TickInterval):
			case <-s.done:
				return
			}
			remaining--
			rem := remaining
			s.post(func() error {
				s.onTick(gen, rem)
				return nil
			})
			if remaining == 0 {
				s.post(func() error {
					s.onExpire(gen)
					return nil
				})
			}
		}
	}()
}

func (s *Session) onTick(gen uint64, remaining int) {
	if gen != s.gen || s.phase != PhaseOpen || s.round == nil {
		return
	}
	s.emit(func(n Notifier) { n.Tick(remaining) })
}

func (s *Session) onExpire(gen uint64) {
	if gen != s.gen || s.phase != PhaseOpen || s.round == nil {
		return
	}
	r := s.round
	if r.leader != "" {
		s.resolveRound(Outcome{Kind: OutcomeSold, HolderID: r.leader, Price: r.price, Reason: ReasonTimeExpired})
		return
	}
	s.resolveRound(Outcome{Kind: OutcomeReturned, HolderID: r.lot.AuthorID, Price: 0, Reason: ReasonTimeExpiredNoBids})
}

func (s *Session) resolveRound(out Outcome) {
	s.phase = PhaseResolving
	s.gen++ // supersede the live countdown
	lot := s.round.lot
	s.round = nil
	if err := s.applyOutcome(lot, out); err != nil {
		s.fail(err)
		return
	}
	s.openNext()
}

func (s *Session) applyOutcome(lot *Lot, out Outcome) error {
	if err := s.catalog.Resolve(lot.ID, out); err != nil {
		return err
	}
	if out.Kind == OutcomeSold {
		if err := s.ledger.Debit(out.HolderID, out.Price); err != nil {
			return err
		}
	}
	holder := out.HolderID
	if p, ok := s.ledger.Get(out.HolderID); ok {
		holder = p.Name
	}
	s.logger.Info("auction_lot_resolved",
		zap.String("game_id", s.id),
		zap.Int("lot_id", lot.ID),
		zap.String("kind", string(out.Kind)),
		zap.String("holder_id", out.HolderID),
		zap.Int("price", out.Price),
		zap.String("reason", string(out.Reason)),
	)
	s.emit(func(n Notifier) { n.LotResolved(lot.ID, out, holder) })
	return nil
}

func (s *Session) finish() {
	s.phase = PhaseFinished
	report := buildReport(s.id, s.room, s.ledger, s.catalog, s.rules, s.startedAt, s.clock.Now())
	s.report = &report
	s.logger.Info("auction_finished",
		zap.String("game_id", s.id),
		zap.String("room", s.room),
		zap.Int("lots", len(report.Lots)),
		zap.Int("players", len(report.Standings)),
	)
	s.emit(func(n Notifier) { n.AuctionFinished(report) })
	if s.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.repo.SaveResult(ctx, &report); err != nil {
				s.logger.Error("auction_result_persist_error", zap.String("game_id", s.id), zap.Error(err))
			}
		}()
	}
	if s.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := s.store.Remove(ctx, s.id); err != nil {
				s.logger.Warn("auction_snapshot_remove_error", zap.String("game_id", s.id), zap.Error(err))
			}
		}()
	}
}

// fail aborts the session on an internal invariant violation. These indicate
// a serialization bug and are never recovered.
func (s *Session) fail(err error) {
	s.logger.Error("auction_invariant_violation",
		zap.String("game_id", s.id),
		zap.String("room", s.room),
		zap.Error(err),
	)
	s.phase = PhaseFinished
	s.Close()
}

func (s *Session) lotView() LotView {
	r := s.round
	lv := LotView{
		LotID:      r.lot.ID,
		ArtworkRef: r.lot.ArtworkRef,
		StartPrice: r.lot.StartPrice,
		Price:      r.price,
	}
	if r.leader != "" {
		if p, ok := s.ledger.Get(r.leader); ok {
			lv.LeaderName = p.Name
		}
	}
	return lv
}

func (s *Session) statusOf(p *Player) PlayerStatus {
	st := PlayerStatus{
		ID:      p.ID,
		Name:    p.Name,
		Money:   p.Money,
		Loan:    p.Loan,
		ArtsCnt: p.ArtsCnt,
		ArtCap:  s.rules.ArtworkCap,
	}
	for _, lot := range s.catalog.AllLots() {
		if lot.Resolved() && lot.Outcome.HolderID == p.ID {
			st.OwnedLots = append(st.OwnedLots, lot.ID)
		}
	}
	return st
}

// persistSnapshot pushes the current state to the snapshot store,
// best-effort. Called from the event loop; the write itself runs detached.
func (s *Session) persistSnapshot() {
	if s.store == nil {
		return
	}
	snap := &Snapshot{
		GameID:    s.id,
		Room:      s.room,
		Phase:     s.phase,
		UpdatedAt: s.clock.Now(),
	}
	if s.round != nil {
		snap.LotID = s.round.lot.ID
		snap.Price = s.round.price
		snap.LeaderID = s.round.leader
	}
	for _, p := range s.ledger.Players() {
		snap.Players = append(snap.Players, SnapshotPlayer{
			ID:      p.ID,
			Name:    p.Name,
			Money:   p.Money,
			Loan:    p.Loan,
			ArtsCnt: p.ArtsCnt,
		})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			s.logger.Warn("auction_snapshot_error", zap.String("game_id", s.id), zap.Error(err))
		}
	}()
}

// normalized fills zero-valued rule fields from the defaults.
func (r Rules) normalized() Rules {
	def := DefaultRules()
	if r.StartingBalance <= 0 {
		r.StartingBalance = def.StartingBalance
	}
	if r.LoanBonus <= 0 {
		r.LoanBonus = def.LoanBonus
	}
	if r.LoanPayback <= 0 {
		r.LoanPayback = def.LoanPayback
	}
	if r.ArtworkCap <= 0 {
		r.ArtworkCap = def.ArtworkCap
	}
	if r.RealValueMin <= 0 {
		r.RealValueMin = def.RealValueMin
	}
	if r.RealValueMax <= r.RealValueMin {
		r.RealValueMax = def.RealValueMax
	}
	if len(r.StartOffsets) == 0 {
		r.StartOffsets = def.StartOffsets
	}
	if r.PriceStep <= 0 {
		r.PriceStep = def.PriceStep
	}
	if r.CountdownTicks <= 0 {
		r.CountdownTicks = def.CountdownTicks
	}
	if r.TickInterval <= 0 {
		r.TickInterval = def.TickInterval
	}
	if r.StartDelay < 0 {
		r.StartDelay = def.StartDelay
	}
	if len(r.BidSteps) == 0 {
		r.BidSteps = def.BidSteps
	}
	return r
}
