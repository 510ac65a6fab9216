package auction

import (
	"math/rand"
	"testing"
)

func TestBuildQueueSkipsResolvedLots(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	c := NewCatalog(DefaultRules(), rng)
	for i := 0; i < 5; i++ {
		c.CreateLot("a", "", "")
	}
	if err := c.Resolve(2, Outcome{Kind: OutcomeReturned, HolderID: "a", Reason: ReasonAllPassedNoBids}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	q := BuildQueue(c.AllLots(), rng)
	if q.Len() != 4 {
		t.Fatalf("queue length %d, want 4", q.Len())
	}

	seen := make(map[int]bool)
	for {
		id, ok := q.Pop()
		if !ok {
			break
		}
		if id == 2 {
			t.Fatalf("resolved lot entered the queue")
		}
		if seen[id] {
			t.Fatalf("lot %d queued twice", id)
		}
		seen[id] = true
	}
	if len(seen) != 4 {
		t.Fatalf("popped %d lots, want 4", len(seen))
	}
}

func TestQueuePendingMatchesPopOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	c := NewCatalog(DefaultRules(), rng)
	for i := 0; i < 6; i++ {
		c.CreateLot("a", "", "")
	}
	q := BuildQueue(c.AllLots(), rng)

	pending := q.Pending()
	for i, want := range pending {
		id, ok := q.Pop()
		if !ok || id != want {
			t.Fatalf("pop %d = %d, want %d", i, id, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("pop succeeded on an empty queue")
	}
}
