package auction

import (
	"errors"
	"testing"
)

func TestRegisterIsIdempotent(t *testing.T) {
	l := NewLedger(DefaultRules())
	p1 := l.Register("u1", "alice")
	if p1.Money != 3000 {
		t.Fatalf("starting balance %d", p1.Money)
	}
	p1.Money = 1234

	p2 := l.Register("u1", "alice renamed")
	if p2 != p1 {
		t.Fatalf("re-register returned a new player")
	}
	if p2.Money != 1234 {
		t.Fatalf("re-register reset the balance to %d", p2.Money)
	}
	if p2.Name != "alice renamed" {
		t.Fatalf("re-register did not refresh the name: %q", p2.Name)
	}

	anon := l.Register("u2", "")
	if anon.Name != "u2" {
		t.Fatalf("empty name should fall back to the id, got %q", anon.Name)
	}
}

func TestGrantLoanOnce(t *testing.T) {
	l := NewLedger(DefaultRules())
	l.Register("u1", "alice")

	p, err := l.GrantLoan("u1")
	if err != nil {
		t.Fatalf("GrantLoan: %v", err)
	}
	if p.Money != 4000 || !p.Loan {
		t.Fatalf("after loan: money=%d loan=%v", p.Money, p.Loan)
	}
	if _, err := l.GrantLoan("u1"); !errors.Is(err, ErrDuplicateLoan) {
		t.Fatalf("second loan: %v, want ErrDuplicateLoan", err)
	}
	if _, err := l.GrantLoan("ghost"); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("loan for unknown: %v, want ErrUnknownPlayer", err)
	}
}

func TestDebitGuardsBalance(t *testing.T) {
	l := NewLedger(DefaultRules())
	l.Register("u1", "alice")

	if err := l.Debit("u1", 3000); err != nil {
		t.Fatalf("Debit to zero: %v", err)
	}
	if err := l.Debit("u1", 1); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraft: %v, want ErrInsufficientFunds", err)
	}
	if err := l.Debit("u1", -5); err == nil {
		t.Fatalf("negative debit accepted")
	}
}

func TestCountArtworkAndAllAtCap(t *testing.T) {
	rules := DefaultRules()
	rules.ArtworkCap = 2
	l := NewLedger(rules)

	if l.AllAtCap() {
		t.Fatalf("empty ledger reported ready")
	}
	l.Register("u1", "")
	l.Register("u2", "")

	for i := 0; i < 2; i++ {
		if err := l.CountArtwork("u1"); err != nil {
			t.Fatalf("CountArtwork u1: %v", err)
		}
	}
	if err := l.CountArtwork("u1"); !errors.Is(err, ErrArtworkLimit) {
		t.Fatalf("over the cap: %v, want ErrArtworkLimit", err)
	}
	if l.AllAtCap() {
		t.Fatalf("ready reported while u2 has no submissions")
	}

	l.CountArtwork("u2")
	l.CountArtwork("u2")
	if !l.AllAtCap() {
		t.Fatalf("not ready with every player at the cap")
	}
}

func TestPlayersKeepRegistrationOrder(t *testing.T) {
	l := NewLedger(DefaultRules())
	for _, id := range []string{"c", "a", "b"} {
		l.Register(id, id)
	}
	got := l.Players()
	want := []string{"c", "a", "b"}
	for i, p := range got {
		if p.ID != want[i] {
			t.Fatalf("players[%d] = %s, want %s", i, p.ID, want[i])
		}
	}
}
