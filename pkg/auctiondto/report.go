package auctiondto

import "time"

// Standing is one row of the final scoreboard.
type Standing struct {
	Rank     int
	Name     string
	Capital  int
	Balance  int
	ArtValue int
	Loan     bool
}

// LotReveal discloses a lot's concealed real value at the finale.
type LotReveal struct {
	LotID      int
	Title      string
	AuthorName string
	Sold       bool
	HolderName string
	Price      int
	RealValue  int
}

// Report is the full settlement summary for a finished game.
type Report struct {
	GameID    string
	Room      string
	Reveals   []LotReveal
	Standings []Standing
	StartedAt time.Time
	EndedAt   time.Time
}
