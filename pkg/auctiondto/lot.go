package auctiondto

// Button is one inline-keyboard action attached to a lot card.
type Button struct {
	Text string
	Data string
}

// LotCard is the presentation view of the lot currently under the hammer.
type LotCard struct {
	LotID      int
	Title      string
	StartPrice int
	Price      int
	LeaderName string
	Buttons    [][]Button
}

// LotResult is the announcement after a lot resolves.
type LotResult struct {
	LotID      int
	Title      string
	Sold       bool
	HolderName string
	Price      int
	Reason     string
}
