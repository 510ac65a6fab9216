package auctiondto

// PlayerStatus is the per-player view behind /status.
type PlayerStatus struct {
	Name    string
	Money   int
	Loan    bool
	ArtsCnt int
	ArtCap  int
	Owned   []int
}
