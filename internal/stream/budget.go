package stream

// BudgetState separates "no credit right now" from "collection is over".
type BudgetState int

const (
	BudgetOpen BudgetState = iota
	BudgetEnded
)

func (s BudgetState) String() string {
	if s == BudgetEnded {
		return "ended"
	}
	return "open"
}

// Budget is the flow-control credit count bounding frames in flight.
// Sends take a credit, server acknowledgments give one back. Credits
// never go below zero.
type Budget struct {
	credits int
	state   BudgetState
}

func NewBudget(credits int) Budget {
	var b Budget
	b.Reset(credits)
	return b
}

func (b Budget) Credits() int       { return b.credits }
func (b Budget) State() BudgetState { return b.state }
func (b Budget) Ended() bool        { return b.state == BudgetEnded }

// Available reports whether a frame may be sent now.
func (b Budget) Available() bool {
	return b.state == BudgetOpen && b.credits > 0
}

// Take consumes one credit. It reports false, leaving the budget
// untouched, when no credit is available.
func (b *Budget) Take() bool {
	if !b.Available() {
		return false
	}
	b.credits--
	return true
}

// Restore returns one credit. Acknowledgments after End are ignored.
func (b *Budget) Restore() {
	if b.state == BudgetEnded {
		return
	}
	b.credits++
}

// End closes the budget until the next Reset.
func (b *Budget) End() {
	b.state = BudgetEnded
	b.credits = 0
}

// Reset reopens the budget with the given number of credits.
func (b *Budget) Reset(credits int) {
	if credits < 0 {
		credits = 0
	}
	b.credits = credits
	b.state = BudgetOpen
}
