package graph

// waveBudget bounds the number of scheduler waves in one pass.
//
// Every productive wave completes at least one processor, so a pass over n
// processors needs at most n waves after seeding. The budget is n+1; running
// out means the loop stopped shrinking the backlog.
type waveBudget struct {
	max     int
	current int
}

func newWaveBudget(members int) *waveBudget {
	return &waveBudget{max: members + 1}
}

// next consumes one wave. It returns false once the budget is spent.
func (b *waveBudget) next() bool {
	if b.current >= b.max {
		return false
	}
	b.current++
	return true
}

// used returns the number of waves consumed.
func (b *waveBudget) used() int { return b.current }
