package ranking

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/cutcluster/pkg/progress"
)

// chain is a sparse random walk over n states. Probability mass that does
// not follow an edge (leak) goes to an implicit absorbing state which hands
// it back uniformly in the same step, so the total mass stays n.
type chain struct {
	n       int
	offsets []int
	targets []int
	probs   []float64
	leak    []float64
}

// iterateResult is the outcome of a power iteration.
type iterateResult struct {
	scores     []float64
	iterations int
	expired    bool
	lost       float64 // mass that went through the absorbing state in the last step
	delta      float64
}

// iterate runs power iteration from the all-ones vector until maxIter steps,
// a max-norm change below epsilon (when epsilon > 0), or budget expiry.
func (c *chain) iterate(ctx context.Context, maxIter int, epsilon float64, budget progress.Budget) (iterateResult, error) {
	cur := make([]float64, c.n)
	next := make([]float64, c.n)
	for i := range cur {
		cur[i] = 1.0
	}

	var res iterateResult
	res.delta = math.Inf(1)
	for res.iterations < maxIter {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if budget.Expired() {
			res.expired = true
			break
		}

		for i := range next {
			next[i] = 0
		}
		lost := 0.0
		for i := 0; i < c.n; i++ {
			s := cur[i]
			if s == 0 {
				continue
			}
			for e := c.offsets[i]; e < c.offsets[i+1]; e++ {
				next[c.targets[e]] += s * c.probs[e]
			}
			lost += s * c.leak[i]
		}
		share := lost / float64(c.n)
		for i := range next {
			next[i] += share
		}

		res.delta = floats.Distance(cur, next, math.Inf(1))
		res.lost = lost
		cur, next = next, cur
		res.iterations++
		if epsilon > 0 && res.delta < epsilon {
			break
		}
	}

	res.scores = cur
	return res, nil
}

// massOK reports whether the scores still sum to roughly n.
func massOK(scores []float64) bool {
	n := float64(len(scores))
	sum := floats.Sum(scores)
	return sum >= 0.99*n && sum <= 1.01*n
}
