package checkpoint

import (
	"math"
)

// FrontierEntry is one candidate solution program for a task.
type FrontierEntry struct {
	Program       string  `json:"program"`
	LogLikelihood float64 `json:"logLikelihood"`
	LogPrior      float64 `json:"logPrior"`
	// ProductionUses counts how often each grammar production occurs in the program, aligned
	// with Grammar.Productions.
	ProductionUses []float64 `json:"productionUses,omitempty"`
}

// LogPosterior is the unnormalized log posterior of the entry.
func (e FrontierEntry) LogPosterior() float64 {
	return e.LogPrior + e.LogLikelihood
}

// Frontier is the set of candidate solutions found for a task.
type Frontier struct {
	Entries []FrontierEntry `json:"entries"`
}

// Len returns the number of entries.
func (f Frontier) Len() int {
	return len(f.Entries)
}

// Empty reports whether the frontier has no entries.
func (f Frontier) Empty() bool {
	return len(f.Entries) == 0
}

// Top returns the entry with the highest log likelihood. Ties keep the earliest entry.
func (f Frontier) Top() (FrontierEntry, bool) {
	if f.Empty() {
		return FrontierEntry{}, false
	}
	best := f.Entries[0]
	for _, e := range f.Entries[1:] {
		if e.LogLikelihood > best.LogLikelihood {
			best = e
		}
	}
	return best, true
}

// ExpectedProductionUses returns the posterior-weighted mean production-use vector of the
// frontier. The result has one element per production of g; when g is empty the longest entry
// vector sets the length.
func (f Frontier) ExpectedProductionUses(g Grammar) []float64 {
	n := g.Len()
	if n == 0 {
		for _, e := range f.Entries {
			if len(e.ProductionUses) > n {
				n = len(e.ProductionUses)
			}
		}
	}
	uses := make([]float64, n)
	if f.Empty() {
		return uses
	}

	maxLP := math.Inf(-1)
	for _, e := range f.Entries {
		maxLP = math.Max(maxLP, e.LogPosterior())
	}
	var z float64
	weights := make([]float64, len(f.Entries))
	for i, e := range f.Entries {
		weights[i] = math.Exp(e.LogPosterior() - maxLP)
		z += weights[i]
	}
	for i, e := range f.Entries {
		w := weights[i] / z
		for j := 0; j < n && j < len(e.ProductionUses); j++ {
			uses[j] += w * e.ProductionUses[j]
		}
	}
	return uses
}

// Production is a single grammar production.
type Production struct {
	Program        string  `json:"program"`
	LogProbability float64 `json:"logProbability"`
}

// Grammar is the probabilistic grammar learned at a checkpoint iteration.
type Grammar struct {
	Productions []Production `json:"productions"`
}

// Len returns the number of productions.
func (g Grammar) Len() int {
	return len(g.Productions)
}
