package query

import (
	"context"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/temporal"
)

// PatternScan is the pattern-match operator: it wraps a multi-index-store
// iterator with no buffering. It resolves a TriplePattern
// against an (optional) parent solution, issues a single index.Query (or
// QueryTemporal), and streams out one extended Solution per matching entry.
type PatternScan struct {
	ctx     context.Context
	pattern TriplePattern
	parent  Solution

	it  *index.ResultIterator
	cur Solution
	err error
}

// NewPatternScan opens a plain (non-temporal) pattern match against idx,
// extending parent with the pattern's variable bindings.
func NewPatternScan(ctx context.Context, idx *index.MultiIndex, pattern TriplePattern, parent Solution) (*PatternScan, error) {
	it, err := idx.Query(patternFields(pattern, parent))
	if err != nil {
		return nil, err
	}
	return &PatternScan{ctx: ctx, pattern: pattern, parent: parent, it: it}, nil
}

// NewTemporalPatternScan opens a temporal pattern match applying pred at
// enumeration time.
func NewTemporalPatternScan(ctx context.Context, idx *index.MultiIndex, pattern TriplePattern, parent Solution, pred temporal.Predicate, tr *index.TimeRange) (*PatternScan, error) {
	it, err := idx.QueryTemporal(patternFields(pattern, parent), pred, tr)
	if err != nil {
		return nil, err
	}
	return &PatternScan{ctx: ctx, pattern: pattern, parent: parent, it: it}, nil
}

func (p *PatternScan) Advance() bool {
	if !p.it.Advance(p.ctx) {
		p.err = p.it.Err()
		return false
	}
	r := p.it.Current()
	sol := p.parent.Clone()
	sol = sol.Bind(p.pattern.Subject, r.Subject)
	sol = sol.Bind(p.pattern.Predicate, r.Predicate)
	sol = sol.Bind(p.pattern.Object, r.Object)
	if p.pattern.Graph != nil {
		sol = sol.Bind(*p.pattern.Graph, r.Graph)
	}
	p.cur = sol
	return true
}

func (p *PatternScan) Current() Solution { return p.cur }
func (p *PatternScan) Err() error         { return p.err }
func (p *PatternScan) Close()             { p.it.Close() }
