package query

import "encoding/binary"

// AggKind identifies which aggregate family a GroupBy accumulator computes.
// COUNT just counts. SUM and AVG maintain a running accumulator. MIN and
// MAX track the current best seen so far.
type AggKind int

const (
	Count AggKind = iota
	Sum
	Avg
	Min
	Max
)

// accumulator tracks one running aggregate value for one group.
type accumulator struct {
	kind    AggKind
	count   uint64
	sum     float64
	min     float64
	max     float64
	hasMin  bool
	hasMax  bool
}

func newAccumulator(kind AggKind) *accumulator { return &accumulator{kind: kind} }

func (a *accumulator) add(v Value) {
	a.count++
	if !v.Bound || !v.IsNum {
		return
	}
	a.sum += v.Num
	if !a.hasMin || v.Num < a.min {
		a.min, a.hasMin = v.Num, true
	}
	if !a.hasMax || v.Num > a.max {
		a.max, a.hasMax = v.Num, true
	}
}

func (a *accumulator) result() float64 {
	switch a.kind {
	case Count:
		return float64(a.count)
	case Sum:
		return a.sum
	case Avg:
		if a.count == 0 {
			return 0
		}
		return a.sum / float64(a.count)
	case Min:
		return a.min
	case Max:
		return a.max
	default:
		return 0
	}
}

// AggregateResult is one GROUP BY group's key tuple plus aggregate value.
type AggregateResult struct {
	GroupKey []uint32
	Value    float64
}

// GroupBy evaluates GROUP BY + aggregate: it streams inner to exhaustion
// (aggregation inherently needs every solution in a group before it has a
// final value), hashing by the group-key variable tuple and maintaining
// one accumulator per group.
//
// A nil groupVars means "no GROUP BY": every solution belongs to the single
// implicit group, matching SPARQL's whole-result aggregate (e.g. a bare
// `SELECT (COUNT(*) AS ?n)`).
func GroupBy(inner Operator, groupVars []VarID, kind AggKind, aggVar VarID, terms TermResolver) ([]AggregateResult, error) {
	type group struct {
		key []uint32
		acc *accumulator
	}
	order := make([]string, 0)
	groups := make(map[string]*group)

	for inner.Advance() {
		sol := inner.Current()
		key := make([]uint32, len(groupVars))
		for i, v := range groupVars {
			key[i] = sol[v]
		}
		k := encodeGroupKey(key)
		g, ok := groups[k]
		if !ok {
			g = &group{key: key, acc: newAccumulator(kind)}
			groups[k] = g
			order = append(order, k)
		}
		g.acc.add(VarExpr(aggVar)(sol, terms))
	}
	if err := inner.Err(); err != nil {
		return nil, err
	}

	results := make([]AggregateResult, 0, len(order))
	for _, k := range order {
		g := groups[k]
		results = append(results, AggregateResult{GroupKey: g.key, Value: g.acc.result()})
	}
	return results, nil
}

func encodeGroupKey(key []uint32) string {
	buf := make([]byte, 4*len(key))
	for i, v := range key {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}
	return string(buf)
}
