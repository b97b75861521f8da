// Package patch implements the N3 patch executor: binding a WHERE clause,
// then applying DELETES/INSERTS atomically against the target graph under
// the single-writer lock.
package patch

import (
	"context"

	"github.com/bemafred/sky-omega/pkg/index"
	"github.com/bemafred/sky-omega/pkg/log"
	"github.com/bemafred/sky-omega/pkg/query"
	"github.com/bemafred/sky-omega/pkg/storeerr"
)

// TriplePattern is a DELETE/INSERT template: each field is either a bound
// term (atom already resolved/interned) or a query.Var naming a WHERE
// binding to substitute.
type TriplePattern = query.TriplePattern

// N3Patch is a parsed patch: {WHERE, DELETES, INSERTS} against a target
// graph. WHERE may be empty (nil), meaning the patch is unconditional and
// DELETES/INSERTS must already be fully ground.
type N3Patch struct {
	Where   []TriplePattern
	Deletes []TriplePattern
	Inserts []TriplePattern
	Graph   []byte
}

// Result reports the applied counts: how many triples were deleted and
// inserted.
type Result struct {
	Deleted  int
	Inserted int
}

// hasVariable reports whether a pattern still names any query.Var in any
// position, used to implement "skip patterns still containing unbound
// variables."
func hasVariable(p TriplePattern) bool {
	return p.Subject.IsVariable() || p.Predicate.IsVariable() || p.Object.IsVariable() ||
		(p.Graph != nil && p.Graph.IsVariable())
}

// substitute resolves every variable in p against sol, returning ok=false
// if any variable remains unbound under sol: patterns still containing
// unbound variables are skipped.
func substitute(p TriplePattern, sol query.Solution) (resolved TriplePattern, ok bool) {
	resolve := func(t query.Term) (query.Term, bool) {
		if !t.IsVariable() {
			return t, true
		}
		v, bound := sol[t.Variable()]
		if !bound {
			return t, false
		}
		return query.Bound(v), true
	}
	var okS, okP, okO, okG bool
	resolved.Subject, okS = resolve(p.Subject)
	resolved.Predicate, okP = resolve(p.Predicate)
	resolved.Object, okO = resolve(p.Object)
	okG = true
	if p.Graph != nil {
		g, ok := resolve(*p.Graph)
		resolved.Graph = &g
		okG = ok
	}
	return resolved, okS && okP && okO && okG
}

func termBytes(idx *index.MultiIndex, t query.Term) ([]byte, error) {
	if t.IsVariable() {
		return nil, storeerr.New(storeerr.InvalidInput, "unresolved variable in ground pattern")
	}
	return idx.TermOf(t.Atom())
}

// patternToBytes materializes every term of a ground pattern back into its
// interned byte string for InsertTriple/DeleteTriple. It interns nothing: a
// variable term is rejected with InvalidInput.
func patternToBytes(idx *index.MultiIndex, p TriplePattern) (s, pred, o, g []byte, err error) {
	if s, err = termBytes(idx, p.Subject); err != nil {
		return
	}
	if pred, err = termBytes(idx, p.Predicate); err != nil {
		return
	}
	if o, err = termBytes(idx, p.Object); err != nil {
		return
	}
	if p.Graph != nil {
		if g, err = termBytes(idx, *p.Graph); err != nil {
			return
		}
	}
	return
}

// Executor applies N3 patches against a multi-index store under a
// caller-supplied single-writer lock (pkg/store owns the lock itself;
// this package only requires that the caller already holds it for the
// duration of Apply).
type Executor struct {
	idx *index.MultiIndex
}

// NewExecutor builds a patch executor over idx.
func NewExecutor(idx *index.MultiIndex) *Executor {
	return &Executor{idx: idx}
}

// Apply runs p's WHERE, DELETES, and INSERTS steps in order. The caller
// must already hold the single-writer lock (pkg/store.Store does this
// around every call).
func (e *Executor) Apply(ctx context.Context, p N3Patch) (Result, error) {
	logger := log.WithComponent("patch")

	if len(p.Where) == 0 {
		for _, pat := range append(append([]TriplePattern{}, p.Deletes...), p.Inserts...) {
			if hasVariable(pat) {
				return Result{}, storeerr.New(storeerr.InvalidInput,
					"patch has no WHERE but DELETES/INSERTS contain variables")
			}
		}
	}

	bindings, err := e.evaluateWhere(ctx, p.Where)
	if err != nil {
		return Result{}, err
	}
	if len(p.Where) == 0 {
		bindings = []query.Solution{{}} // one empty binding: apply DELETES/INSERTS once, unconditionally
	}

	batch := newBatch(e.idx)
	result := Result{}

	for _, sol := range bindings {
		for _, tmpl := range p.Deletes {
			resolved, ok := substitute(tmpl, sol)
			if !ok {
				continue
			}
			s, pred, o, g, err := patternToBytes(e.idx, resolved)
			if err != nil {
				batch.rollback()
				return Result{}, storeerr.Wrap(storeerr.PatchFailed, "resolve delete pattern", err)
			}
			if err := batch.delete(s, pred, o, g); err != nil {
				batch.rollback()
				return Result{}, storeerr.Wrap(storeerr.PatchFailed, "apply delete", err)
			}
			result.Deleted++
		}
		for _, tmpl := range p.Inserts {
			resolved, ok := substitute(tmpl, sol)
			if !ok {
				continue
			}
			s, pred, o, g, err := groundBytes(e.idx, resolved)
			if err != nil {
				batch.rollback()
				return Result{}, storeerr.Wrap(storeerr.PatchFailed, "resolve insert pattern", err)
			}
			if err := batch.insert(s, pred, o, g); err != nil {
				batch.rollback()
				return Result{}, storeerr.Wrap(storeerr.PatchFailed, "apply insert", err)
			}
			result.Inserted++
		}
	}

	if err := batch.commit(); err != nil {
		batch.rollback()
		return Result{}, storeerr.Wrap(storeerr.PatchFailed, "commit patch batch", err)
	}

	logger.Debug().Int("deleted", result.Deleted).Int("inserted", result.Inserted).Msg("patch applied")
	return result, nil
}

// groundBytes resolves an INSERT pattern's terms to byte content. Unlike
// DELETE (which must only ever resolve existing atoms — you cannot delete
// content that was never interned), INSERT terms are for now required to
// already be interned too: the patch grammar only ever substitutes atoms
// bound by WHERE or literal terms supplied by the caller, which the
// caller interns before building the patch (see pkg/store.Store.Patch).
func groundBytes(idx *index.MultiIndex, p TriplePattern) (s, pred, o, g []byte, err error) {
	return patternToBytes(idx, p)
}

// evaluateWhere runs p.Where as a BGP against idx and materializes every
// binding: evaluating WHERE against the target graph produces a bag of
// bindings. Materializing is required here (rather than streaming
// DELETES/INSERTS directly off the BGP) because every binding must
// observe the pre-patch snapshot even as deletes are applied to the same
// indexes the BGP is still conceptually reading from.
func (e *Executor) evaluateWhere(ctx context.Context, where []TriplePattern) ([]query.Solution, error) {
	if len(where) == 0 {
		return nil, nil
	}
	bgp, err := query.NewBGP(ctx, e.idx, where)
	if err != nil {
		return nil, err
	}
	defer bgp.Close()

	var out []query.Solution
	for bgp.Advance() {
		out = append(out, bgp.Current())
	}
	if err := bgp.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
