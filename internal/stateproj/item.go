// Package stateproj implements the declarative state-spec projection
// described in spec.md §3/§4.B: turning one execution's observation
// samples into a structured "state dict," then flattening that dict into
// a canonical, order-preserving tuple used both as a corpus-novelty hash
// key (execution_state) and as the mutation engine's steering context
// (mutation_context).
package stateproj

// Kind is one of the five state-spec item shapes spec.md §3 defines.
type Kind string

const (
	KindValue     Kind = "value"
	KindSum       Kind = "sum"
	KindPredicate Kind = "predicate"
	KindCounter   Kind = "counter"
	KindSet       Kind = "set"
)

// Item is one entry of a state spec (the `execution_state` or
// `mutation_context` list in RunConfig). Name is used by value/sum/set;
// Expr is used by predicate/counter.
type Item struct {
	Kind Kind
	Name string
	Expr string
}

// DisplayKey is the key this item occupies in the state dict and the
// label prefix used by Canonicalize: the name for value/sum/set, the
// expression text for predicate/counter.
func (it Item) DisplayKey() string {
	switch it.Kind {
	case KindPredicate, KindCounter:
		return it.Expr
	default:
		return it.Name
	}
}

// label renders the "<key> (<kind>)" pair Canonicalize appends to the
// state tuple. `predicate` items use their bare expression text as the
// label (matching the original implementation, which never appended a
// "(predicate)" suffix — only `counter` items get a "(count)" suffix).
func (it Item) label() string {
	switch it.Kind {
	case KindValue:
		return it.Name + " (value)"
	case KindSum:
		return it.Name + " (sum)"
	case KindCounter:
		return it.Expr + " (count)"
	case KindSet:
		return it.Name + " (set)"
	default:
		return it.Expr
	}
}
