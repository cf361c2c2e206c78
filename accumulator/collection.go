// ABOUTME: Per-key value collections behind the two accumulation policies.
// ABOUTME: Snapshots copy the held values, deep-copying each one when a clone func is set.

package accumulator

// collection is the per-key accumulated entry.
type collection[V any] interface {
	// add records v and reports whether the collection grew.
	add(v V) bool
	len() int
	// snapshot copies the held values, passing each through clone when it
	// is non-nil.
	snapshot(clone func(V) V) []V
}

type multiset[V any] struct {
	values []V
}

func newMultiset[V any](first V) collection[V] {
	return &multiset[V]{values: []V{first}}
}

func (m *multiset[V]) add(v V) bool {
	m.values = append(m.values, v)
	return true
}

func (m *multiset[V]) len() int { return len(m.values) }

func (m *multiset[V]) snapshot(clone func(V) V) []V {
	return copyValues(m.values, clone)
}

// distinct keeps values in first-seen order.
type distinct[V comparable] struct {
	seen  map[V]struct{}
	order []V
}

func newDistinct[V comparable](first V) collection[V] {
	return &distinct[V]{
		seen:  map[V]struct{}{first: {}},
		order: []V{first},
	}
}

func (d *distinct[V]) add(v V) bool {
	if _, ok := d.seen[v]; ok {
		return false
	}
	d.seen[v] = struct{}{}
	d.order = append(d.order, v)
	return true
}

func (d *distinct[V]) len() int { return len(d.order) }

func (d *distinct[V]) snapshot(clone func(V) V) []V {
	return copyValues(d.order, clone)
}

func copyValues[V any](values []V, clone func(V) V) []V {
	out := make([]V, len(values))
	if clone == nil {
		copy(out, values)
		return out
	}
	for i, v := range values {
		out[i] = clone(v)
	}
	return out
}
