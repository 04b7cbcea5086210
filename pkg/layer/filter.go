package layer

import "context"

// Predicate decides whether a Filter passes an item through.
type Predicate[K Key[K], V any] func(ItemRef[K, V]) bool

// Filter decorates an iterator so that Get only ever returns items the
// predicate accepts. Construction and every Advance skip ahead until the
// predicate holds or the underlying iterator exhausts.
type Filter[K Key[K], V any] struct {
	it   Iterator[K, V]
	pred Predicate[K, V]
}

// NewFilter wraps it, which must already be positioned (as iterators from
// Seek are), and skips to the first accepted item.
func NewFilter[K Key[K], V any](ctx context.Context, it Iterator[K, V], pred Predicate[K, V]) (*Filter[K, V], error) {
	f := &Filter[K, V]{it: it, pred: pred}
	if err := f.skip(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filter[K, V]) skip(ctx context.Context) error {
	for {
		ref, ok := f.it.Get()
		if !ok || f.pred(ref) {
			return nil
		}
		if err := f.it.Advance(ctx); err != nil {
			return err
		}
	}
}

func (f *Filter[K, V]) Advance(ctx context.Context) error {
	if err := f.it.Advance(ctx); err != nil {
		return err
	}
	return f.skip(ctx)
}

func (f *Filter[K, V]) Get() (ItemRef[K, V], bool) {
	return f.it.Get()
}
