package history

// Column is a live, order-preserving projection of one record field. Each
// access reads the underlying source at call time, so a column taken before
// an append sees the appended record.
type Column[T any] struct {
	length func() int
	get    func(i int) (T, error)
}

func newColumn[T any](length func() int, get func(i int) (T, error)) Column[T] {
	return Column[T]{length: length, get: get}
}

// Len returns the current number of elements.
func (c Column[T]) Len() int {
	if c.length == nil {
		return 0
	}
	return c.length()
}

// At returns element i. Negative indices count from the end.
func (c Column[T]) At(i int) (T, error) {
	var zero T
	j, err := normalizeIndex(i, c.Len())
	if err != nil {
		return zero, err
	}
	return c.get(j)
}

// Slice returns the elements selected by s.
func (c Column[T]) Slice(s Slice) ([]T, error) {
	idx, err := s.Indices(c.Len())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(idx))
	for _, i := range idx {
		v, err := c.get(i)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// All returns every element in order.
func (c Column[T]) All() ([]T, error) {
	return c.Slice(Full)
}
