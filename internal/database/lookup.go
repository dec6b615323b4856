package database

// Lookup is the result of fetching a single record by its natural key. A lookup that matched nothing
// is not an error; errors are reserved for the store itself failing.
type Lookup[T any] struct {
	Value T
	Found bool
}

func Found[T any](v T) Lookup[T] {
	return Lookup[T]{Value: v, Found: true}
}

func NotFound[T any]() Lookup[T] {
	return Lookup[T]{}
}

// Get returns the value and whether it was found, for use in if-statements.
func (l Lookup[T]) Get() (T, bool) {
	return l.Value, l.Found
}
