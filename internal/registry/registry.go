// Package registry holds the live connections of an event loop.
package registry

// Table maps a connection handle (its descriptor) to the connection record.
// A Table is owned by exactly one event loop and is not safe for concurrent
// use; it is passed through the loop rather than shared.
type Table[T any] struct {
	entries map[int]T
}

// New creates an empty Table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries: make(map[int]T),
	}
}

// Insert adds rec under fd. It reports false and leaves the table unchanged
// if fd is already present, since a live handle cannot be reused.
func (t *Table[T]) Insert(fd int, rec T) bool {
	if _, ok := t.entries[fd]; ok {
		return false
	}
	t.entries[fd] = rec
	return true
}

// Get returns the record for fd.
func (t *Table[T]) Get(fd int) (T, bool) {
	rec, ok := t.entries[fd]
	return rec, ok
}

// Remove deletes fd and reports whether it was present.
func (t *Table[T]) Remove(fd int) bool {
	if _, ok := t.entries[fd]; !ok {
		return false
	}
	delete(t.entries, fd)
	return true
}

// Len returns the number of live records.
func (t *Table[T]) Len() int {
	return len(t.entries)
}

// Range calls fn for every record until fn returns false. fn may remove the
// record it is given.
func (t *Table[T]) Range(fn func(fd int, rec T) bool) {
	for fd, rec := range t.entries {
		if !fn(fd, rec) {
			return
		}
	}
}
