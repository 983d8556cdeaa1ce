package set

import (
	"cmp"
	"slices"
)

type unit = struct{}

// Set is an unordered set of values of type T.
type Set[T comparable] map[T]unit

// New returns a empty set.
func New[T comparable]() Set[T] {
	return make(Set[T])
}

// FromSlice returns a set containing the values in the given slice.
func FromSlice[T comparable](keys []T) Set[T] {
	set := make(Set[T], len(keys))
	for _, x := range keys {
		set.Insert(x)
	}
	return set
}

// FromKeys builds a set from the keys of a map.
func FromKeys[M ~map[K]V, K comparable, V any](m M) Set[K] {
	set := make(Set[K], len(m))
	for key := range m {
		set.Insert(key)
	}
	return set
}

// Contains checks whether the passed-in value is present in the Set.
func (s Set[T]) Contains(val T) bool {
	_, ok := s[val]
	return ok
}

// Insert adds the passed-in value to the Set.
func (s Set[T]) Insert(val T) {
	s[val] = unit{}
}

// Remove removes the passed-in value from the Set.
func (s Set[T]) Remove(val T) {
	delete(s, val)
}

// Equal reports whether both sets hold exactly the same values.
func (s Set[T]) Equal(other Set[T]) bool {
	if len(s) != len(other) {
		return false
	}
	for val := range s {
		if !other.Contains(val) {
			return false
		}
	}
	return true
}

// Difference returns the values of s that are not in other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	res := New[T]()
	for val := range s {
		if !other.Contains(val) {
			res.Insert(val)
		}
	}
	return res
}

// ToSlice builds a new slice, populates it with the contents of the Set, and returns it.
func (s Set[T]) ToSlice() []T {
	res := make([]T, 0, len(s))
	for val := range s {
		res = append(res, val)
	}
	return res
}

// Sorted returns the contents of an ordered set as a sorted slice.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	res := s.ToSlice()
	slices.Sort(res)
	return res
}
