package domain

import "math"

// Opt is a value that may be undefined. The zero value is undefined.
type Opt[T any] struct {
	v  T
	ok bool
}

// Some returns a defined Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, ok: true}
}

// None returns an undefined Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// Get returns the value and whether it is defined.
func (o Opt[T]) Get() (T, bool) {
	return o.v, o.ok
}

// Valid reports whether the value is defined.
func (o Opt[T]) Valid() bool {
	return o.ok
}

// Or returns the value if defined, otherwise def.
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

// Float wraps v, treating NaN and ±Inf as undefined.
func Float(v float64) Opt[float64] {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None[float64]()
	}
	return Some(v)
}
