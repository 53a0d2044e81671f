package utils

// Ptr returns a pointer to v. It is a generic convenience helper that avoids
// the need for a temporary variable when the address of a literal or computed
// value must be passed where a pointer is expected.
//
// Example:
//
//	req.Temperature = utils.Ptr(0.2)
func Ptr[T any](v T) *T {
	return &v
}

// ValueOr dereferences p, falling back to def when p is nil. Chat request
// fields are pointers so that "unset" and "zero" stay distinguishable; this
// helper collapses them at the point where a concrete value is needed.
func ValueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
