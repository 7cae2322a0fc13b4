package utilities

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// DerefZero returns the value pointed to by p, or the zero value if p is nil.
func DerefZero[T any](p *T) T {
	if p != nil {
		return *p
	}
	var zero T
	return zero
}
