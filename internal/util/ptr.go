// Package util holds small generic helpers shared by mappa packages.
package util

// Ptr returns a pointer to v. Optional fields such as tm.Name.Type take
// pointers, and literals cannot be addressed directly.
func Ptr[T any](v T) *T {
	return &v
}
