// Package storage defines the file-system access the scanner needs:
// reading one extended attribute and enumerating a tree.
package storage

// DefaultAttribute is the extended attribute carrying the provenance tag.
const DefaultAttribute = "com.apple.provenance"

// WalkFunc is called for every visited entry. err is non-nil when the
// entry could not be enumerated; the walk continues past it unless the
// callback itself returns an error.
type WalkFunc func(path string, err error) error

// ListError reports a directory whose entries could not be read. Seen is
// true when the directory itself was already passed to the callback as
// an entry.
type ListError struct {
	Path string
	Seen bool
	Err  error
}

func (e *ListError) Error() string {
	return "list " + e.Path + ": " + e.Err.Error()
}

func (e *ListError) Unwrap() error { return e.Err }

// Provider is the interface for file-system operations.
type Provider interface {
	// Attribute returns the raw value of the named extended attribute.
	// A missing attribute yields apperr.ErrAttributeAbsent; any other
	// failure yields *apperr.AccessError.
	Attribute(path, name string) ([]byte, error)
	// Walk visits root and every entry beneath it.
	Walk(root string, fn WalkFunc) error
}
