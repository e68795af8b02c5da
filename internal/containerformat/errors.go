package containerformat

import "errors"

// Sentinel error kinds for container validation failures. Wrapped with
// context via fmt.Errorf at the call site, never returned bare.
var (
	// ErrInvalidContainer is returned for a missing or short footer.
	ErrInvalidContainer = errors.New("containerformat: invalid container")
	// ErrCorruptContainer is returned on manifest checksum mismatch or a
	// chunk record whose declared length exceeds record_size.
	ErrCorruptContainer = errors.New("containerformat: corrupt container")
	// ErrUnsupportedVersion is returned when the manifest's major version
	// exceeds what this reader supports.
	ErrUnsupportedVersion = errors.New("containerformat: unsupported version")
)
