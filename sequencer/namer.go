package sequencer

import (
	"fmt"
	"strings"
)

// Namer turns frame indices into file names.
type Namer struct {
	// Prefix precedes the number, e.g. "cube_".
	Prefix string

	// Digits is the zero-padded width of the number.
	Digits int

	// Start is added to the frame index.
	Start int

	// Ext is the file extension including the dot.
	Ext string
}

// DefaultNamer produces cube_000.png, cube_001.png and so on.
func DefaultNamer() Namer {
	return Namer{Prefix: "cube_", Digits: 3, Ext: ".png"}
}

// Name returns the file name of frame i.
func (n Namer) Name(i int) string {
	return fmt.Sprintf("%s%0*d%s", n.Prefix, n.Digits, n.Start+i, n.Ext)
}

// Validate rejects names that would escape the output directory or that
// can not hold count frames without changing width.
func (n Namer) Validate(count int) error {
	if strings.ContainsAny(n.Prefix, `/\`) || strings.ContainsAny(n.Ext, `/\`) {
		return fmt.Errorf("%w: name contains a path separator", ErrInvalidNamer)
	}
	if n.Digits < 1 {
		return fmt.Errorf("%w: digits %d < 1", ErrInvalidNamer, n.Digits)
	}
	if n.Start < 0 {
		return fmt.Errorf("%w: negative start index %d", ErrInvalidNamer, n.Start)
	}
	if count > 0 {
		if last := fmt.Sprint(n.Start + count - 1); len(last) > n.Digits {
			return fmt.Errorf("%w: index %s does not fit in %d digits", ErrInvalidNamer, last, n.Digits)
		}
	}
	return nil
}
