package chronicle

import (
	"errors"

	"github.com/jrhy/chronicle/ot"
)

var (
	// ErrDuplicateID is returned when adding a change whose id is taken.
	ErrDuplicateID = errors.New("duplicate change id")
	// ErrUnknownChange is returned for references to absent change ids.
	ErrUnknownChange = errors.New("unknown change")
	// ErrUnknownRef is returned for references to absent refs.
	ErrUnknownRef = errors.New("unknown ref")
	// ErrInvalidPath is returned by Step when two consecutive ids of the
	// path are not adjacent in the graph.
	ErrInvalidPath = errors.New("invalid path")
	// ErrUnrelatedHistory is returned when two changes share no ancestor.
	ErrUnrelatedHistory = errors.New("unrelated history")
	// ErrInvalidSequence is returned by a manual merge whose sequence
	// names changes outside the merged branches or reorders a branch.
	ErrInvalidSequence = errors.New("invalid merge sequence")
	// ErrApplyConflict is returned when an operation's precondition does
	// not hold for the live value.
	ErrApplyConflict = ot.ErrApplyConflict
	// ErrNotFound is returned by a Persist for keys it does not hold.
	ErrNotFound = errors.New("not found")
	// ErrChecksum is returned when a stored record fails verification.
	ErrChecksum = errors.New("checksum mismatch")
)
