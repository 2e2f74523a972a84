package chronicle

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces ids for new changes. Ids must be unique for the
// lifetime of the index they are added to.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to an IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDs generates random UUIDs. It is the default generator.
var UUIDs IDGenerator = IDFunc(uuid.NewString)

type sequence struct {
	l      sync.Mutex
	next   int
	format string
}

// Sequence returns a generator of zero-padded decimal ids of at least
// width digits, counting up from start. Deterministic ids are mostly
// useful for tests and fixtures.
func Sequence(width, start int) IDGenerator {
	return &sequence{next: start, format: fmt.Sprintf("%%0%dd", width)}
}

func (s *sequence) NewID() string {
	s.l.Lock()
	defer s.l.Unlock()
	id := fmt.Sprintf(s.format, s.next)
	s.next++
	return id
}
