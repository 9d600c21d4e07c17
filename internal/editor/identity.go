package editor

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// ID is the opaque identity of a line. It is assigned once when the line is
// created and never recomputed from the line's position.
type ID string

// UserID identifies one editing session. It is only used as the key of the
// selections map.
type UserID string

// IDGenerator hands out identities for new lines.
type IDGenerator interface {
	NewID() ID
}

// UUIDGenerator produces random (v4) UUIDs. It is safe for concurrent use.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() ID {
	return ID(uuid.NewString())
}

// SeqGenerator produces prefix-1, prefix-2, ... It is safe for concurrent use
// and mostly useful where deterministic ids are wanted.
type SeqGenerator struct {
	Prefix string
	n      atomic.Uint64
}

func (g *SeqGenerator) NewID() ID {
	return ID(g.Prefix + "-" + strconv.FormatUint(g.n.Add(1), 10))
}
