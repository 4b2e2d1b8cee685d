package document

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// ObjectID is a 12-byte identifier laid out like MongoDB's:
// [4-byte timestamp][5-byte process unique][3-byte counter]
type ObjectID [12]byte

var (
	objectIDCounter atomic.Uint32
	processUnique   [5]byte
)

func init() {
	var seed [4]byte
	_, _ = rand.Read(processUnique[:])
	_, _ = rand.Read(seed[:])
	objectIDCounter.Store(binary.BigEndian.Uint32(seed[:]))
}

// NewObjectID generates a new ObjectID for the current time
func NewObjectID() ObjectID {
	return NewObjectIDFromTime(time.Now())
}

// NewObjectIDFromTime generates an ObjectID whose timestamp part is t
func NewObjectIDFromTime(t time.Time) ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique[:])

	counter := objectIDCounter.Add(1)
	id[9] = byte(counter >> 16)
	id[10] = byte(counter >> 8)
	id[11] = byte(counter)
	return id
}

// ObjectIDFromHex parses the 24-character hex form
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("invalid ObjectID hex string length: %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid ObjectID hex string: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// Hex returns the hex string representation of the ObjectID
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id ObjectID) String() string {
	return "ObjectID(" + id.Hex() + ")"
}

// Timestamp returns the creation time encoded in the identifier
func (id ObjectID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0)
}

// Compare orders identifiers bytewise, which is creation order within a process
func (id ObjectID) Compare(other ObjectID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero returns true if the ObjectID is the zero value
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}
