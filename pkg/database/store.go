package database

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sjyun/fongo-sub000/pkg/document"
	"github.com/sjyun/fongo-sub000/pkg/index"
)

// store is the document arena of a collection. Documents live in slots
// addressed by handles; indexes hold handles, never documents. Handles are
// never reused, so ascending handle order is insertion order.
type store struct {
	slots map[index.Handle]*document.Document
	live  *roaring.Bitmap
	next  index.Handle
}

func newStore() *store {
	return &store{
		slots: make(map[index.Handle]*document.Document),
		live:  roaring.New(),
	}
}

// reserve returns the handle the next add will use
func (s *store) reserve() (index.Handle, error) {
	if s.next == math.MaxUint32 {
		return 0, ErrStoreExhausted
	}
	return s.next, nil
}

func (s *store) add(doc *document.Document) index.Handle {
	h := s.next
	s.next++
	s.slots[h] = doc
	s.live.Add(h)
	return h
}

func (s *store) get(h index.Handle) *document.Document {
	return s.slots[h]
}

// set swaps the document in a slot
func (s *store) set(h index.Handle, doc *document.Document) {
	s.slots[h] = doc
}

func (s *store) remove(h index.Handle) {
	delete(s.slots, h)
	s.live.Remove(h)
}

func (s *store) len() int {
	return len(s.slots)
}

func (s *store) clear() {
	s.slots = make(map[index.Handle]*document.Document)
	s.live = roaring.New()
}

// resolve returns the live documents among candidates in store order
func (s *store) resolve(candidates *roaring.Bitmap) ([]index.Handle, []*document.Document) {
	live := roaring.And(candidates, s.live)
	handles := live.ToArray()
	docs := make([]*document.Document, len(handles))
	for i, h := range handles {
		docs[i] = s.slots[h]
	}
	return handles, docs
}
