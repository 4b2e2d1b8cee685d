package compare

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/sjyun/fongo-sub000/pkg/document"
)

// Hash returns a 64-bit hash of v that agrees with Equal: values that compare
// equal hash equally. Numbers are normalized so that 1, int32(1) and 1.0 share
// a hash, DBRefs hash as their document form.
func Hash(v document.Value) uint64 {
	d := xxhash.New()
	writeValue(d, v)
	return d.Sum64()
}

// HashDocument hashes a whole document, as used for index key tuples
func HashDocument(doc *document.Document) uint64 {
	return Hash(document.Doc(doc))
}

// canonical tags, one per weight class
const (
	tagMinKey byte = iota + 1
	tagNull
	tagInt
	tagFloat
	tagNaN
	tagString
	tagDocument
	tagArray
	tagBinary
	tagObjectID
	tagBool
	tagDate
	tagRegex
	tagMaxKey
)

func writeValue(d *xxhash.Digest, v document.Value) {
	var buf [16]byte
	switch v.Type {
	case document.TypeMinKey:
		d.Write([]byte{tagMinKey})
	case document.TypeNull:
		d.Write([]byte{tagNull})
	case document.TypeMaxKey:
		d.Write([]byte{tagMaxKey})
	case document.TypeInt32, document.TypeInt64:
		i, _ := integral(v)
		writeInt(d, i)
	case document.TypeFloat64:
		f := v.Data.(float64)
		switch {
		case math.IsNaN(f):
			d.Write([]byte{tagNaN})
		case f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64:
			writeInt(d, int64(f))
		default:
			buf[0] = tagFloat
			binary.LittleEndian.PutUint64(buf[1:9], math.Float64bits(f))
			d.Write(buf[:9])
		}
	case document.TypeString:
		writeString(d, tagString, v.Data.(string))
	case document.TypeDocument, document.TypeDBRef:
		doc := asDocument(v)
		buf[0] = tagDocument
		binary.LittleEndian.PutUint32(buf[1:5], uint32(doc.Len()))
		d.Write(buf[:5])
		for _, k := range doc.Keys() {
			writeString(d, tagString, k)
			child, _ := doc.Get(k)
			writeValue(d, child)
		}
	case document.TypeArray:
		arr, _ := v.Array()
		buf[0] = tagArray
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(arr)))
		d.Write(buf[:5])
		for _, elem := range arr {
			writeValue(d, elem)
		}
	case document.TypeBinary:
		b := v.Data.([]byte)
		buf[0] = tagBinary
		binary.LittleEndian.PutUint32(buf[1:5], uint32(len(b)))
		d.Write(buf[:5])
		d.Write(b)
	case document.TypeObjectID:
		id := v.Data.(document.ObjectID)
		d.Write([]byte{tagObjectID})
		d.Write(id[:])
	case document.TypeBoolean:
		b := byte(0)
		if v.Data.(bool) {
			b = 1
		}
		d.Write([]byte{tagBool, b})
	case document.TypeDateTime:
		t, _ := v.Time()
		buf[0] = tagDate
		binary.LittleEndian.PutUint64(buf[1:9], uint64(t.Unix()))
		binary.LittleEndian.PutUint32(buf[9:13], uint32(t.Nanosecond()))
		d.Write(buf[:13])
	case document.TypeRegex:
		r := v.Data.(document.Regex)
		writeString(d, tagRegex, r.Pattern)
		writeString(d, tagRegex, r.Options)
	default:
		panic(&InternalError{Left: v.Type, Right: v.Type})
	}
}

func writeInt(d *xxhash.Digest, i int64) {
	var buf [9]byte
	buf[0] = tagInt
	binary.LittleEndian.PutUint64(buf[1:], uint64(i))
	d.Write(buf[:])
}

func writeString(d *xxhash.Digest, tag byte, s string) {
	var buf [5]byte
	buf[0] = tag
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(s)))
	d.Write(buf[:])
	d.WriteString(s)
}
