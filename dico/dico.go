// Package dico implements the typed key/value dictionary used to encode
// header items in the archive format: a container keyed by small integer
// IDs, where every entry carries a type tag and a length-prefixed value.
package dico

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/fdupoux/fsarchiver-go/errors"
)

// ValueType tags the encoding of a Dico entry's value.
type ValueType uint8

const (
	TypeUint8 ValueType = iota + 1
	TypeUint16
	TypeUint32
	TypeUint64
	TypeBytes
	// TypeBlob is a nested Dico encoded as a byte string.
	TypeBlob
)

// Entry is one key/value pair held by a Dico.
type Entry struct {
	ID    uint16
	Type  ValueType
	Value []byte
}

// Dico is a typed key/value dictionary. The zero value is empty and ready
// to use.
type Dico struct {
	entries map[uint16]Entry
}

// New returns an empty Dico.
func New() *Dico {
	return &Dico{entries: make(map[uint16]Entry)}
}

func (d *Dico) set(id uint16, typ ValueType, value []byte) {
	if d.entries == nil {
		d.entries = make(map[uint16]Entry)
	}
	d.entries[id] = Entry{ID: id, Type: typ, Value: value}
}

// SetUint8, SetUint16, SetUint32 and SetUint64 store a fixed-width unsigned
// integer under id, replacing any existing entry.
func (d *Dico) SetUint8(id uint16, v uint8) { d.set(id, TypeUint8, []byte{v}) }

func (d *Dico) SetUint16(id uint16, v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	d.set(id, TypeUint16, b)
}

func (d *Dico) SetUint32(id uint16, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	d.set(id, TypeUint32, b)
}

func (d *Dico) SetUint64(id uint16, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	d.set(id, TypeUint64, b)
}

// SetBytes stores a byte string under id.
func (d *Dico) SetBytes(id uint16, v []byte) {
	cp := make([]byte, len(v))
	copy(cp, v)
	d.set(id, TypeBytes, cp)
}

// SetBlob stores a nested Dico under id.
func (d *Dico) SetBlob(id uint16, nested *Dico) error {
	b, err := nested.Marshal()
	if err != nil {
		return err
	}
	d.set(id, TypeBlob, b)
	return nil
}

func (d *Dico) get(id uint16, typ ValueType) ([]byte, bool) {
	e, ok := d.entries[id]
	if !ok || e.Type != typ {
		return nil, false
	}
	return e.Value, true
}

func (d *Dico) GetUint8(id uint16) (uint8, bool) {
	v, ok := d.get(id, TypeUint8)
	if !ok || len(v) != 1 {
		return 0, false
	}
	return v[0], true
}

func (d *Dico) GetUint16(id uint16) (uint16, bool) {
	v, ok := d.get(id, TypeUint16)
	if !ok || len(v) != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(v), true
}

func (d *Dico) GetUint32(id uint16) (uint32, bool) {
	v, ok := d.get(id, TypeUint32)
	if !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (d *Dico) GetUint64(id uint16) (uint64, bool) {
	v, ok := d.get(id, TypeUint64)
	if !ok || len(v) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(v), true
}

func (d *Dico) GetBytes(id uint16) ([]byte, bool) {
	return d.get(id, TypeBytes)
}

func (d *Dico) GetBlob(id uint16) (*Dico, bool) {
	v, ok := d.get(id, TypeBlob)
	if !ok {
		return nil, false
	}
	nested := New()
	if err := nested.Unmarshal(v); err != nil {
		return nil, false
	}
	return nested, true
}

// Len returns the number of entries.
func (d *Dico) Len() int { return len(d.entries) }

// Marshal encodes the dictionary, writing entries in ascending key order.
// Decoders tolerate any order.
func (d *Dico) Marshal() ([]byte, error) {
	ids := make([]uint16, 0, len(d.entries))
	for id := range d.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	buf := make([]byte, 0, 64)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(ids)))
	buf = append(buf, tmp[:n]...)
	for _, id := range ids {
		e := d.entries[id]
		n := binary.PutUvarint(tmp[:], uint64(e.ID))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, byte(e.Type))
		n = binary.PutUvarint(tmp[:], uint64(len(e.Value)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, e.Value...)
	}
	return buf, nil
}

// Unmarshal decodes a dictionary previously produced by Marshal, replacing
// any entries already present.
func (d *Dico) Unmarshal(data []byte) error {
	var once errors.Once
	r := &reader{data: data}

	count := r.uvarint(&once)
	if err := once.Err(); err != nil {
		return errors.E(errors.Corrupt, "dico: truncated entry count", err)
	}

	d.entries = make(map[uint16]Entry, count)
	for i := uint64(0); i < count; i++ {
		id := r.uvarint(&once)
		typ := ValueType(r.byte(&once))
		length := r.uvarint(&once)
		value := r.bytes(int(length), &once)
		if err := once.Err(); err != nil {
			return errors.E(errors.Corrupt, "dico: truncated entry", err)
		}
		d.entries[uint16(id)] = Entry{ID: uint16(id), Type: typ, Value: value}
	}
	return nil
}

// reader is a small cursor over encoded dico bytes, mirroring the
// accumulate-first-error style used elsewhere for decoding.
type reader struct {
	data []byte
}

func (r *reader) byte(once *errors.Once) byte {
	if len(r.data) < 1 {
		once.Set(fmt.Errorf("dico: unexpected end of data"))
		return 0
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b
}

func (r *reader) uvarint(once *errors.Once) uint64 {
	v, n := binary.Uvarint(r.data)
	if n <= 0 {
		once.Set(fmt.Errorf("dico: invalid varint"))
		return 0
	}
	r.data = r.data[n:]
	return v
}

func (r *reader) bytes(n int, once *errors.Once) []byte {
	if n < 0 || len(r.data) < n {
		once.Set(fmt.Errorf("dico: value length %d exceeds remaining data", n))
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[:n])
	r.data = r.data[n:]
	return b
}
