// Package streamio provides small interfaces and helpers for byte-oriented
// stream encoding and decoding.
package streamio

import (
	"encoding/binary"
	"io"
)

// Writer is the interface implemented by streams that encoders write to.
// Encoders frequently emit single bytes, so Writer requires an efficient
// WriteByte in addition to Write.
type Writer interface {
	io.Writer
	io.ByteWriter
}

// Reader is the interface implemented by streams that decoders read from.
type Reader interface {
	io.Reader
	io.ByteReader
}

// WriteUvarint writes v to w as an unsigned varint.
func WriteUvarint(w Writer, v uint64) error {
	for v >= 0x80 {
		if err := w.WriteByte(byte(v) | 0x80); err != nil {
			return err
		}
		v >>= 7
	}
	return w.WriteByte(byte(v))
}

// ReadUvarint reads an unsigned varint from r.
func ReadUvarint(r Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

// WriteVarint writes v to w as a zigzag-encoded signed varint.
func WriteVarint(w Writer, v int64) error {
	return WriteUvarint(w, zigzag(v))
}

// ReadVarint reads a zigzag-encoded signed varint from r.
func ReadVarint(r Reader) (int64, error) {
	uv, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return unzigzag(uv), nil
}

func zigzag(v int64) uint64   { return uint64(v<<1) ^ uint64(v>>63) }
func unzigzag(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }
