package bsm

import "encoding/binary"

// nativeOrder matches the raw byte-copy-then-reinterpret behavior of
// the original C source, which reads multi-byte identifier fields by
// copying bytes into a local variable without swapping — producing a
// different numeric value on big- vs little-endian hosts. The mapping
// key stays the raw byte sequence regardless; only range checks and
// the time-shift arithmetic observe this native decode (SPEC_FULL.md
// §9, "Endianness").
var nativeOrder = binary.NativeEndian
