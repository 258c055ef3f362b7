package bsm

import "github.com/pkg/errors"

// FramingError is returned when the framer encounters an id it cannot
// size, carrying enough context to reproduce the original tool's
// diagnostic: the offending id, the absolute stream offset, and the
// trace of recently consumed ids.
type FramingError struct {
	ID     byte
	Offset int64
	Trace  []TokenID
}

func (e *FramingError) Error() string {
	return errors.Errorf(
		"bsm: unknown token id 0x%02x at offset %d (trace: %v)",
		e.ID, e.Offset, e.Trace,
	).Error()
}

// UnsupportedTokenError marks a token whose on-wire framing is known
// but whose rewrite semantics are defined yet unimplemented, per
// SPEC_FULL.md §9 ("this spec mandates rejection for fidelity").
type UnsupportedTokenError struct {
	ID TokenID
}

func (e *UnsupportedTokenError) Error() string {
	return "bsm: extended variant unsupported: " + e.ID.String()
}

// fixedTokenLengths holds the static byte widths from §4.2 for tokens
// whose size never depends on their own contents.
var fixedTokenLengths = map[TokenID]int{
	AUTHeader32:   18,
	AUTHeader64:   26,
	AUTAttrLegacy: 25,
	AUTAttr32:     29,
	AUTAttr64:     33,
	AUTProcess32:  37,
	AUTSubject32:  37,
	AUTProcess64:  41,
	AUTSubject64:  41,
	AUTReturn32:   6,
	AUTReturn64:   10,
	AUTTrailer:    7,
	AUTExit:       9,
	AUTIPort:      3,
	AUTSeq:        5,
	AUTInAddr:     5,
	AUTSocket:     9,
	AUTIP:         21,
	AUTIPCPerm:    29,
	AUTIPC:        6,
}

// extendedField holds, for each "extended" token, the base size
// before the variable address and the offset of the 16-bit (or for
// HEADER*_EX, still 16-bit per SPEC_FULL) address-family byte count
// field that decides whether 4 or 16 bytes follow.
type extendedField struct {
	base      int
	fieldOff  int
}

var extendedTokenLengths = map[TokenID]extendedField{
	AUTHeader32EX:  {base: 20, fieldOff: 10},
	AUTHeader64EX:  {base: 28, fieldOff: 10},
	AUTProcess32EX: {base: 35, fieldOff: 33},
	AUTSubject32EX: {base: 35, fieldOff: 33},
	AUTProcess64EX: {base: 39, fieldOff: 37},
	AUTSubject64EX: {base: 39, fieldOff: 37},
	AUTInAddrEX:    {base: 3, fieldOff: 1},
}

// TokenLength reads (without consuming) enough of the stream starting
// at the head cursor to compute the total byte length of the next
// token, per the rules in SPEC_FULL.md §4.2. It reports a
// *FramingError for unrecognized ids.
func TokenLength(r *Reader) (int, error) {
	idByte, err := r.PeekU8(0)
	if err != nil {
		return 0, err
	}
	id := TokenID(idByte)

	if n, ok := fixedTokenLengths[id]; ok {
		return n, nil
	}
	if ext, ok := extendedTokenLengths[id]; ok {
		count, err := r.PeekU16Native(ext.fieldOff)
		if err != nil {
			return 0, err
		}
		if count == 16 {
			return ext.base + 16, nil
		}
		return ext.base + 4, nil
	}

	switch id {
	case AUTOtherFile32, AUTOtherFile64:
		n, err := r.PeekU16Native(9)
		if err != nil {
			return 0, err
		}
		return 11 + int(n), nil
	case AUTArg32:
		n, err := r.PeekU16Native(6)
		if err != nil {
			return 0, err
		}
		return 8 + int(n), nil
	case AUTArg64:
		n, err := r.PeekU16Native(10)
		if err != nil {
			return 0, err
		}
		return 12 + int(n), nil
	case AUTPath, AUTText:
		n, err := r.PeekU16Native(1)
		if err != nil {
			return 0, err
		}
		return 3 + int(n), nil
	case AUTGroups:
		count, err := r.PeekU16Native(1)
		if err != nil {
			return 0, err
		}
		return 3 + int(count)*4, nil
	case AUTSocketEX:
		n, err := r.PeekU16Native(5)
		if err != nil {
			return 0, err
		}
		addrLen := 4
		if n == 16 {
			addrLen = 16
		}
		return 11 + 2*addrLen, nil
	case AUTData:
		unit, err := r.PeekU8(2)
		if err != nil {
			return 0, err
		}
		count, err := r.PeekU8(3)
		if err != nil {
			return 0, err
		}
		sz, ok := unitSize(unit)
		if !ok {
			return 0, errors.Errorf("bsm: invalid audit unit 0x%02x in AUT_DATA token", unit)
		}
		return 4 + int(count)*sz, nil
	case AUTExecArgs, AUTExecEnv:
		count, err := r.PeekU32Native(1)
		if err != nil {
			return 0, err
		}
		strBytes, err := stringsSize(r, 5, int(count))
		if err != nil {
			return 0, err
		}
		return 5 + strBytes, nil
	default:
		return 0, &FramingError{ID: idByte, Offset: r.Offset(), Trace: r.Trace()}
	}
}

// stringsSize scans forward from offset through the ring buffer for
// exactly num consecutive NUL-terminated strings and returns the total
// number of bytes they (and their terminators) occupy.
func stringsSize(r *Reader, offset, num int) (int, error) {
	bytes := 0
	for i := 0; i < num; i++ {
		for {
			b, err := r.PeekU8(offset + bytes)
			if err != nil {
				return 0, err
			}
			bytes++
			if b == 0 {
				break
			}
		}
	}
	return bytes, nil
}
