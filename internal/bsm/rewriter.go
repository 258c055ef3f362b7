package bsm

import (
	"github.com/tpltnt/bsmpseu/internal/config"
	"github.com/tpltnt/bsmpseu/internal/pseudonym"
	"github.com/tpltnt/bsmpseu/internal/randsrc"
)

// Rewriter applies C5's five independent rewrite classes to a single
// token buffer already materialized in memory by the orchestrator
// (token bytes including the leading id byte, exactly TokenLength(id)
// long). Each method is a no-op switch over TokenID: tokens it doesn't
// recognize for that class pass through untouched.
type Rewriter struct {
	Config *config.Config
	Store  *pseudonym.Store
	Rand   randsrc.Source

	// TimeDelta is the single per-run shift subtracted from every
	// timestamp, drawn once by the orchestrator via Rand.TimeShift.
	TimeDelta uint32

	// OnNewMapping, if set, is invoked whenever Store allocates a fresh
	// pseudonym (SPEC_FULL.md's verbose mapping log).
	OnNewMapping func(pseudonym.Entry)
}

func getU32(buf []byte, off int) uint32 {
	return nativeOrder.Uint32(buf[off : off+4])
}

func putU32(buf []byte, off int, v uint32) {
	nativeOrder.PutUint32(buf[off:off+4], v)
}

// idOffsets lists, for one TokenID, the byte offsets of its uid-typed
// and gid-typed 32-bit fields plus (if any) its single pid field.
type idOffsets struct {
	uid []int
	gid []int
	pid []int
}

var rewriteIDOffsets = map[TokenID]idOffsets{
	// auid, euid, egid, ruid, rgid, pid — SPEC_FULL.md §4.5.
	AUTSubject32:   {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTProcess32:   {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTSubject64:   {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTProcess64:   {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTSubject32EX: {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTProcess32EX: {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTSubject64EX: {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	AUTProcess64EX: {uid: []int{1, 5, 13}, gid: []int{9, 17}, pid: []int{21}},
	// mode, uid, gid, fsid, nodeid, devid.
	AUTAttr32: {uid: []int{5}, gid: []int{9}},
	AUTAttr64: {uid: []int{5}, gid: []int{9}},
	// uid, gid, puid, pgid, mode, seq, key.
	AUTIPCPerm: {uid: []int{1, 9}, gid: []int{5, 13}},
}

// eligible reports whether v falls within the configured range. Per
// SPEC_FULL.md §9 the eligibility test is inclusive of both bounds
// (unlike the half-open [Min,Max) the value is then drawn from) —
// this is inherited, not a typo, so it is kept exactly as resolved.
func eligible(r config.Range, v uint32) bool {
	return v >= r.Min && v <= r.Max
}

func (rw *Rewriter) allocUID(original []byte) []byte {
	v := rw.Rand.IDIn(rw.Config.UIDRange.Min, rw.Config.UIDRange.Max)
	out := make([]byte, 4)
	putU32(out, 0, v)
	return out
}

func (rw *Rewriter) allocGID(original []byte) []byte {
	v := rw.Rand.IDIn(rw.Config.GIDRange.Min, rw.Config.GIDRange.Max)
	out := make([]byte, 4)
	putU32(out, 0, v)
	return out
}

func (rw *Rewriter) allocPID(original []byte) []byte {
	v := rw.Rand.IDIn(rw.Config.PIDRange.Min, rw.Config.PIDRange.Max)
	out := make([]byte, 4)
	putU32(out, 0, v)
	return out
}

func (rw *Rewriter) rewriteField(buf []byte, off int, kind pseudonym.Kind, rng config.Range, alloc pseudonym.Allocator) {
	v := getU32(buf, off)
	if !eligible(rng, v) {
		return
	}
	original := buf[off : off+4]
	pseudo := rw.Store.LookupOrAllocate(kind, original, alloc, rw.OnNewMapping)
	copy(buf[off:off+4], pseudo)
}

// RewriteIDs rewrites every uid/gid/pid field this token carries, per
// the offset table resolved in SPEC_FULL.md §4.5. Tokens outside the
// table pass through untouched.
func (rw *Rewriter) RewriteIDs(id TokenID, buf []byte) {
	offs, ok := rewriteIDOffsets[id]
	if !ok {
		return
	}
	if rw.Config.RewriteUIDs {
		for _, off := range offs.uid {
			rw.rewriteField(buf, off, pseudonym.KindUID, rw.Config.UIDRange, rw.allocUID)
		}
	}
	if rw.Config.RewriteGIDs {
		for _, off := range offs.gid {
			rw.rewriteField(buf, off, pseudonym.KindGID, rw.Config.GIDRange, rw.allocGID)
		}
	}
	if rw.Config.RewritePIDs {
		for _, off := range offs.pid {
			rw.rewriteField(buf, off, pseudonym.KindPID, rw.Config.PIDRange, rw.allocPID)
		}
	}
}

func isZeroAddr(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func (rw *Rewriter) allocAddr(original []byte) []byte {
	out := make([]byte, len(original))
	rw.Rand.Address(out, len(out))
	return out
}

func (rw *Rewriter) rewriteAddrAt(buf []byte, off, length int) {
	addr := buf[off : off+length]
	if isZeroAddr(addr) {
		return
	}
	pseudo := rw.Store.LookupOrAllocate(pseudonym.KindAddr, addr, rw.allocAddr, rw.OnNewMapping)
	copy(addr, pseudo)
}

// RewriteAddrs rewrites the embedded IPv4/IPv6 address(es) carried by
// socket and subject/process termid tokens. AUT_IP and AUT_IN_ADDR(_EX)
// are never rewritten — pseu_addrs() in the original has no case for
// them either, so they pass through untouched — and the *_EX
// header/subject/process variants are rejected outright: this spec
// mandates fidelity over guessing at their extended layout.
func (rw *Rewriter) RewriteAddrs(id TokenID, buf []byte) error {
	if !rw.Config.RewriteAddrs {
		return nil
	}
	switch id {
	case AUTSocket:
		rw.rewriteAddrAt(buf, 5, 4)
	case AUTSocketEX:
		addrLen := 4
		if buf[7] == 16 {
			addrLen = 16
		}
		rw.rewriteAddrAt(buf, 9, addrLen)
		rw.rewriteAddrAt(buf, 9+addrLen, addrLen)
	case AUTProcess32, AUTSubject32:
		rw.rewriteAddrAt(buf, 33, 4)
	case AUTProcess64, AUTSubject64:
		rw.rewriteAddrAt(buf, 37, 4)
	case AUTHeader32EX, AUTHeader64EX, AUTSubject32EX, AUTProcess32EX, AUTSubject64EX, AUTProcess64EX:
		return &UnsupportedTokenError{ID: id}
	}
	return nil
}

func collapseLeadingSlashes(p []byte) int {
	i := 0
	for i+1 < len(p) && p[i] == '/' && p[i+1] == '/' {
		i++
	}
	return i
}

func hasPrefix(p []byte, prefix string) bool {
	if len(p) < len(prefix) {
		return false
	}
	return string(p[:len(prefix)]) == prefix
}

// RewritePaths rewrites the path carried by AUT_PATH and AUT_TEXT
// tokens when it starts with one of the configured prefixes, replacing
// only the suffix after the matched prefix so the directory structure
// a human audits stays recognizable. Per pseu_path(), the store is
// keyed on the whole matched path (prefix included), not just the
// suffix — two different paths that share a literal remainder after
// different prefixes (e.g. /tmp/build.log and /var/tmp/build.log) are
// distinct original values and must be pseudonymized independently.
func (rw *Rewriter) RewritePaths(id TokenID, buf []byte) {
	if !rw.Config.RewritePaths {
		return
	}
	if id != AUTPath && id != AUTText {
		return
	}

	path := buf[3:]
	start := collapseLeadingSlashes(path)
	candidate := path[start:]

	for _, prefix := range rw.Config.PathPrefixes {
		if !hasPrefix(candidate, prefix) {
			continue
		}
		suffix := candidate[len(prefix):]
		// Trim a single trailing NUL terminator, if present, from the
		// portion that gets a fresh pseudonym suffix.
		n := len(suffix)
		hasNUL := n > 0 && suffix[n-1] == 0
		if hasNUL {
			n--
		}
		key := candidate[:len(prefix)+n]
		alloc := func(original []byte) []byte {
			out := make([]byte, len(original))
			copy(out, prefix)
			rw.Rand.PathSuffix(out[len(prefix):], len(out)-len(prefix))
			return out
		}
		pseudo := rw.Store.LookupOrAllocate(pseudonym.KindPath, key, alloc, rw.OnNewMapping)
		copy(suffix[:n], pseudo[len(prefix):])
		return
	}
}

// RewriteTimes subtracts the run's single time delta from every
// embedded timestamp, matching pseu_time()'s plain `time -= shift_max`
// — a 32-bit wraparound subtraction, not a clamp, so every rewritten
// timestamp differs from its input by exactly Δ. Extended header
// variants are rejected: their timestamp width is unspecified.
func (rw *Rewriter) RewriteTimes(id TokenID, buf []byte) error {
	if !rw.Config.RewriteTime {
		return nil
	}
	var off = -1
	switch id {
	case AUTOtherFile32, AUTOtherFile64:
		off = 1
	case AUTHeader32:
		off = 10
	case AUTHeader64:
		off = 14
	case AUTHeader32EX, AUTHeader64EX:
		return &UnsupportedTokenError{ID: id}
	}
	if off < 0 {
		return nil
	}
	t := getU32(buf, off)
	putU32(buf, off, t-rw.TimeDelta)
	return nil
}

// RewriteArgs blanks the NUL-terminated exec argument/environment
// strings carried by AUT_EXEC_ARGS/AUT_EXEC_ENV, replacing every
// non-NUL byte with ASCII space so the token's byte layout — including
// every terminator — is untouched.
func (rw *Rewriter) RewriteArgs(id TokenID, buf []byte) {
	if !rw.Config.RewriteArgs {
		return
	}
	if id != AUTExecArgs && id != AUTExecEnv {
		return
	}
	count := int(getU32(buf, 1))
	pos := 5
	for i := 0; i < count && pos < len(buf); i++ {
		for pos < len(buf) && buf[pos] != 0 {
			buf[pos] = ' '
			pos++
		}
		pos++ // skip the NUL terminator itself
	}
}
