package orchestrator

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tpltnt/bsmpseu/internal/bsm"
	"github.com/tpltnt/bsmpseu/internal/config"
	"github.com/tpltnt/bsmpseu/internal/rlog"
)

func buildTrail(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	name := []byte("audit\x00")
	fileTok := make([]byte, 11+len(name))
	fileTok[0] = byte(bsm.AUTOtherFile32)
	binary.NativeEndian.PutUint16(fileTok[9:11], uint16(len(name)))
	copy(fileTok[11:], name)
	buf.Write(fileTok)

	trailerTok := make([]byte, 7)
	trailerTok[0] = byte(bsm.AUTTrailer)
	buf.Write(trailerTok)

	return buf.Bytes()
}

func TestProcessFilePreservesLength(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	input := buildTrail(t)
	var out bytes.Buffer

	err := run.ProcessFile("trail", bytes.NewReader(input), &out, nil)
	require.NoError(t, err)
	require.Equal(t, len(input), out.Len(), "pseudonymizing must never change the byte length of a trail")
}

func TestProcessFileSkipsNonTrailInput(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	input := []byte{0xAA, 0xBB, 0xCC}
	var out bytes.Buffer

	err := run.ProcessFile("garbage", bytes.NewReader(input), &out, nil)
	require.NoError(t, err, "non-BSM input should be skipped, not treated as fatal")
	require.Zero(t, out.Len(), "nothing should be written for input that isn't a BSM trail")
}

func TestProcessFileEmptyInput(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	var out bytes.Buffer
	err := run.ProcessFile("empty", bytes.NewReader(nil), &out, nil)
	require.NoError(t, err)
	require.Zero(t, out.Len())
}

func TestProcessFileFlushCallback(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	input := buildTrail(t)
	var out bytes.Buffer
	flushes := 0

	err := run.ProcessFile("trail", bytes.NewReader(input), &out, func() error {
		flushes++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, flushes, "a short trail should still get exactly one final flush")
}

// buildRichTrail returns a trail exercising every rewrite class: a
// file token, a subject token carrying uid/gid/pid, a path token
// matching the default /tmp/ prefix, a socket token with a non-zero
// address, and an exec-args token — so a pass-through run (every
// Config.Rewrite* disabled) has something to prove it leaves alone.
func buildRichTrail(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	name := []byte("audit\x00")
	fileTok := make([]byte, 11+len(name))
	fileTok[0] = byte(bsm.AUTOtherFile32)
	binary.NativeEndian.PutUint32(fileTok[1:5], 1_700_000_000)
	binary.NativeEndian.PutUint16(fileTok[9:11], uint16(len(name)))
	copy(fileTok[11:], name)
	buf.Write(fileTok)

	subjectTok := make([]byte, 37)
	subjectTok[0] = byte(bsm.AUTSubject32)
	binary.NativeEndian.PutUint32(subjectTok[1:5], 1000)  // auid
	binary.NativeEndian.PutUint32(subjectTok[5:9], 1001)  // euid
	binary.NativeEndian.PutUint32(subjectTok[9:13], 2000) // egid
	binary.NativeEndian.PutUint32(subjectTok[13:17], 1002)
	binary.NativeEndian.PutUint32(subjectTok[17:21], 2001)
	binary.NativeEndian.PutUint32(subjectTok[21:25], 4242) // pid
	buf.Write(subjectTok)

	path := []byte("/tmp/secret\x00")
	pathTok := make([]byte, 3+len(path))
	pathTok[0] = byte(bsm.AUTPath)
	binary.NativeEndian.PutUint16(pathTok[1:3], uint16(len(path)))
	copy(pathTok[3:], path)
	buf.Write(pathTok)

	socketTok := make([]byte, 9)
	socketTok[0] = byte(bsm.AUTSocket)
	socketTok[5] = 10
	socketTok[6] = 20
	socketTok[7] = 30
	socketTok[8] = 40
	buf.Write(socketTok)

	args := []byte("ls\x00")
	argsTok := make([]byte, 5+len(args))
	argsTok[0] = byte(bsm.AUTExecArgs)
	binary.NativeEndian.PutUint32(argsTok[1:5], 1)
	copy(argsTok[5:], args)
	buf.Write(argsTok)

	trailerTok := make([]byte, 7)
	trailerTok[0] = byte(bsm.AUTTrailer)
	buf.Write(trailerTok)

	return buf.Bytes()
}

// TestProcessFilePassThroughWhenAllDisabled exercises spec.md §8's
// mandatory "Pass-through" property: with every rewrite class turned
// off, the output must be bit-identical to the input.
func TestProcessFilePassThroughWhenAllDisabled(t *testing.T) {
	cfg := config.Config{
		UIDRange:     config.Range{Min: 200, Max: 60000},
		GIDRange:     config.Range{Min: 10, Max: 60000},
		PIDRange:     config.Range{Min: 500, Max: 65535},
		TimeShiftMax: 0,
		PathPrefixes: config.DefaultPathPrefixes(),
	}

	run := New(&cfg, rlog.Discard())
	input := buildRichTrail(t)
	var out bytes.Buffer

	err := run.ProcessFile("trail", bytes.NewReader(input), &out, nil)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(input, out.Bytes()), "output must be bit-identical to input when every rewrite class is disabled")
}

// TestProcessFileUnknownIDReportsOffsetAndTrace covers scenario 6 from
// spec.md §8: an unrecognized token id must abort the run with a
// diagnostic naming the id, its absolute byte offset, and the most
// recently consumed token ids.
func TestProcessFileUnknownIDReportsOffsetAndTrace(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	good := buildTrail(t) // file token (17 bytes) + trailer (7 bytes)
	input := append(append([]byte(nil), good...), 0xC9)
	var out bytes.Buffer

	err := run.ProcessFile("trail", bytes.NewReader(input), &out, nil)
	require.Error(t, err)

	var fe *bsm.FramingError
	require.True(t, errors.As(err, &fe), "expected the error chain to contain a *bsm.FramingError, got %v", err)
	assert.Equal(t, byte(0xC9), fe.ID)
	assert.EqualValues(t, len(good), fe.Offset, "offset must be the absolute stream position of the unknown token")
	require.NotEmpty(t, fe.Trace)
	assert.Equal(t, bsm.AUTTrailer, fe.Trace[len(fe.Trace)-1], "trace must end with the most recently consumed token id")
}

func TestRunProcessesMultipleFilesSequentially(t *testing.T) {
	cfg := config.Default()
	run := New(&cfg, rlog.Discard())

	first := buildTrail(t)
	second := buildTrail(t)

	var out1, out2 bytes.Buffer
	require.NoError(t, run.ProcessFile("a", bytes.NewReader(first), &out1, nil))
	require.NoError(t, run.ProcessFile("b", bytes.NewReader(second), &out2, nil))

	require.Equal(t, len(first), out1.Len())
	require.Equal(t, len(second), out2.Len())
}
