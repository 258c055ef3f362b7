// Package orchestrator drives one pseudonymization run: for each input
// file it wires the reader, framer, and rewriter together, writes the
// result, and flushes periodically, while keeping mapping state alive
// across every file in the run (SPEC_FULL.md §5).
package orchestrator

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tpltnt/bsmpseu/internal/bsm"
	"github.com/tpltnt/bsmpseu/internal/config"
	"github.com/tpltnt/bsmpseu/internal/pseudonym"
	"github.com/tpltnt/bsmpseu/internal/randsrc"
)

// Run owns everything that must persist across the files processed in
// one invocation: the pseudonym tables, the random source, and the
// single time delta drawn for the whole run.
type Run struct {
	Config *config.Config
	Store  *pseudonym.Store
	Rand   randsrc.Source
	Delta  uint32
	Log    *logrus.Entry

	onNewMapping func(pseudonym.Entry)
}

// New builds a Run, drawing the one per-run time delta up front so
// every file the run processes shifts timestamps by the same amount.
func New(cfg *config.Config, log *logrus.Entry) *Run {
	rnd := randsrc.NewMathRand()
	r := &Run{
		Config: cfg,
		Store:  pseudonym.New(),
		Rand:   rnd,
		Log:    log,
	}
	if cfg.RewriteTime {
		r.Delta = rnd.TimeShift(cfg.TimeShiftMax)
	}
	r.onNewMapping = func(e pseudonym.Entry) {
		log.WithFields(logrus.Fields{
			"kind":          e.Kind.String(),
			"original":      e.Original,
			"pseudonym":     e.Pseudonym,
			"entries":       e.Entries,
			"capacity_hint": e.Capacity,
		}).Debug("allocated new pseudonym")
	}
	return r
}

func (r *Run) rewriter() *bsm.Rewriter {
	return &bsm.Rewriter{
		Config:       r.Config,
		Store:        r.Store,
		Rand:         r.Rand,
		TimeDelta:    r.Delta,
		OnNewMapping: r.onNewMapping,
	}
}

// Flusher is the subset of a compressing writer's API used for the
// periodic flush; *gzip.Writer satisfies it. ProcessFile does not take
// a Flusher: its flush argument is a plain func() error, such as the
// method value gw.Flush.
type Flusher interface {
	Flush() error
}

// ProcessFile reads one complete BSM trail from src and writes its
// pseudonymized form to dst, flushing dst (via flush, which may be
// nil) every config.FlushEveryBytes bytes written. name is used only
// for diagnostics.
//
// If the trail does not begin with a file token, the input is skipped
// with a warning rather than treated as an error (SPEC_FULL.md §7,
// the non-fatal "not a BSM trail" case): a FramingError or I/O error later in the
// stream is still fatal.
func (r *Run) ProcessFile(name string, src io.Reader, dst io.Writer, flush func() error) error {
	reader := bsm.NewReader(src)
	rw := r.rewriter()

	firstByte, err := reader.PeekU8(0)
	if err != nil {
		return errors.Wrapf(err, "bsm: reading first token of %s", name)
	}
	if reader.Done() {
		r.Log.WithField("file", name).Warn("empty input, skipping")
		return nil
	}
	if !bsm.TokenID(firstByte).IsFileToken() {
		r.Log.WithFields(logrus.Fields{
			"file": name,
			"id":   bsm.TokenID(firstByte).String(),
		}).Warn("input does not start with a file token, not a BSM trail, skipping")
		return nil
	}

	var sinceFlush int64
	buf := make([]byte, 0, bsm.SegBytes)

	for {
		if err := reader.Fill(); err != nil {
			return errors.Wrapf(err, "bsm: filling ring buffer for %s", name)
		}
		if reader.Done() {
			break
		}

		n, err := bsm.TokenLength(reader)
		if err != nil {
			return errors.Wrapf(err, "bsm: framing %s", name)
		}

		if cap(buf) < n {
			buf = make([]byte, n)
		} else {
			buf = buf[:n]
		}
		if err := reader.ReadToken(n, buf); err != nil {
			return errors.Wrapf(err, "bsm: reading token body in %s", name)
		}

		id := bsm.TokenID(buf[0])
		rw.RewriteIDs(id, buf)
		if err := rw.RewriteAddrs(id, buf); err != nil {
			return errors.Wrapf(err, "bsm: rewriting addresses in %s", name)
		}
		rw.RewritePaths(id, buf)
		if err := rw.RewriteTimes(id, buf); err != nil {
			return errors.Wrapf(err, "bsm: rewriting timestamps in %s", name)
		}
		rw.RewriteArgs(id, buf)

		if _, err := dst.Write(buf); err != nil {
			return errors.Wrapf(err, "bsm: writing output for %s", name)
		}
		reader.Consume(n, id)

		sinceFlush += int64(n)
		if sinceFlush >= config.FlushEveryBytes {
			if flush != nil {
				if err := flush(); err != nil {
					return errors.Wrapf(err, "bsm: flushing output for %s", name)
				}
			}
			sinceFlush = 0
		}
	}

	if flush != nil {
		if err := flush(); err != nil {
			return errors.Wrapf(err, "bsm: final flush for %s", name)
		}
	}
	return nil
}
