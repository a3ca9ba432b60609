package hreq

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// BodyReader owns one BodySource and turns it into a bufferable byte
	// stream. It is single-owner: exactly one in-flight read at a time, no
	// internal locking.
	BodyReader struct {
		src         BodySource
		prebufferTo int
		buf         *growBuf
		consumed    int
		leftover    *chunkReader
		finished    bool
		bw          *BandwidthMonitor
	}
)

// NewBodyReader wraps src. With prebuffer set, the first fill keeps reading
// until MaxPrebuffer bytes are resident or the source ends, which lets small
// bodies be treated as complete in-memory data.
func NewBodyReader(src BodySource, prebuffer bool) *BodyReader {
	prebufferTo := 0
	if prebuffer {
		prebufferTo = MaxPrebuffer
	}
	return &BodyReader{
		src:         src,
		prebufferTo: prebufferTo,
		buf:         newGrowBuf(StartBufSize, MaxBufSize),
	}
}

// SetBandwidthMonitor attaches a shared observer that gets every read byte
// count appended. Pass nil to detach.
func (r *BodyReader) SetBandwidthMonitor(bw *BandwidthMonitor) {
	r.bw = bw
}

// AttemptPrebuffer drives refills until the prebuffer target is reached or
// the source ends. It reports the total buffered length and true only when
// the source finished, meaning the entire body is resident in memory.
func (r *BodyReader) AttemptPrebuffer(ctx context.Context) (int, bool, error) {
	if err := r.refill(ctx); err != nil {
		return 0, false, err
	}
	if r.finished {
		return r.buf.len(), true, nil
	}
	return 0, false, nil
}

// BufferedRead ensures at least one byte is buffered or the source is
// finished, then returns a read-only view of all unconsumed bytes without
// copying. An empty view means end-of-stream. The view is only valid until
// the next call that may refill.
func (r *BodyReader) BufferedRead(ctx context.Context) ([]byte, error) {
	if err := r.refill(ctx); err != nil {
		return nil, err
	}
	return r.unconsumed(), nil
}

// Consume advances past n bytes previously returned by BufferedRead.
func (r *BodyReader) Consume(n int) {
	r.consumed += n

	if r.consumed > r.buf.len() {
		panic(`Consume() past the buffered length`)
	}
}

// Read copies unconsumed bytes into p, refilling as needed. It returns
// io.EOF once the source is drained.
func (r *BodyReader) Read(ctx context.Context, p []byte) (int, error) {
	if r.unconsumedLen() == 0 {
		if r.finished {
			return 0, io.EOF
		}
		if err := r.refill(ctx); err != nil {
			return 0, err
		}
		if r.unconsumedLen() == 0 {
			return 0, io.EOF
		}
	}

	n := copy(p, r.unconsumed())
	r.Consume(n)
	return n, nil
}

func (r *BodyReader) unconsumed() []byte {
	return r.buf.bytes()[r.consumed:]
}

func (r *BodyReader) unconsumedLen() int {
	return r.buf.len() - r.consumed
}

func (r *BodyReader) refill(ctx context.Context) error {
	if r.unconsumedLen() > 0 {
		return nil
	}

	// reading resets the consume cursor.
	r.consumed = 0
	r.buf.clear()

	for {
		// when prebuffering, read until the target is reached. When not,
		// any content at all is enough.
		readEnough := r.prebufferTo > 0 && r.buf.len() >= r.prebufferTo ||
			r.prebufferTo == 0 && r.buf.len() > 0

		if r.finished || readEnough || r.buf.full() {
			// only the first fill prebuffers.
			r.prebufferTo = 0
			return nil
		}

		if _, err := r.buf.fill(func(spare []byte) (int, error) {
			return r.readUnderlying(ctx, spare)
		}); err != nil {
			return err
		}
	}
}

// readUnderlying pulls one slab of bytes from the body source. Reading zero
// bytes marks the reader finished.
func (r *BodyReader) readUnderlying(ctx context.Context, p []byte) (int, error) {
	if r.finished {
		return 0, nil
	}

	// http2 streams might have leftovers to use up before asking for more.
	if r.leftover != nil {
		n := r.leftover.read(p)
		if r.leftover.len() == 0 {
			r.leftover = nil
		}
		if r.bw != nil {
			r.bw.AppendReadBytes(n)
		}
		return n, nil
	}

	var amount int

	switch r.src.kind {
	case sourceEmpty:
		amount = 0

	case sourceSync:
		n, err := r.src.sync.Read(p)
		if err != nil && err != io.EOF {
			if isWouldBlock(err) {
				panic(`BodyFromReader() source returned would-block. Use BodyFromAsyncReader()`)
			}
			return 0, errors.Wrap(err, `Body read fail`)
		}
		amount = n

	case sourceAsync:
		n, err := r.src.async.Read(ctx, p)
		if err != nil && err != io.EOF {
			return 0, errors.Wrap(err, `Body read fail`)
		}
		amount = n

	case sourceHttp1:
		n, err := r.src.h1.Read(ctx, p)
		if err != nil && err != io.EOF {
			return 0, errors.Wrap(err, `Http1 body read fail`)
		}
		amount = n

	case sourceHttp2:
		n, err := r.readHttp2Chunk(ctx, p)
		if err != nil {
			return 0, err
		}
		amount = n

	default:
		panic(`unknown body source kind`)
	}

	if amount == 0 {
		r.finished = true
	}

	if r.bw != nil {
		r.bw.AppendReadBytes(amount)
	}

	return amount, nil
}

func (r *BodyReader) readHttp2Chunk(ctx context.Context, p []byte) (int, error) {
	chunk, err := r.src.h2.NextChunk(ctx)
	if err != nil && err != io.EOF {
		return 0, errors.Wrap(err, `Http2 next chunk fail`)
	}

	if len(chunk) == 0 {
		return 0, nil
	}

	// credit is chunk granular: the full size goes back the moment the
	// chunk is received, not as the caller consumes it.
	if err := r.src.h2.ReleaseCredit(len(chunk)); err != nil {
		// best effort: the transport may already be torn down, and the
		// bytes are here either way.
		logrus.WithError(err).Warn(`Http2 release credit fail`)
	}

	br := &chunkReader{chunk: chunk}
	n := br.read(p)

	// if any is left, keep it for later.
	if br.len() > 0 {
		r.leftover = br
	}

	return n, nil
}
