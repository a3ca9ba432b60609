package hreq

import (
	"context"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	codecState int

	// BodyCodec layers an optional content-encoding transform over a
	// BodyReader. It starts Deferred when the negotiated encoding is not
	// known yet and transitions exactly once via Activate.
	BodyCodec struct {
		state    codecState
		encoding string
		reader   *BodyReader

		// transform states buffer the transform output here so the
		// buffered-read contract survives the extra layer.
		ctxr     *ctxReader
		xform    io.Reader
		xclose   func() error
		xeof     bool
		buf      *growBuf
		consumed int
	}

	// ctxReader adapts the context-aware BodyReader to plain io.Reader for
	// the compression layer. ctx is swapped in per call.
	ctxReader struct {
		ctx context.Context
		r   *BodyReader
	}
)

const (
	codecDeferred codecState = iota
	codecPass
	codecDecode
	codecEncode
)

// NewDeferredCodec builds the codec before the content-encoding is known.
// Reading it before Activate is a contract violation and panics.
func NewDeferredCodec(src BodySource, prebuffer bool) *BodyCodec {
	return &BodyCodec{
		state:  codecDeferred,
		reader: NewBodyReader(src, prebuffer),
	}
}

// CodecFromEncoding selects the codec state from the negotiated
// content-encoding and the direction: incoming bodies are decoded, outgoing
// encoded. Unrecognized encodings pass through unmodified with a warning
// rather than failing the exchange.
func CodecFromEncoding(reader *BodyReader, encoding string, isIncoming bool) *BodyCodec {
	logrus.Debugf(`Body codec from encoding: %q`, encoding)

	c := &BodyCodec{reader: reader, encoding: encoding}

	switch encoding {
	case ``:
		c.state = codecPass
	case `gzip`, `br`:
		if isIncoming {
			c.state = codecDecode
		} else {
			c.state = codecEncode
		}
		c.ctxr = &ctxReader{ctx: context.Background(), r: reader}
		c.buf = newGrowBuf(StartBufSize, MaxBufSize)
	default:
		logrus.Warnf(`Unknown content-encoding: %q`, encoding)
		c.state = codecPass
		c.encoding = ``
	}

	return c
}

// Activate performs the one-shot Deferred transition once the encoding is
// known. Activating twice is a contract violation.
func (c *BodyCodec) Activate(encoding string, isIncoming bool) {
	if c.state != codecDeferred {
		panic(`Activate() on a finalized body codec`)
	}
	*c = *CodecFromEncoding(c.reader, encoding, isIncoming)
}

// IntoDeferred recovers the innermost BodyReader into a fresh Deferred
// codec, so a server can re-negotiate the encoding after construction.
// Transform resources of the old codec are released.
func (c *BodyCodec) IntoDeferred() *BodyCodec {
	if c.state == codecDeferred {
		panic(`IntoDeferred() on a deferred body codec`)
	}

	reader := c.reader
	if err := c.Close(); err != nil {
		logrus.WithError(err).Warn(`Body codec close fail`)
	}

	return &BodyCodec{state: codecDeferred, reader: reader}
}

// AffectsContentSize reports whether the active transform changes the body
// length, i.e. whether a known content-length can still be trusted.
func (c *BodyCodec) AffectsContentSize() bool {
	switch c.state {
	case codecDeferred, codecPass:
		return false
	case codecDecode, codecEncode:
		return true
	default:
		panic(`unknown body codec state`)
	}
}

// AttemptPrebuffer probes the innermost reader. Transforms are bypassed:
// only the raw source finishing matters for the fits-in-memory call, since
// transform output size is not predictable from input size.
func (c *BodyCodec) AttemptPrebuffer(ctx context.Context) (int, bool, error) {
	return c.reader.AttemptPrebuffer(ctx)
}

// BufferedRead mirrors BodyReader.BufferedRead through the active
// transform. An empty view means end-of-stream.
func (c *BodyCodec) BufferedRead(ctx context.Context) ([]byte, error) {
	switch c.state {
	case codecDeferred:
		panic(`BufferedRead() on a deferred body codec`)

	case codecPass:
		return c.reader.BufferedRead(ctx)

	case codecDecode, codecEncode:
		if c.unconsumedLen() > 0 {
			return c.unconsumed(), nil
		}

		c.consumed = 0
		c.buf.clear()

		if c.xeof {
			return c.unconsumed(), nil
		}

		xf, err := c.transform(ctx)
		if err != nil {
			return nil, err
		}

		for {
			n, err := c.buf.fill(func(spare []byte) (int, error) {
				n, err := xf.Read(spare)
				if err == io.EOF {
					c.xeof = true
					err = nil
				}
				return n, err
			})
			if err != nil {
				return nil, errors.Wrap(err, `Body transform read fail`)
			}
			if n > 0 || c.xeof || c.buf.full() {
				return c.unconsumed(), nil
			}
		}

	default:
		panic(`unknown body codec state`)
	}
}

// Consume advances past n bytes previously returned by BufferedRead.
func (c *BodyCodec) Consume(n int) {
	switch c.state {
	case codecDeferred:
		panic(`Consume() on a deferred body codec`)
	case codecPass:
		c.reader.Consume(n)
	case codecDecode, codecEncode:
		c.consumed += n
		if c.consumed > c.buf.len() {
			panic(`Consume() past the buffered length`)
		}
	default:
		panic(`unknown body codec state`)
	}
}

// Read copies transformed bytes into p, returning io.EOF once drained.
func (c *BodyCodec) Read(ctx context.Context, p []byte) (int, error) {
	view, err := c.BufferedRead(ctx)
	if err != nil {
		return 0, err
	}
	if len(view) == 0 {
		return 0, io.EOF
	}

	n := copy(p, view)
	c.Consume(n)
	return n, nil
}

// Close releases transform resources. Safe to call more than once.
func (c *BodyCodec) Close() error {
	if c.xclose == nil {
		return nil
	}
	xclose := c.xclose
	c.xclose = nil
	return errors.Wrap(xclose(), `Close transform fail`)
}

func (c *BodyCodec) String() string {
	switch c.state {
	case codecDeferred:
		return `defer`
	case codecPass:
		return `pass`
	case codecDecode:
		return c.encoding + `_dec`
	case codecEncode:
		return c.encoding + `_enc`
	default:
		panic(`unknown body codec state`)
	}
}

func (c *BodyCodec) unconsumed() []byte {
	return c.buf.bytes()[c.consumed:]
}

func (c *BodyCodec) unconsumedLen() int {
	return c.buf.len() - c.consumed
}

// transform lazily builds the compression layer on first use. Lazy because
// the gzip decoder reads its header on construction, and that read must run
// under the caller's ctx.
func (c *BodyCodec) transform(ctx context.Context) (io.Reader, error) {
	c.ctxr.ctx = ctx

	if c.xform != nil {
		return c.xform, nil
	}

	switch c.state {
	case codecDecode:
		switch c.encoding {
		case `gzip`:
			zr, err := gzip.NewReader(c.ctxr)
			if err != nil {
				return nil, errors.Wrap(err, `Gzip decoder init fail`)
			}
			c.xform = zr
			c.xclose = zr.Close
		case `br`:
			c.xform = brotli.NewReader(c.ctxr)
		default:
			panic(`unknown decoder encoding ` + c.encoding)
		}

	case codecEncode:
		er := newEncodeReader(c.ctxr, c.encoding)
		c.xform = er
		c.xclose = er.Close

	default:
		panic(`transform() on non-transform body codec`)
	}

	return c.xform, nil
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	return cr.r.Read(cr.ctx, p)
}
