package hreq

import (
	"context"
	"io"
)

type (
	// AsyncReader is a byte source that may wait for bytes to arrive. It
	// honors cancellation through ctx.
	AsyncReader interface {
		Read(ctx context.Context, p []byte) (int, error)
	}

	// Http1Stream is an HTTP/1.1 receive stream. The chunked or
	// length-delimited framing is already dealt with by the transport; what
	// remains is plain asynchronous body bytes.
	Http1Stream interface {
		AsyncReader
	}

	// Http2Stream is an HTTP/2 receive stream yielding discrete DATA
	// payloads. A nil or empty chunk, or io.EOF, ends the stream. Received
	// chunk sizes must be handed back via ReleaseCredit so the peer's flow
	// control window reopens.
	Http2Stream interface {
		NextChunk(ctx context.Context) ([]byte, error)
		ReleaseCredit(n int) error
	}

	sourceKind int

	// BodySource is the closed set of origins body bytes can come from.
	BodySource struct {
		kind  sourceKind
		sync  io.Reader
		async AsyncReader
		h1    Http1Stream
		h2    Http2Stream
	}
)

const (
	sourceEmpty sourceKind = iota
	sourceSync
	sourceAsync
	sourceHttp1
	sourceHttp2
)

// EmptyBody yields end-of-stream immediately.
func EmptyBody() BodySource {
	return BodySource{kind: sourceEmpty}
}

// BodyFromReader wraps a blocking reader. The reader must never report a
// would-block condition; see ErrWouldBlock.
func BodyFromReader(r io.Reader) BodySource {
	return BodySource{kind: sourceSync, sync: r}
}

func BodyFromAsyncReader(r AsyncReader) BodySource {
	return BodySource{kind: sourceAsync, async: r}
}

func BodyFromHttp1(s Http1Stream) BodySource {
	return BodySource{kind: sourceHttp1, h1: s}
}

func BodyFromHttp2(s Http2Stream) BodySource {
	return BodySource{kind: sourceHttp2, h2: s}
}

func (s BodySource) String() string {
	switch s.kind {
	case sourceEmpty:
		return `empty`
	case sourceSync:
		return `sync`
	case sourceAsync:
		return `async`
	case sourceHttp1:
		return `http1`
	case sourceHttp2:
		return `http2`
	default:
		panic(`unknown body source kind`)
	}
}
