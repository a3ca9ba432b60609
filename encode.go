package hreq

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/bytebufferpool"
)

type (
	// encodeReader compresses on the pull: each Read drains plain bytes
	// from the body reader through the compressor into a pooled staging
	// buffer and serves the compressed output. When the source ends, the
	// compressor is closed so the trailer is flushed before io.EOF.
	encodeReader struct {
		src     io.Reader
		zw      io.WriteCloser
		out     *bytebufferpool.ByteBuffer
		outOff  int
		srcDone bool
		scratch []byte
	}
)

func newEncodeReader(src io.Reader, encoding string) *encodeReader {
	e := &encodeReader{
		src:     src,
		out:     bytebufferpool.Get(),
		scratch: make([]byte, 8*1024),
	}

	switch encoding {
	case `gzip`:
		e.zw = gzip.NewWriter(e.out)
	case `br`:
		e.zw = brotli.NewWriter(e.out)
	default:
		panic(`unknown encoder encoding ` + encoding)
	}

	return e
}

func (e *encodeReader) Read(p []byte) (int, error) {
	if e.out == nil {
		return 0, io.ErrClosedPipe
	}

	for e.outOff >= len(e.out.B) {
		if e.srcDone {
			return 0, io.EOF
		}

		// everything staged was served, start a fresh batch.
		e.out.Reset()
		e.outOff = 0

		n, err := e.src.Read(e.scratch)
		if n > 0 {
			if _, werr := e.zw.Write(e.scratch[:n]); werr != nil {
				return 0, werr
			}
		}
		if err == io.EOF {
			e.srcDone = true
			if cerr := e.zw.Close(); cerr != nil {
				return 0, cerr
			}
		} else if err != nil {
			return 0, err
		}
	}

	n := copy(p, e.out.B[e.outOff:])
	e.outOff += n
	return n, nil
}

func (e *encodeReader) Close() error {
	if e.out == nil {
		return nil
	}

	var err error
	if !e.srcDone {
		e.srcDone = true
		err = e.zw.Close()
	}

	bytebufferpool.Put(e.out)
	e.out = nil

	return err
}
