package hreq

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAllCodec(t *testing.T, c *BodyCodec, bufSize int) []byte {
	t.Helper()

	var got []byte
	p := make([]byte, bufSize)
	for {
		n, err := c.Read(context.Background(), p)
		got = append(got, p[:n]...)
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
	}
}

// encodeBody runs body through an Encode codec and returns the compressed
// representation.
func encodeBody(t *testing.T, body []byte, encoding string) []byte {
	t.Helper()

	reader := NewBodyReader(BodyFromReader(bytes.NewReader(body)), false)
	c := CodecFromEncoding(reader, encoding, false)
	defer func() {
		require.NoError(t, c.Close())
	}()

	return readAllCodec(t, c, 4096)
}

func TestBodyCodecDeferredMisusePanics(t *testing.T) {
	c := NewDeferredCodec(BodyFromReader(strings.NewReader(`abc`)), false)

	require.Panics(t, func() {
		_, _ = c.Read(context.Background(), make([]byte, 16))
	})
	require.Panics(t, func() {
		_, _ = c.BufferedRead(context.Background())
	})
	require.Panics(t, func() {
		c.Consume(1)
	})
}

func TestBodyCodecActivateOnce(t *testing.T) {
	c := NewDeferredCodec(BodyFromReader(strings.NewReader(`abc`)), false)
	require.Equal(t, `defer`, c.String())

	c.Activate(`gzip`, true)
	require.Equal(t, `gzip_dec`, c.String())

	require.Panics(t, func() {
		c.Activate(`gzip`, true)
	})
}

func TestBodyCodecUnknownEncodingPassesThrough(t *testing.T) {
	reader := NewBodyReader(BodyFromReader(strings.NewReader(`hello world`)), false)
	c := CodecFromEncoding(reader, `zstd`, true)

	require.Equal(t, `pass`, c.String())
	require.False(t, c.AffectsContentSize())
	require.Equal(t, `hello world`, string(readAllCodec(t, c, 4)))
}

func TestBodyCodecPass(t *testing.T) {
	reader := NewBodyReader(BodyFromReader(strings.NewReader(`hello world`)), false)
	c := CodecFromEncoding(reader, ``, true)

	view, err := c.BufferedRead(context.Background())
	require.NoError(t, err)
	require.Equal(t, `hello world`, string(view))

	c.Consume(6)
	require.Equal(t, `world`, string(readAllCodec(t, c, 64)))
}

func TestBodyCodecRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		`empty`: nil,
		`small`: patternBody(1000),
		// bigger than the max buffer, forcing several refill cycles.
		`large`: patternBody(3 * 1024 * 1024),
	}

	for _, encoding := range []string{`gzip`, `br`} {
		for name, body := range payloads {
			t.Run(encoding+`/`+name, func(t *testing.T) {
				compressed := encodeBody(t, body, encoding)
				require.NotEmpty(t, compressed)

				reader := NewBodyReader(BodyFromReader(bytes.NewReader(compressed)), false)
				c := CodecFromEncoding(reader, encoding, true)
				defer func() {
					require.NoError(t, c.Close())
				}()

				got := readAllCodec(t, c, 8192)
				require.True(t, bytes.Equal(body, got))
			})
		}
	}
}

func TestBodyCodecDecodeBufferedReadAndConsume(t *testing.T) {
	body := patternBody(5000)
	compressed := encodeBody(t, body, `gzip`)

	reader := NewBodyReader(BodyFromReader(bytes.NewReader(compressed)), false)
	c := CodecFromEncoding(reader, `gzip`, true)
	ctx := context.Background()

	var got []byte
	for {
		view, err := c.BufferedRead(ctx)
		require.NoError(t, err)
		if len(view) == 0 {
			break
		}

		// consume in deliberately odd steps.
		n := len(view)/2 + 1
		got = append(got, view[:n]...)
		c.Consume(n)
	}

	require.Equal(t, body, got)
	require.NoError(t, c.Close())
}

func TestBodyCodecAffectsContentSize(t *testing.T) {
	tests := []struct {
		encoding   string
		isIncoming bool
		affects    bool
	}{
		{``, true, false},
		{`unknown`, true, false},
		{`gzip`, true, true},
		{`gzip`, false, true},
		{`br`, true, true},
		{`br`, false, true},
	}

	for _, tt := range tests {
		reader := NewBodyReader(EmptyBody(), false)
		c := CodecFromEncoding(reader, tt.encoding, tt.isIncoming)
		require.Equal(t, tt.affects, c.AffectsContentSize(), `encoding %q`, tt.encoding)
	}

	require.False(t, NewDeferredCodec(EmptyBody(), false).AffectsContentSize())
}

func TestBodyCodecPrebufferBypassesTransform(t *testing.T) {
	body := patternBody(2000)
	compressed := encodeBody(t, body, `gzip`)

	reader := NewBodyReader(BodyFromReader(bytes.NewReader(compressed)), true)
	c := CodecFromEncoding(reader, `gzip`, true)

	// the probe sees the raw source: the compressed length, not the
	// decoded one.
	n, complete, err := c.AttemptPrebuffer(context.Background())
	require.NoError(t, err)
	require.True(t, complete)
	require.Equal(t, len(compressed), n)

	// delivery still decodes.
	require.Equal(t, body, readAllCodec(t, c, 512))
	require.NoError(t, c.Close())
}

func TestBodyCodecIntoDeferred(t *testing.T) {
	reader := NewBodyReader(BodyFromReader(strings.NewReader(`hello`)), false)
	c := CodecFromEncoding(reader, ``, true)

	c = c.IntoDeferred()
	require.Equal(t, `defer`, c.String())

	require.Panics(t, func() {
		c.IntoDeferred()
	})

	c.Activate(``, true)
	require.Equal(t, `hello`, string(readAllCodec(t, c, 16)))
}

func TestBodyCodecCloseIdempotent(t *testing.T) {
	body := patternBody(100)
	reader := NewBodyReader(BodyFromReader(bytes.NewReader(body)), false)
	c := CodecFromEncoding(reader, `gzip`, false)

	_ = readAllCodec(t, c, 64)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
