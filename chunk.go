package hreq

type (
	// chunkReader drains one received HTTP/2 DATA payload across as many
	// reads as the caller needs. Leftovers survive in the body reader until
	// the offset catches up with the chunk.
	chunkReader struct {
		chunk []byte
		off   int
	}
)

func (c *chunkReader) len() int {
	return len(c.chunk) - c.off
}

func (c *chunkReader) read(p []byte) int {
	if c.len() == 0 {
		return 0
	}
	n := copy(p, c.chunk[c.off:])
	c.off += n
	return n
}
