package hreq

// Body buffer sizing. The buffer starts small and grows geometrically up to
// MaxBufSize, which caps memory for pathological or malicious bodies.
const (
	StartBufSize = 16 * 1024
	MaxBufSize   = 2 * 1024 * 1024
	MaxPrebuffer = 256 * 1024

	// grow before a fill whenever spare capacity drops below this.
	spareThreshold = 512
)

type (
	// growBuf is a byte buffer filled in place by a caller supplied read
	// function. The filler gets a spare capacity slice by value and the
	// buffer commits whatever length the filler reports, so the filler can
	// never observe bytes outside the spare region.
	growBuf struct {
		buf []byte
		max int
	}
)

func newGrowBuf(initial, max int) *growBuf {
	if initial > max {
		initial = max
	}
	return &growBuf{
		buf: make([]byte, 0, initial),
		max: max,
	}
}

func (b *growBuf) len() int {
	return len(b.buf)
}

func (b *growBuf) bytes() []byte {
	return b.buf
}

func (b *growBuf) full() bool {
	return len(b.buf) == b.max
}

// clear resets length to zero. Storage is retained.
func (b *growBuf) clear() {
	b.buf = b.buf[:0]
}

// fill grows storage if spare capacity runs low, hands the spare region to
// read and commits the reported length. The filler's error is propagated
// with nothing committed.
func (b *growBuf) fill(read func(p []byte) (int, error)) (int, error) {
	b.reserve()

	spare := b.buf[len(b.buf):cap(b.buf)]

	n, err := read(spare)
	if err != nil {
		return 0, err
	}
	if n > len(spare) {
		panic(`growBuf filler reported more bytes than the spare region holds`)
	}

	b.buf = b.buf[:len(b.buf)+n]
	return n, nil
}

func (b *growBuf) reserve() {
	spare := cap(b.buf) - len(b.buf)
	if spare >= spareThreshold || cap(b.buf) >= b.max {
		return
	}

	newCap := cap(b.buf) * 2
	if newCap > b.max {
		newCap = b.max
	}

	grown := make([]byte, len(b.buf), newCap)
	copy(grown, b.buf)
	b.buf = grown
}
