package hreq

import (
	"go.uber.org/atomic"
)

type (
	// BandwidthMonitor counts body bytes as they are read off a source. The
	// reader appends, a monitoring goroutine may read the total at any time.
	BandwidthMonitor struct {
		readBytes atomic.Int64
	}
)

func (m *BandwidthMonitor) AppendReadBytes(n int) {
	m.readBytes.Add(int64(n))
}

func (m *BandwidthMonitor) TotalReadBytes() int64 {
	return m.readBytes.Load()
}
