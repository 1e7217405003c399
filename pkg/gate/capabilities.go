package gate

import "sync/atomic"

// Capabilities records which sensitive capabilities are currently available.
// It is safe for concurrent use; readers on any goroutine observe the most
// recent write.
type Capabilities struct {
	write atomic.Bool
}

// CanWrite reports whether external storage writes are permitted.
func (c *Capabilities) CanWrite() bool {
	return c.write.Load()
}

func (c *Capabilities) setWrite(granted bool) {
	c.write.Store(granted)
}
