package gate

import (
	"context"
	"sync"
	"sync/atomic"
)

// Pending is the continuation of a permission request awaiting the user.
// It resolves exactly once.
type Pending struct {
	req    Request
	done   chan struct{}
	once   sync.Once
	issued atomic.Bool

	status Status
	err    error
}

func newPending(req Request) *Pending {
	return &Pending{req: req, done: make(chan struct{})}
}

// Code returns the correlation code of the request.
func (p *Pending) Code() RequestCode {
	return p.req.Code
}

// Done is closed once the request resolves.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the resolved status, or StatusPending if the request has not
// resolved yet.
func (p *Pending) Result() (Status, error) {
	select {
	case <-p.done:
		return p.status, p.err
	default:
		return StatusPending, nil
	}
}

// Wait blocks until the request resolves or ctx is done. Giving up on the
// wait does not cancel the request.
func (p *Pending) Wait(ctx context.Context) (Status, error) {
	select {
	case <-p.done:
		return p.status, p.err
	case <-ctx.Done():
		// Resolution and cancellation may race.
		if status, err := p.Result(); status != StatusPending {
			return status, err
		}
		if ctx.Err() == context.DeadlineExceeded {
			return StatusPending, ErrTimeout
		}
		return StatusPending, ErrCanceled
	}
}

func (p *Pending) resolve(status Status, err error) bool {
	resolved := false
	p.once.Do(func() {
		p.status = status
		p.err = err
		close(p.done)
		resolved = true
	})
	return resolved
}
