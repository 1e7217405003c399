package platform

import (
	"sync"

	"github.com/modelsaur/storagegate/pkg/errors"
)

var (
	dispatchMu   sync.RWMutex
	dispatchFunc func(callback func())
)

// RegisterDispatch sets the function used to schedule callbacks on the UI
// thread. Pass nil to run callbacks on the calling goroutine.
func RegisterDispatch(fn func(callback func())) {
	dispatchMu.Lock()
	dispatchFunc = fn
	dispatchMu.Unlock()
}

// Dispatch schedules a callback to run on the UI thread.
// Returns true if the callback was scheduled, false if no dispatch function
// is registered or the callback is nil.
func Dispatch(callback func()) bool {
	dispatchMu.RLock()
	fn := dispatchFunc
	dispatchMu.RUnlock()
	if fn == nil || callback == nil {
		return false
	}
	fn(callback)
	return true
}

// runOnUI runs fn through Dispatch, or inline when no dispatcher is set.
// Panics are recovered and reported under op.
func runOnUI(op string, fn func()) {
	guarded := func() {
		defer errors.Recover(op)
		fn()
	}
	if !Dispatch(guarded) {
		guarded()
	}
}
