package gate

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

type hostRequest struct {
	perms []Permission
	code  RequestCode
}

// fakeHost records every outbound interaction. Responders, when set, answer
// synchronously the way a host on the same UI loop would.
type fakeHost struct {
	mu         sync.Mutex
	sdk        int
	granted    map[Permission]bool
	checkErr   error
	dialogErr  error
	requestErr error

	checks   []Permission
	dialogs  []Dialog
	requests []hostRequest

	onDialog  func(Dialog)
	onRequest func(hostRequest)
}

func newFakeHost(sdk int) *fakeHost {
	return &fakeHost{sdk: sdk, granted: make(map[Permission]bool)}
}

func (h *fakeHost) SDKVersion() int {
	return h.sdk
}

func (h *fakeHost) CheckPermission(ctx context.Context, p Permission) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, p)
	if h.checkErr != nil {
		return false, h.checkErr
	}
	return h.granted[p], nil
}

func (h *fakeHost) ShowDialog(ctx context.Context, d Dialog) error {
	h.mu.Lock()
	h.dialogs = append(h.dialogs, d)
	err := h.dialogErr
	respond := h.onDialog
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if respond != nil {
		respond(d)
	}
	return nil
}

func (h *fakeHost) RequestPermissions(ctx context.Context, perms []Permission, code RequestCode) error {
	h.mu.Lock()
	req := hostRequest{perms: perms, code: code}
	h.requests = append(h.requests, req)
	err := h.requestErr
	respond := h.onRequest
	h.mu.Unlock()
	if err != nil {
		return err
	}
	if respond != nil {
		respond(req)
	}
	return nil
}

func (h *fakeHost) interactions() (checks, dialogs, requests int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.checks), len(h.dialogs), len(h.requests)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(host Host, opts ...Option) *Gate {
	return New(host, append([]Option{WithLogger(discardLogger())}, opts...)...)
}
