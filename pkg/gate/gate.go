// Package gate gates external storage writes behind the runtime permission
// flow of the host platform.
//
// A Gate is driven by hooks the host invokes: OnStart when the activity is
// created, OnDialogAction when the user answers the justification dialog, and
// OnPermissionResult when the host consent prompt returns. The outcome is
// published through Capabilities, which any goroutine may poll.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDismissed is the resolution of a request whose justification dialog
	// was closed without acknowledgement. No host request was issued.
	ErrDismissed = errors.New("gate: justification dialog dismissed")

	// ErrTimeout is returned by Wait when its context deadline passes first.
	ErrTimeout = errors.New("gate: wait timed out")

	// ErrCanceled is returned by Wait when its context is canceled first.
	ErrCanceled = errors.New("gate: wait canceled")
)

// Host is the platform side of the permission flow.
type Host interface {
	// SDKVersion returns the platform API level.
	SDKVersion() int

	// CheckPermission reports whether p is already granted.
	CheckPermission(ctx context.Context, p Permission) (bool, error)

	// ShowDialog presents the justification dialog. The user's answer is
	// delivered later through Gate.OnDialogAction.
	ShowDialog(ctx context.Context, d Dialog) error

	// RequestPermissions issues the host consent prompt. The outcome is
	// delivered later through Gate.OnPermissionResult.
	RequestPermissions(ctx context.Context, perms []Permission, code RequestCode) error
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithStorageRequest replaces the request issued by OnStart.
func WithStorageRequest(req Request) Option {
	return func(g *Gate) {
		g.storage = req
	}
}

// WithThreshold sets the API level at which runtime grants are enforced.
func WithThreshold(sdk int) Option {
	return func(g *Gate) {
		g.threshold = sdk
	}
}

// WithAckLabel sets the label of the dialog's acknowledgement button.
func WithAckLabel(label string) Option {
	return func(g *Gate) {
		g.ackLabel = label
	}
}

// WithFallback sets the handler for results carrying a code the gate did not
// issue.
func WithFallback(fn func(Result)) Option {
	return func(g *Gate) {
		g.fallback = fn
	}
}

// Gate tracks runtime permission requests and publishes the storage-write
// outcome. It must not be copied after first use.
type Gate struct {
	host      Host
	caps      Capabilities
	storage   Request
	threshold int
	ackLabel  string
	fallback  func(Result)
	logger    *slog.Logger

	pending *xsync.Map[RequestCode, *Pending]
	flights singleflight.Group

	mu        sync.Mutex
	states    map[RequestCode]Status
	listeners map[int]func(RequestCode, Status)
	nextID    int
}

// New creates a Gate bound to host. Write access is reported unavailable
// until OnStart runs.
func New(host Host, opts ...Option) *Gate {
	g := &Gate{
		host:      host,
		storage:   WriteStorage,
		threshold: RuntimePermissionsSDK,
		ackLabel:  "OK",
		logger:    slog.Default(),
		pending:   xsync.NewMap[RequestCode, *Pending](),
		states:    make(map[RequestCode]Status),
		listeners: make(map[int]func(RequestCode, Status)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.states[g.storage.Code] = StatusUnknown
	return g
}

// Capabilities returns the capability cell owned by the gate.
func (g *Gate) Capabilities() *Capabilities {
	return &g.caps
}

// StorageRequest returns the request issued by OnStart.
func (g *Gate) StorageRequest() Request {
	return g.storage
}

// OnStart runs once when the host creates the activity. Below the runtime
// threshold write access is assumed; otherwise the storage request is checked
// and, if needed, the justification dialog is shown.
func (g *Gate) OnStart(ctx context.Context) error {
	sdk := g.host.SDKVersion()
	if sdk < g.threshold {
		g.caps.setWrite(true)
		g.setStatus(g.storage.Code, StatusGranted)
		g.logger.Debug("runtime permissions not enforced", "sdk", sdk)
		return nil
	}

	g.caps.setWrite(false)
	granted, _, err := g.CheckAndRequest(ctx, g.storage)
	if err != nil {
		return err
	}
	if granted {
		g.caps.setWrite(true)
		g.setStatus(g.storage.Code, StatusGranted)
	}
	return nil
}

// CheckAndRequest returns true if req.Permission is already granted, without
// showing anything. Otherwise it shows the justification dialog and returns
// false with the Pending continuation of the request. A false return means
// the answer is not known yet, not that it was denied.
//
// While a request with the same code is outstanding, the existing Pending is
// returned and no second dialog is shown.
func (g *Gate) CheckAndRequest(ctx context.Context, req Request) (bool, *Pending, error) {
	g.track(req.Code)

	granted, err := g.host.CheckPermission(ctx, req.Permission)
	if err != nil {
		return false, nil, fmt.Errorf("check %s: %w", req.Permission, err)
	}
	if granted {
		return true, nil, nil
	}

	created := false
	p, _ := g.pending.Compute(req.Code, func(old *Pending, loaded bool) (*Pending, xsync.ComputeOp) {
		if loaded {
			return old, xsync.CancelOp
		}
		created = true
		return newPending(req), xsync.UpdateOp
	})
	if !created {
		return false, p, nil
	}

	dialog := Dialog{Code: req.Code, Message: req.Justification, AckLabel: g.ackLabel}
	if err := g.host.ShowDialog(ctx, dialog); err != nil {
		g.dropPending(req.Code, p)
		p.resolve(StatusUnknown, err)
		return false, nil, fmt.Errorf("show dialog for %s: %w", req.Permission, err)
	}
	g.logger.Info("permission justification shown",
		"permission", string(req.Permission),
		"code", int(req.Code),
	)
	return false, p, nil
}

// OnDialogAction records the user's answer to the justification dialog for
// code. Acknowledgement issues exactly one host request; dismissal issues
// none and leaves the status unknown.
func (g *Gate) OnDialogAction(ctx context.Context, code RequestCode, action DialogAction) error {
	p, ok := g.pending.Load(code)
	if !ok {
		g.logger.Warn("dialog action without outstanding request",
			"code", int(code),
			"action", string(action),
		)
		return nil
	}

	switch action {
	case DialogAcknowledged:
		if !p.issued.CompareAndSwap(false, true) {
			return nil
		}
		g.setStatus(code, StatusPending)
		err := g.host.RequestPermissions(ctx, []Permission{p.req.Permission}, code)
		if err != nil {
			g.dropPending(code, p)
			g.setStatus(code, StatusUnknown)
			p.resolve(StatusUnknown, err)
			return fmt.Errorf("request %s: %w", p.req.Permission, err)
		}
		g.logger.Debug("permission requested", "permission", string(p.req.Permission), "code", int(code))
		return nil

	case DialogDismissed:
		if p.issued.Load() {
			return nil
		}
		g.dropPending(code, p)
		g.setStatus(code, StatusUnknown)
		p.resolve(StatusUnknown, ErrDismissed)
		g.logger.Info("permission justification dismissed", "code", int(code))
		return nil

	default:
		return fmt.Errorf("gate: unknown dialog action %q", action)
	}
}

// OnPermissionResult records a host permission result. Results for codes the
// gate never issued are handed to the fallback handler and change nothing.
func (g *Gate) OnPermissionResult(res Result) {
	if !g.tracks(res.Code) {
		g.logger.Debug("permission result for unrecognized code", "code", int(res.Code))
		if g.fallback != nil {
			g.fallback(res)
		}
		return
	}

	status := StatusDenied
	if res.Granted() {
		status = StatusGranted
	}
	if res.Code == g.storage.Code {
		g.caps.setWrite(status == StatusGranted)
	}
	g.setStatus(res.Code, status)
	if p, ok := g.pending.LoadAndDelete(res.Code); ok {
		p.resolve(status, nil)
	}
	g.logger.Info("permission result",
		"code", int(res.Code),
		"status", string(status),
	)
}

// Request runs CheckAndRequest and waits for the outcome. Concurrent callers
// for the same code share one flow and one outcome.
func (g *Gate) Request(ctx context.Context, req Request) (Status, error) {
	v, err, _ := g.flights.Do(strconv.Itoa(int(req.Code)), func() (any, error) {
		granted, p, err := g.CheckAndRequest(ctx, req)
		if err != nil {
			return StatusUnknown, err
		}
		if granted {
			if req.Code == g.storage.Code {
				g.caps.setWrite(true)
			}
			g.setStatus(req.Code, StatusGranted)
			return StatusGranted, nil
		}
		return p.Wait(ctx)
	})
	status, ok := v.(Status)
	if !ok {
		status = StatusUnknown
	}
	return status, err
}

// State returns the status of the request with the given code.
func (g *Gate) State(code RequestCode) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.states[code]; ok {
		return s
	}
	return StatusUnknown
}

// Listen registers handler for status changes. Returns a function that
// removes it.
func (g *Gate) Listen(handler func(RequestCode, Status)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = handler
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.listeners, id)
		g.mu.Unlock()
	}
}

func (g *Gate) track(code RequestCode) {
	g.mu.Lock()
	if _, ok := g.states[code]; !ok {
		g.states[code] = StatusUnknown
	}
	g.mu.Unlock()
}

func (g *Gate) tracks(code RequestCode) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.states[code]
	return ok
}

func (g *Gate) setStatus(code RequestCode, status Status) {
	g.mu.Lock()
	if g.states[code] == status {
		g.mu.Unlock()
		return
	}
	g.states[code] = status
	handlers := make([]func(RequestCode, Status), 0, len(g.listeners))
	for _, h := range g.listeners {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()

	for _, h := range handlers {
		h(code, status)
	}
}

// dropPending removes p only if it is still the outstanding request for code.
func (g *Gate) dropPending(code RequestCode, p *Pending) {
	g.pending.Compute(code, func(old *Pending, loaded bool) (*Pending, xsync.ComputeOp) {
		if loaded && old == p {
			return nil, xsync.DeleteOp
		}
		return old, xsync.CancelOp
	})
}
