package platform

import (
	"fmt"
	"sync"

	"github.com/modelsaur/storagegate/pkg/errors"
)

// SimBridge is an in-process NativeBridge that plays the Android side of the
// permission flow. Callbacks the OS would post to the UI thread are queued and
// delivered in order by Drain, so nothing re-enters the caller of
// InvokeMethod.
type SimBridge struct {
	// SDK is the reported API level.
	SDK int
	// Acknowledge answers the justification dialog with "ack"; otherwise it
	// is dismissed.
	Acknowledge bool
	// Grant answers the consent prompt with a grant; otherwise a denial.
	Grant bool

	mu      sync.Mutex
	granted map[string]bool
	queue   []func()
	calls   []string
}

// NewSimBridge creates a simulator reporting sdk. Permissions listed in
// granted are already granted at start.
func NewSimBridge(sdk int, granted ...string) *SimBridge {
	b := &SimBridge{SDK: sdk, granted: make(map[string]bool)}
	for _, p := range granted {
		b.granted[p] = true
	}
	return b
}

// Launch queues the activity's onCreate callback.
func (b *SimBridge) Launch() {
	b.post(func() {
		args, _ := DefaultCodec.Encode(map[string]any{"sdkInt": b.SDK})
		if _, err := HandleMethodCall(ActivityChannel, "onCreate", args); err != nil {
			reportSim("sim.onCreate", ActivityChannel, err)
		}
	})
}

// Drain delivers queued callbacks, including any they queue, until the queue
// is empty. It returns the number delivered.
func (b *SimBridge) Drain() int {
	n := 0
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return n
		}
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		next()
		n++
	}
}

// Calls returns the outbound method calls received so far, as "method" names
// in order.
func (b *SimBridge) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// IsGranted reports the simulator's current grant state for permission.
func (b *SimBridge) IsGranted(permission string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted[permission]
}

// InvokeMethod implements NativeBridge.
func (b *SimBridge) InvokeMethod(channel, method string, argsData []byte) ([]byte, error) {
	if channel != PermissionsChannel {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, channel)
	}
	decoded, err := DefaultCodec.Decode(argsData)
	if err != nil {
		return nil, err
	}
	args := parseMap(decoded)

	b.mu.Lock()
	b.calls = append(b.calls, method)
	b.mu.Unlock()

	switch method {
	case "sdkVersion":
		return DefaultCodec.Encode(map[string]any{"sdkInt": b.SDK})

	case "checkSelfPermission":
		return DefaultCodec.Encode(map[string]any{
			"granted": b.IsGranted(parseString(args["permission"])),
		})

	case "showDialog":
		code, ok := toInt(args["code"])
		if !ok {
			return nil, ErrInvalidArguments
		}
		action := "dismiss"
		if b.Acknowledge {
			action = "ack"
		}
		b.post(func() {
			data, _ := DefaultCodec.Encode(map[string]any{"code": code, "action": action})
			if err := HandleEvent(DialogChannel, data); err != nil {
				reportSim("sim.dialog", DialogChannel, err)
			}
		})
		return DefaultCodec.Encode(nil)

	case "requestPermissions":
		code, ok := toInt(args["code"])
		perms, okPerms := parseStrings(args["permissions"])
		if !ok || !okPerms {
			return nil, ErrInvalidArguments
		}
		b.post(func() { b.answer(code, perms) })
		return DefaultCodec.Encode(nil)

	default:
		return nil, ErrMethodNotFound
	}
}

func (b *SimBridge) answer(code int, perms []string) {
	grant := -1
	if b.Grant {
		grant = 0
	}
	grants := make([]int, len(perms))
	b.mu.Lock()
	for i, p := range perms {
		grants[i] = grant
		b.granted[p] = b.Grant
	}
	b.mu.Unlock()

	args, _ := DefaultCodec.Encode(map[string]any{
		"requestCode":  code,
		"permissions":  perms,
		"grantResults": grants,
	})
	if _, err := HandleMethodCall(ActivityChannel, "onRequestPermissionsResult", args); err != nil {
		reportSim("sim.onRequestPermissionsResult", ActivityChannel, err)
	}
}

// StartEventStream implements NativeBridge.
func (b *SimBridge) StartEventStream(string) error { return nil }

// StopEventStream implements NativeBridge.
func (b *SimBridge) StopEventStream(string) error { return nil }

func (b *SimBridge) post(fn func()) {
	b.mu.Lock()
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
}

func reportSim(op, channel string, err error) {
	errors.Report(&errors.GateError{
		Op:      op,
		Kind:    errors.KindPlatform,
		Channel: channel,
		Err:     err,
	})
}
