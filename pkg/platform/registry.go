package platform

import (
	"fmt"
	"sync/atomic"

	"github.com/modelsaur/storagegate/pkg/errors"
	"github.com/puzpuzpuz/xsync/v4"
)

// channelRegistry holds every channel created in the process, by name.
type channelRegistry struct {
	methods *xsync.Map[string, *MethodChannel]
	events  *xsync.Map[string, *EventChannel]
}

var registry = &channelRegistry{
	methods: xsync.NewMap[string, *MethodChannel](),
	events:  xsync.NewMap[string, *EventChannel](),
}

// NativeBridge defines the interface for calling native platform code.
type NativeBridge interface {
	// InvokeMethod calls a method on the native side.
	InvokeMethod(channel, method string, args []byte) ([]byte, error)

	// StartEventStream tells native to start sending events for a channel.
	StartEventStream(channel string) error

	// StopEventStream tells native to stop sending events for a channel.
	StopEventStream(channel string) error
}

type bridgeBox struct {
	bridge NativeBridge
}

var nativeBridge atomic.Pointer[bridgeBox]

func currentBridge() NativeBridge {
	if box := nativeBridge.Load(); box != nil {
		return box.bridge
	}
	return nil
}

func bridgeConnected() bool {
	return currentBridge() != nil
}

// SetNativeBridge sets the native bridge implementation and starts event
// streams for channels that acquired subscriptions before a bridge was
// available. Startup errors are dispatched to those subscribers.
func SetNativeBridge(bridge NativeBridge) {
	if bridge == nil {
		nativeBridge.Store(nil)
		return
	}
	nativeBridge.Store(&bridgeBox{bridge: bridge})

	registry.events.Range(func(name string, ch *EventChannel) bool {
		ch.mu.Lock()
		shouldStart := len(ch.subscriptions) > 0 && !ch.started
		if shouldStart {
			ch.started = true
		}
		ch.mu.Unlock()

		if shouldStart {
			if err := startEventStream(name); err != nil {
				ch.mu.Lock()
				ch.started = false
				ch.mu.Unlock()
				ch.dispatchError(err)
			}
		}
		return true
	})
}

func invokeNative(channel, method string, args any) (any, error) {
	bridge := currentBridge()
	if bridge == nil {
		return nil, ErrPlatformUnavailable
	}

	argsData, err := DefaultCodec.Encode(args)
	if err != nil {
		return nil, err
	}

	resultData, err := bridge.InvokeMethod(channel, method, argsData)
	if err != nil {
		return nil, err
	}

	return DefaultCodec.Decode(resultData)
}

func startEventStream(channel string) error {
	return eventStreamOp("platform.startEventStream", channel, func(b NativeBridge) error {
		return b.StartEventStream(channel)
	})
}

func stopEventStream(channel string) error {
	return eventStreamOp("platform.stopEventStream", channel, func(b NativeBridge) error {
		return b.StopEventStream(channel)
	})
}

func eventStreamOp(op, channel string, fn func(NativeBridge) error) error {
	err := ErrPlatformUnavailable
	if bridge := currentBridge(); bridge != nil {
		err = fn(bridge)
	}
	if err != nil {
		errors.Report(&errors.GateError{
			Op:      op,
			Kind:    errors.KindPlatform,
			Channel: channel,
			Err:     err,
		})
	}
	return err
}

// HandleMethodCall is called from the bridge when native invokes a Go method.
func HandleMethodCall(channel, method string, argsData []byte) ([]byte, error) {
	ch, ok := registry.methods.Load(channel)
	if !ok {
		return nil, channelNotFound("platform.HandleMethodCall", channel)
	}

	args, err := DefaultCodec.Decode(argsData)
	if err != nil {
		return nil, err
	}

	result, err := ch.handleCall(method, args)
	if err != nil {
		return nil, err
	}

	return DefaultCodec.Encode(result)
}

// HandleEvent is called from the bridge when native sends an event.
func HandleEvent(channel string, eventData []byte) error {
	ch, err := lookupEventChannel("platform.HandleEvent", channel)
	if err != nil {
		return err
	}

	data, err := DefaultCodec.Decode(eventData)
	if err != nil {
		ch.dispatchError(err)
		return err
	}

	ch.dispatchEvent(data)
	return nil
}

// HandleEventError is called from the bridge when an event stream errors.
func HandleEventError(channel string, code, message string) error {
	ch, err := lookupEventChannel("platform.HandleEventError", channel)
	if err != nil {
		return err
	}
	ch.dispatchError(NewChannelError(code, message))
	return nil
}

// HandleEventDone is called from the bridge when an event stream ends.
func HandleEventDone(channel string) error {
	ch, err := lookupEventChannel("platform.HandleEventDone", channel)
	if err != nil {
		return err
	}
	ch.dispatchDone()
	return nil
}

func lookupEventChannel(op, channel string) (*EventChannel, error) {
	ch, ok := registry.events.Load(channel)
	if !ok {
		return nil, channelNotFound(op, channel)
	}
	return ch, nil
}

// channelNotFound reports and returns ErrChannelNotFound for an inbound call
// on a channel nothing on the Go side registered.
func channelNotFound(op, channel string) error {
	err := fmt.Errorf("%w: %s", ErrChannelNotFound, channel)
	errors.Report(&errors.GateError{
		Op:      op,
		Kind:    errors.KindPlatform,
		Channel: channel,
		Err:     err,
	})
	return err
}

// ResetForTest clears the native bridge, the dispatch function and every
// registered channel. This should only be called from tests.
func ResetForTest() {
	nativeBridge.Store(nil)
	RegisterDispatch(nil)
	registry.methods.Clear()
	registry.events.Clear()
}
