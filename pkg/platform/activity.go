package platform

import (
	"context"
	"log/slog"
	"sync"

	"github.com/modelsaur/storagegate/pkg/errors"
	"github.com/modelsaur/storagegate/pkg/gate"
)

// Activity routes the native activity's callbacks into a gate. It is the only
// code that knows both the channel protocol and the gate.
type Activity struct {
	ctx    context.Context
	gate   *gate.Gate
	host   *Host
	logger *slog.Logger

	channel *MethodChannel
	dialogs *EventChannel

	mu  sync.Mutex
	sub *Subscription
}

// NewActivity creates an Activity for g. ctx is passed to the gate on every
// callback.
func NewActivity(ctx context.Context, g *gate.Gate, host *Host, logger *slog.Logger) *Activity {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activity{
		ctx:     ctx,
		gate:    g,
		host:    host,
		logger:  logger,
		channel: NewMethodChannel(ActivityChannel),
		dialogs: NewEventChannel(DialogChannel),
	}
}

// Attach installs the activity's channel handlers.
func (a *Activity) Attach() {
	a.channel.SetHandler(a.handleCall)

	sub := a.dialogs.Listen(EventHandler{
		OnEvent: a.handleDialogEvent,
		OnError: func(err error) {
			errors.Report(&errors.GateError{
				Op:      "activity.dialogStream",
				Kind:    errors.KindPlatform,
				Channel: DialogChannel,
				Err:     err,
			})
		},
	})

	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()
}

// Detach removes the activity's channel handlers.
func (a *Activity) Detach() {
	a.channel.SetHandler(nil)
	a.mu.Lock()
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()
	if sub != nil {
		sub.Cancel()
	}
}

func (a *Activity) handleCall(method string, args any) (any, error) {
	switch method {
	case "onCreate":
		if sdk, ok := toInt(parseMap(args)["sdkInt"]); ok {
			a.host.SetSDKVersion(sdk)
		}
		runOnUI("activity.onCreate", func() {
			if err := a.gate.OnStart(a.ctx); err != nil {
				a.logger.Error("permission gate start failed", "err", err)
			}
		})
		return nil, nil

	case "onRequestPermissionsResult":
		res, ok := parseResult(args)
		if !ok {
			reportParse("activity.onRequestPermissionsResult", ActivityChannel, "PermissionResult", args)
			return nil, ErrInvalidArguments
		}
		runOnUI("activity.onRequestPermissionsResult", func() {
			a.gate.OnPermissionResult(res)
		})
		return nil, nil

	default:
		return nil, ErrMethodNotFound
	}
}

func (a *Activity) handleDialogEvent(data any) {
	m := parseMap(data)
	code, ok := toInt(m["code"])
	action := gate.DialogAction(parseString(m["action"]))
	if !ok || (action != gate.DialogAcknowledged && action != gate.DialogDismissed) {
		reportParse("activity.dialogEvent", DialogChannel, "DialogAction", data)
		return
	}
	runOnUI("activity.dialogEvent", func() {
		if err := a.gate.OnDialogAction(a.ctx, gate.RequestCode(code), action); err != nil {
			a.logger.Error("permission request failed", "code", code, "err", err)
		}
	})
}

// parseResult decodes {requestCode, permissions, grantResults}.
func parseResult(args any) (gate.Result, bool) {
	m := parseMap(args)
	if m == nil {
		return gate.Result{}, false
	}
	code, ok := toInt(m["requestCode"])
	if !ok {
		return gate.Result{}, false
	}
	names, ok := parseStrings(m["permissions"])
	if !ok {
		return gate.Result{}, false
	}
	grants, ok := parseInts(m["grantResults"])
	if !ok {
		return gate.Result{}, false
	}

	res := gate.Result{Code: gate.RequestCode(code)}
	for _, n := range names {
		res.Permissions = append(res.Permissions, gate.Permission(n))
	}
	for _, g := range grants {
		res.Grants = append(res.Grants, gate.GrantResult(g))
	}
	return res, true
}

func reportParse(op, channel, dataType string, got any) {
	errors.Report(&errors.GateError{
		Op:      op,
		Kind:    errors.KindParsing,
		Channel: channel,
		Err: &errors.ParseError{
			Channel:  channel,
			DataType: dataType,
			Got:      got,
		},
	})
}
