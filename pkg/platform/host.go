package platform

import (
	"context"
	"sync/atomic"

	"github.com/modelsaur/storagegate/pkg/errors"
	"github.com/modelsaur/storagegate/pkg/gate"
)

// Host implements gate.Host over the permissions method channel.
type Host struct {
	channel *MethodChannel
	sdk     atomic.Int64
}

var _ gate.Host = (*Host)(nil)

// NewHost creates a Host and registers its channel.
func NewHost() *Host {
	return &Host{channel: NewMethodChannel(PermissionsChannel)}
}

// SetSDKVersion records the API level reported by the activity, so later
// SDKVersion calls do not cross the bridge.
func (h *Host) SetSDKVersion(sdk int) {
	if sdk > 0 {
		h.sdk.Store(int64(sdk))
	}
}

// SDKVersion returns the platform API level. If native code cannot answer,
// it returns gate.RuntimePermissionsSDK so that runtime checks still happen.
func (h *Host) SDKVersion() int {
	if sdk := h.sdk.Load(); sdk > 0 {
		return int(sdk)
	}

	result, err := h.channel.Invoke("sdkVersion", nil)
	if err != nil {
		errors.Report(&errors.GateError{
			Op:      "host.sdkVersion",
			Kind:    errors.KindPlatform,
			Channel: PermissionsChannel,
			Err:     err,
		})
		return gate.RuntimePermissionsSDK
	}
	sdk, ok := toInt(parseMap(result)["sdkInt"])
	if !ok || sdk <= 0 {
		errors.Report(&errors.GateError{
			Op:      "host.sdkVersion",
			Kind:    errors.KindParsing,
			Channel: PermissionsChannel,
			Err: &errors.ParseError{
				Channel:  PermissionsChannel,
				DataType: "SDKVersion",
				Got:      result,
			},
		})
		return gate.RuntimePermissionsSDK
	}
	h.SetSDKVersion(sdk)
	return sdk
}

// CheckPermission asks native code whether p is granted.
func (h *Host) CheckPermission(ctx context.Context, p gate.Permission) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	result, err := h.channel.Invoke("checkSelfPermission", map[string]any{
		"permission": string(p),
	})
	if err != nil {
		return false, err
	}
	return parseBool(parseMap(result)["granted"]), nil
}

// ShowDialog asks native code to present the justification dialog. The answer
// arrives on DialogChannel.
func (h *Host) ShowDialog(ctx context.Context, d gate.Dialog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := h.channel.Invoke("showDialog", map[string]any{
		"code":     int(d.Code),
		"message":  d.Message,
		"ackLabel": d.AckLabel,
	})
	return err
}

// RequestPermissions asks native code to issue the consent prompt. The
// result arrives as onRequestPermissionsResult on ActivityChannel.
func (h *Host) RequestPermissions(ctx context.Context, perms []gate.Permission, code gate.RequestCode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	_, err := h.channel.Invoke("requestPermissions", map[string]any{
		"permissions": names,
		"code":        int(code),
	})
	return err
}
