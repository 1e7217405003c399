package gate

// Permission is a platform-defined permission identifier.
type Permission string

// WriteExternalStorage is the Android permission for writing shared storage.
const WriteExternalStorage Permission = "android.permission.WRITE_EXTERNAL_STORAGE"

// RequestCode correlates an asynchronous permission result with the request
// that caused it.
type RequestCode int

// WriteStorageRequest is the correlation code for the storage-write request.
const WriteStorageRequest RequestCode = 999

// RuntimePermissionsSDK is the first Android API level that enforces runtime
// permission grants.
const RuntimePermissionsSDK = 23

// Status is the state of a gated permission.
type Status string

const (
	// StatusUnknown means no request has been issued, or the justification
	// dialog was dismissed.
	StatusUnknown Status = "unknown"

	// StatusPending means the request was issued and the result has not arrived.
	StatusPending Status = "pending"

	// StatusGranted means the host reported a grant.
	StatusGranted Status = "granted"

	// StatusDenied means the host reported a denial.
	StatusDenied Status = "denied"
)

// IsTerminal reports whether s is granted or denied.
func (s Status) IsTerminal() bool {
	return s == StatusGranted || s == StatusDenied
}

// GrantResult is the host's outcome for one permission in a result.
type GrantResult int

const (
	// Granted matches PackageManager.PERMISSION_GRANTED.
	Granted GrantResult = 0
	// Denied matches PackageManager.PERMISSION_DENIED.
	Denied GrantResult = -1
)

// Request describes one permission check.
type Request struct {
	Permission    Permission
	Justification string
	Code          RequestCode
}

// WriteStorage is the request issued at start on runtime-permission platforms.
var WriteStorage = Request{
	Permission:    WriteExternalStorage,
	Justification: "Granting write access allows your designs to be saved.",
	Code:          WriteStorageRequest,
}

// Result is a permission result delivered by the host. Permissions and
// Grants are parallel.
type Result struct {
	Code        RequestCode
	Permissions []Permission
	Grants      []GrantResult
}

// Granted reports whether the first permission in the result was granted.
// An empty result, which the host reports when the prompt is interrupted,
// counts as denied.
func (r Result) Granted() bool {
	return len(r.Grants) > 0 && r.Grants[0] == Granted
}

// DialogAction is the user's response to the justification dialog.
type DialogAction string

const (
	// DialogAcknowledged means the user tapped the acknowledgement button.
	DialogAcknowledged DialogAction = "ack"
	// DialogDismissed means the dialog was closed without acknowledgement.
	DialogDismissed DialogAction = "dismiss"
)

// Dialog is the justification prompt shown before the host consent prompt.
type Dialog struct {
	Code     RequestCode
	Message  string
	AckLabel string
}
