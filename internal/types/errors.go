package types

import "errors"

// Failure taxonomy. Concrete errors wrap one of these; match with errors.Is.
var (
	ErrPermissionDenied        = errors.New("microphone permission denied")
	ErrDeviceUnavailable       = errors.New("audio input device unavailable")
	ErrOutputDeviceUnavailable = errors.New("audio output device unavailable")
	ErrStorageWriteFailure     = errors.New("storage write failure")
	ErrAssetUnreadable         = errors.New("audio asset unreadable")
	ErrDecodeFailure           = errors.New("audio decode failure")
	ErrInvalidState            = errors.New("invalid state")
	ErrNotFound                = errors.New("not found")
)

var taxonomy = []struct {
	err  error
	code string
}{
	{ErrPermissionDenied, "permission_denied"},
	{ErrDeviceUnavailable, "device_unavailable"},
	{ErrOutputDeviceUnavailable, "output_device_unavailable"},
	{ErrStorageWriteFailure, "storage_write_failure"},
	{ErrAssetUnreadable, "asset_unreadable"},
	{ErrDecodeFailure, "decode_failure"},
	{ErrInvalidState, "invalid_state"},
	{ErrNotFound, "not_found"},
}

// ErrorCode maps err to its taxonomy code, or "internal" when it wraps none.
func ErrorCode(err error) string {
	for _, t := range taxonomy {
		if errors.Is(err, t.err) {
			return t.code
		}
	}
	return "internal"
}
