package ulog

import "errors"

// Sentinel errors returned synchronously from Open/OpenStdOut/
// SetRingBufferSize/SetArchiveSettings, wrapped with fmt.Errorf("...: %w")
// at the call site exactly as xlog.New wraps os.MkdirAll and
// rlog.NewWriter failures. Callers compare with errors.Is.
var (
	ErrAlreadyOpen            = errors.New("ulog: logger already open")
	ErrClosed                 = errors.New("ulog: logger closed")
	ErrInvalidRingSize        = errors.New("ulog: invalid ring buffer size")
	ErrInvalidArchiveSettings = errors.New("ulog: invalid archive settings")
	ErrSpawnFailed            = errors.New("ulog: failed to spawn writer process")
	ErrMapFailed              = errors.New("ulog: failed to map shared region")
	ErrMessageTooLarge        = errors.New("ulog: message exceeds ring capacity")
)
