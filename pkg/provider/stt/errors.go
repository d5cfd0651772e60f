package stt

import "errors"

// Error taxonomy shared by all adapters. Adapters wrap one of these with
// context; callers classify with errors.Is.
var (
	// ErrConfiguration reports a missing or invalid credential or setting.
	ErrConfiguration = errors.New("stt: configuration error")

	// ErrTransport reports a connect, send or receive failure.
	ErrTransport = errors.New("stt: transport error")

	// ErrProtocol reports a malformed vendor message.
	ErrProtocol = errors.New("stt: protocol error")

	// ErrJobFailed reports that an asynchronous job ended in failure.
	ErrJobFailed = errors.New("stt: job failed")

	// ErrTimeout reports an exhausted poll budget or finalize drain.
	ErrTimeout = errors.New("stt: timeout")

	// ErrStreamingNotSupported is returned by [Unsupported.Start].
	ErrStreamingNotSupported = errors.New("stt: streaming not supported")
)
