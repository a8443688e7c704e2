package domain

import "errors"

// Sentinel errors used across layers. Wrap them with fmt.Errorf("...: %w")
// and test with errors.Is.
var (
	// ErrDecode means the clip bytes are not audio we can decode.
	ErrDecode = errors.New("audio decode failed")
	// ErrEmptyClip means the clip decoded but produced no embedding frames.
	ErrEmptyClip = errors.New("audio clip yields no frames")
	// ErrModelUnavailable is fatal at startup: no classification without a model.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrGateway is returned by messaging gateways.
	ErrGateway = errors.New("messaging gateway error")
	// ErrService is returned by the language-generation and speech services.
	ErrService = errors.New("upstream service error")
	// ErrConfiguration covers dimension mismatches and missing credentials.
	ErrConfiguration = errors.New("configuration error")
	// ErrTimeout marks an external call that ran past its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrNotFound is returned by record and blob stores for unknown ids.
	ErrNotFound = errors.New("not found")
)
