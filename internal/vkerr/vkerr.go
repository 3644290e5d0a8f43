// Package vkerr holds the error taxonomy shared by the renderer and the policy that decides
// what happens when a native call fails.
package vkerr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// Configuration errors. These are detected during initialization and abort startup.
var (
	ErrNoMemoryType     = errors.New("no memory type satisfies the requested properties")
	ErrNoSuitableDevice = errors.New("no suitable physical device")
	ErrNoSurfaceFormat  = errors.New("surface reports no formats")
	ErrPoolExhausted    = errors.New("descriptor pool capacity exceeded")
	ErrBadBytecode      = errors.New("shader bytecode is not a sequence of 4-byte words")
	ErrNotInitialized   = errors.New("handle was never initialized")
)

// Presentation errors. Swapchain recreation is not supported, so both end the frame loop.
var (
	ErrAcquireTimeout = errors.New("timed out acquiring a presentable image")
	ErrSurfaceStale   = errors.New("presentation surface is out of date")
)

// Policy decides how a failed native call is reported.
type Policy int

const (
	// Propagate wraps the failure with the operation name and returns it to the caller.
	Propagate Policy = iota
	// Panic logs the failure with its stack and panics at the failure site.
	Panic
)

func (p Policy) String() string {
	switch p {
	case Propagate:
		return "propagate"
	case Panic:
		return "panic"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts the names produced by Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "propagate":
		return Propagate, nil
	case "panic":
		return Panic, nil
	}
	return Propagate, errors.Newf("unknown error policy %q", s)
}

// Reporter applies a Policy to failures. The zero value propagates and logs to slog.Default.
type Reporter struct {
	Policy Policy
	Logger *slog.Logger
}

func (r Reporter) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Check returns nil when err is nil. Otherwise it wraps err with op, logs it, and either
// returns it or panics, depending on the policy.
func (r Reporter) Check(err error, op string, args ...any) error {
	if err == nil {
		return nil
	}

	wrapped := errors.WrapWithDepthf(1, err, op, args...)
	r.logger().Error("native call failed", "op", fmt.Sprintf(op, args...), "err", err)

	if r.Policy == Panic {
		panic(fmt.Sprintf("%+v", wrapped))
	}
	return wrapped
}

// IsPresentation reports whether err ends the frame loop because of the surface rather than
// the device.
func IsPresentation(err error) bool {
	return errors.Is(err, ErrSurfaceStale) || errors.Is(err, ErrAcquireTimeout)
}
