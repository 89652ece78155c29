// ABOUTME: Startup error types for the bridge
// ABOUTME: Sentinel errors per lifecycle step and the StartError wrapper
package exjack

import (
	"errors"
	"fmt"
)

var (
	ErrServerUnreachable    = errors.New("audio server unreachable")
	ErrCallbackRegistration = errors.New("process callback registration failed")
	ErrPortRegistration     = errors.New("output port registration failed")
	ErrNoPhysicalPorts      = errors.New("no physical playback ports")
	ErrActivation           = errors.New("client activation failed")
	ErrConnection           = errors.New("port connection failed")

	ErrAlreadyStarted = errors.New("bridge already started")
	ErrStopped        = errors.New("bridge stopped during start")
)

// StartError reports the lifecycle state in which startup failed
type StartError struct {
	Stage State
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start failed in %s: %v", e.Stage, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

func startError(stage State, sentinel, cause error) *StartError {
	if cause == nil {
		return &StartError{Stage: stage, Err: sentinel}
	}
	return &StartError{Stage: stage, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
