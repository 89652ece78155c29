// ABOUTME: Control channel package for host runtime commands
// ABOUTME: Provides opcode handling, acknowledgments, status polling and the wire codec
// Package control implements the control channel between the host runtime
// and the audio callback engine.
//
// A command is one opcode byte and one argument byte, optionally followed by
// a payload. Channel.Handle validates the opcode, applies it and returns an
// Ack carrying a sequence number a caller can correlate with Channel.Status.
// Writers are serialized among themselves; the real-time callback only ever
// performs an atomic load of the parameter and never waits on the channel.
//
// Opcodes:
//
//	1  START_ASYNC_LISTENER  start periodic status reports
//	2  SET_PARAMETER         store the argument in the control parameter
//	3  PUSH_FRAMES           queue little-endian float32 payload for playback
//	4  STOP                  ask the owner to shut down
//
// Example:
//
//	ch := control.New(&param, eng.External(), control.Config{})
//	ack, err := ch.Handle(control.Command{Opcode: control.OpSetParameter, Arg: 69})
package control
