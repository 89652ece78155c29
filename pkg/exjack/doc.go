// ABOUTME: Bridge package documentation
// ABOUTME: Client lifecycle between the host runtime and the audio server
// Package exjack owns one audio server client for the host runtime.
//
// A Bridge opens the client, registers the process callback and one output
// port, checks for physical playback ports, activates and connects. Each
// step moves the lifecycle state machine forward:
//
//	UNINITIALIZED -> CONNECTING -> PORT_READY -> ACTIVE -> SHUTTING_DOWN -> CLOSED
//
// A failure before ACTIVE closes whatever was opened and returns a
// *StartError. Stop tears the client down exactly once.
package exjack
