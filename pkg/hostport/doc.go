// ABOUTME: Host runtime port package
// ABOUTME: Length-prefixed packet framing over stdin and stdout
// Package hostport carries control frames between the bridge and a host
// runtime that spawned it as a port program.
//
// Every packet is prefixed with a 1-, 2- or 4-byte big-endian length, the
// same framing an Erlang port opened with {packet, N} uses. Replies share the
// writer with asynchronous status and event frames, so writes are serialized.
//
// Example:
//
//	p, err := hostport.New(os.Stdin, os.Stdout, hostport.Config{PacketSize: 2})
//	err = p.Serve(channel)
package hostport
