// ABOUTME: Audio server boundary package documentation
// ABOUTME: Backends hosting the real-time process callback
// Package audioserver is the boundary to the real-time audio server.
//
// A Server opens Clients. A Client takes one process callback, registers
// output ports, lists physical playback ports, activates and connects.
// Backends:
//
//   - loopback: in-memory and deterministic, driven by Cycle
//   - malgo: miniaudio playback device
//   - oto: oto/v3 playback context
//   - portaudio: PortAudio default stream (build tag portaudio)
//   - jack: JACK client (build tag jack)
//
// Device backends expose one physical port per device channel, named
// system:playback_1, system:playback_2 and so on.
package audioserver
