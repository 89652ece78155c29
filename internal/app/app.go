// ABOUTME: Bridge application orchestration
// ABOUTME: Wires the audio server, bridge, host port, remote control and discovery
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/exjack/exjack-go/internal/discovery"
	"github.com/exjack/exjack-go/internal/remote"
	"github.com/exjack/exjack-go/pkg/audioserver"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/exjack"
	"github.com/exjack/exjack-go/pkg/hostport"
	"github.com/exjack/exjack-go/pkg/pcm"
)

// ErrHostClosed is returned by Wait when the host runtime closed the port
var ErrHostClosed = errors.New("host closed the port")

// Config holds application configuration
type Config struct {
	Backend string
	Device  audioserver.DeviceConfig
	Bridge  exjack.Config

	// PacketSize is the host port length header size; 0 disables the host port
	PacketSize int

	// RemoteAddr enables the websocket remote control when non-empty
	RemoteAddr string
	RemotePath string

	// Advertise announces the remote control over mDNS
	Advertise   bool
	ServiceName string

	// LoopFile is decoded into the external PCM loop table after start
	LoopFile string

	Debug bool
}

// DefaultConfig returns a bridge on JACK serving a {packet, 2} host port
func DefaultConfig() Config {
	return Config{
		Backend:    "jack",
		Device:     audioserver.DefaultDeviceConfig(),
		Bridge:     exjack.DefaultConfig(),
		PacketSize: hostport.DefaultPacketSize,
		RemotePath: "/exjack",
	}
}

// App runs one bridge and its outer surfaces
type App struct {
	config Config
	bridge *exjack.Bridge

	port      *hostport.Port
	remote    *remote.Server
	discovery *discovery.Manager

	hostDone chan error
	stopOnce sync.Once
}

// New creates the application with the configured backend. in and out carry
// the host port when PacketSize is set.
func New(config Config, in io.Reader, out io.Writer) (*App, error) {
	server, err := audioserver.New(config.Backend, config.Device)
	if err != nil {
		return nil, err
	}
	return NewWithServer(config, server, in, out)
}

// NewWithServer creates the application on an existing audio server
func NewWithServer(config Config, server audioserver.Server, in io.Reader, out io.Writer) (*App, error) {
	if config.ServiceName == "" {
		config.ServiceName = "exjack"
	}

	a := &App{
		config:   config,
		hostDone: make(chan error, 1),
	}

	if config.PacketSize > 0 {
		port, err := hostport.New(in, out, hostport.Config{
			PacketSize: config.PacketSize,
			Debug:      config.Debug,
		})
		if err != nil {
			return nil, err
		}
		a.port = port
	}

	bridgeConfig := config.Bridge
	bridgeConfig.Debug = bridgeConfig.Debug || config.Debug
	onEvent := bridgeConfig.OnEvent
	bridgeConfig.OnEvent = func(e control.Event) {
		a.emit(control.EncodeEvent(e))
		if onEvent != nil {
			onEvent(e)
		}
	}
	onReport := bridgeConfig.OnReport
	bridgeConfig.OnReport = func(r control.Report) {
		a.emit(control.EncodeReport(r))
		if onReport != nil {
			onReport(r)
		}
	}
	a.bridge = exjack.New(server, bridgeConfig)

	if config.RemoteAddr != "" {
		a.remote = remote.New(remote.Config{
			Addr:       config.RemoteAddr,
			Path:       config.RemotePath,
			Name:       config.ServiceName,
			Debug:      config.Debug,
			Status:     func() any { return a.bridge.Status() },
			SampleRate: func() int { return int(a.bridge.SampleRate()) },
		}, a.bridge.Channel())
	}

	return a, nil
}

// Bridge returns the running bridge
func (a *App) Bridge() *exjack.Bridge {
	return a.bridge
}

// Remote returns the remote control server, or nil when disabled
func (a *App) Remote() *remote.Server {
	return a.remote
}

// Start brings the bridge up and then the outer surfaces. A bridge failure
// is returned as the bridge's *exjack.StartError.
func (a *App) Start(ctx context.Context) error {
	if err := a.bridge.Start(ctx); err != nil {
		return err
	}

	if a.config.LoopFile != "" {
		if err := a.loadLoop(a.config.LoopFile); err != nil {
			a.bridge.Stop()
			return err
		}
	}

	if a.remote != nil {
		if err := a.remote.Start(); err != nil {
			a.bridge.Stop()
			return err
		}

		if a.config.Advertise {
			a.discovery = discovery.NewManager(discovery.Config{
				ServiceName: a.config.ServiceName,
				Port:        a.remote.Port(),
				Path:        a.config.RemotePath,
				InstanceID:  a.bridge.ID(),
				Backend:     a.config.Backend,
			})
			if err := a.discovery.Advertise(); err != nil {
				// Not fatal, the endpoint is still reachable by address
				log.Printf("mDNS advertisement failed: %v", err)
			}
		}
	}

	if a.port != nil {
		go func() {
			a.hostDone <- a.port.Serve(a.bridge.Channel())
		}()
	}

	log.Printf("Bridge %s active on %s", a.bridge.ID(), a.config.Backend)
	return nil
}

// loadLoop decodes a PCM file at the server rate into the loop table
func (a *App) loadLoop(path string) error {
	clip, err := pcm.Load(path, int(a.bridge.SampleRate()))
	if err != nil {
		return fmt.Errorf("failed to load loop file: %w", err)
	}
	a.bridge.Engine().External().SetLoop(clip.Samples)
	log.Printf("External PCM loop table set from %s", clip.Name)
	return nil
}

// Wait blocks until the bridge stops, the host closes the port or ctx ends.
// Returns ErrHostClosed when the host closed the port cleanly.
func (a *App) Wait(ctx context.Context) error {
	select {
	case <-a.bridge.Done():
		log.Printf("Bridge stopped")
		return nil
	case err := <-a.hostDone:
		if err != nil {
			return err
		}
		return ErrHostClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop tears everything down once
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		if a.discovery != nil {
			a.discovery.Stop()
		}
		if a.remote != nil {
			a.remote.Stop()
		}
		a.bridge.Stop()
	})
}

// emit sends an outbound frame to the host and every remote session
func (a *App) emit(frame []byte) {
	if a.port != nil {
		if err := a.port.WriteFrame(frame); err != nil {
			log.Printf("Failed to write frame to host: %v", err)
		}
	}
	if a.remote != nil {
		a.remote.Broadcast(frame)
	}
}
