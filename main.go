// ABOUTME: Entry point for the exjack audio bridge
// ABOUTME: Parses CLI flags, starts the bridge and serves the host port on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/exjack/exjack-go/internal/app"
	"github.com/exjack/exjack-go/internal/ui"
	"github.com/exjack/exjack-go/internal/version"
	"github.com/exjack/exjack-go/pkg/audioserver"
	"github.com/exjack/exjack-go/pkg/exjack"
)

var (
	backend     = flag.String("backend", "jack", "Audio server backend ("+strings.Join(audioserver.Backends, ", ")+")")
	clientName  = flag.String("client", "ex_jack_client", "Audio server client name")
	serverName  = flag.String("server", "ex_jack_server", "Audio server name (JACK)")
	portName    = flag.String("port-name", "ex_jack_output", "Output port name")
	connect     = flag.Int("connect", 1, "Number of physical playback ports to connect")
	noConnect   = flag.Bool("no-autoconnect", false, "Do not connect the output port")
	sampleRate  = flag.Int("rate", 48000, "Device sample rate (malgo, oto, portaudio, loopback)")
	bufferSize  = flag.Int("buffer", 256, "Device frames per cycle (malgo, oto, portaudio, loopback)")
	channels    = flag.Int("channels", 2, "Device channels (malgo, oto, portaudio)")
	packetSize  = flag.Int("packet", 2, "Host port length header size: 1, 2 or 4; 0 disables the host port")
	remoteAddr  = flag.String("remote", "", "Websocket remote control listen address, e.g. :8927")
	mdnsEnabled = flag.Bool("mdns", false, "Advertise the remote control over mDNS")
	name        = flag.String("name", "", "Advertised name (default: hostname-exjack)")
	loopFile    = flag.String("loop", "", "Audio file played in external PCM mode when nothing is pushed")
	useTUI      = flag.Bool("tui", false, "Show the status TUI (disables the host port)")
	logFile     = flag.String("log-file", "exjack.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Fprintln(os.Stderr, version.String())
		return
	}

	// Set up logging. stdout carries host port packets or the TUI, never logs.
	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	if *useTUI {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	serviceName := *name
	if serviceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serviceName = fmt.Sprintf("%s-exjack", hostname)
	}

	config := app.DefaultConfig()
	config.Backend = *backend
	config.Device = audioserver.DeviceConfig{
		SampleRate: *sampleRate,
		Channels:   *channels,
		BufferSize: *bufferSize,
	}
	config.Bridge.ClientName = *clientName
	config.Bridge.ServerName = *serverName
	config.Bridge.PortName = *portName
	config.Bridge.AutoConnect = !*noConnect
	config.Bridge.ConnectPorts = *connect
	config.PacketSize = *packetSize
	config.RemoteAddr = *remoteAddr
	config.Advertise = *mdnsEnabled
	config.ServiceName = serviceName
	config.LoopFile = *loopFile
	config.Debug = *debug

	if *useTUI && config.PacketSize > 0 {
		log.Printf("TUI enabled, host port disabled")
		config.PacketSize = 0
	}
	if config.Advertise && config.RemoteAddr == "" {
		log.Printf("-mdns needs -remote, not advertising")
	}

	log.Printf("Starting %s (%s backend)", version.String(), config.Backend)
	if *debug {
		log.Printf("Debug logging enabled")
	}
	log.Printf("Logging to: %s", *logFile)

	a, err := app.New(config, os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		var startErr *exjack.StartError
		if errors.As(err, &startErr) {
			log.Printf("Bridge failed to start in %s: %v", startErr.Stage, startErr.Err)
		} else {
			log.Printf("Startup failed: %v", err)
		}
		a.Stop()
		os.Exit(1)
	}

	if *useTUI {
		go func() {
			if _, err := ui.Run(a.Bridge()).Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			cancel()
		}()
	}

	switch err := a.Wait(ctx); {
	case errors.Is(err, app.ErrHostClosed):
		log.Printf("Host closed the port, shutting down")
	case errors.Is(err, context.Canceled):
		log.Printf("Shutdown requested")
	case err != nil:
		log.Printf("Host port error: %v", err)
	}

	a.Stop()
	log.Printf("Bridge stopped")
}
