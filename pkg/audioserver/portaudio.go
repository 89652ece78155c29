//go:build portaudio

// ABOUTME: PortAudio playback backend
// ABOUTME: The default output stream callback drives the process callback
package audioserver

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudio opens clients on the default PortAudio output device
type PortAudio struct {
	config DeviceConfig
}

// NewPortAudio creates a PortAudio server
func NewPortAudio(config DeviceConfig) *PortAudio {
	return &PortAudio{config: config}
}

// Name identifies the backend
func (p *PortAudio) Name() string {
	return "portaudio"
}

// Open initializes PortAudio for a new client
func (p *PortAudio) Open(clientName, serverName string) (Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	return newDeviceClient(clientName, p.config, &portaudioDriver{initialized: true}), nil
}

type portaudioDriver struct {
	stream      *portaudio.Stream
	initialized bool
}

func (d *portaudioDriver) name() string {
	return "portaudio"
}

func (d *portaudioDriver) start(c *deviceClient) error {
	callback := func(out []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.OutputUnderflow != 0 {
			c.underrun()
		}
		c.renderFloat(out)
	}

	stream, err := portaudio.OpenDefaultStream(0, c.config.Channels, float64(c.config.SampleRate), c.config.BufferSize, callback)
	if err != nil {
		return fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}

	d.stream = stream
	return nil
}

func (d *portaudioDriver) stop() error {
	if d.stream != nil {
		if err := d.stream.Stop(); err != nil {
			return err
		}
		if err := d.stream.Close(); err != nil {
			return err
		}
		d.stream = nil
	}
	if d.initialized {
		d.initialized = false
		return portaudio.Terminate()
	}
	return nil
}
