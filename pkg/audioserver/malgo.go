// ABOUTME: miniaudio playback backend via malgo
// ABOUTME: The device data callback drives the process callback
package audioserver

import (
	"fmt"
	"log"

	"github.com/gen2brain/malgo"
)

// Malgo opens clients on the default miniaudio playback device
type Malgo struct {
	config DeviceConfig
}

// NewMalgo creates a malgo server
func NewMalgo(config DeviceConfig) *Malgo {
	return &Malgo{config: config}
}

// Name identifies the backend
func (m *Malgo) Name() string {
	return "malgo"
}

// Open initializes a miniaudio context for a new client
func (m *Malgo) Open(clientName, serverName string) (Client, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Printf("[malgo] %s", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	if serverName != "" {
		log.Printf("malgo backend ignores server name %q, using default device", serverName)
	}

	return newDeviceClient(clientName, m.config, &malgoDriver{ctx: ctx}), nil
}

type malgoDriver struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

func (d *malgoDriver) name() string {
	return "malgo"
}

func (d *malgoDriver) start(c *deviceClient) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(c.config.Channels)
	deviceConfig.SampleRate = uint32(c.config.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(c.config.BufferSize)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			n := c.renderBytes(pOutput)
			clear(pOutput[n:])
		},
		Stop: c.deviceStopped,
	}

	device, err := malgo.InitDevice(d.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.release()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		d.release()
		return fmt.Errorf("failed to start device: %w", err)
	}

	d.device = device
	return nil
}

func (d *malgoDriver) stop() error {
	if d.device != nil {
		if err := d.device.Stop(); err != nil {
			return err
		}
		d.device.Uninit()
		d.device = nil
	}
	d.release()
	return nil
}

func (d *malgoDriver) release() {
	if d.ctx == nil {
		return
	}
	if err := d.ctx.Uninit(); err != nil {
		log.Printf("Warning: malgo context uninit error: %v", err)
	}
	d.ctx.Free()
	d.ctx = nil
}
