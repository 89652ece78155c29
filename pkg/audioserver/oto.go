// ABOUTME: oto/v3 playback backend
// ABOUTME: The oto player pulls blocks that run the process callback
package audioserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/exjack/exjack-go/pkg/audio"
)

// oto allows one context per process
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat DeviceConfig
)

// Oto opens clients on the oto playback context
type Oto struct {
	config DeviceConfig
}

// NewOto creates an oto server
func NewOto(config DeviceConfig) *Oto {
	return &Oto{config: config}
}

// Name identifies the backend
func (o *Oto) Name() string {
	return "oto"
}

// Open returns a client. The oto context itself is created on activation.
func (o *Oto) Open(clientName, serverName string) (Client, error) {
	return newDeviceClient(clientName, o.config, &otoDriver{}), nil
}

func otoContext(config DeviceConfig) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat.SampleRate != config.SampleRate || otoFormat.Channels != config.Channels {
			return nil, fmt.Errorf("oto context already open at %dHz/%dch", otoFormat.SampleRate, otoFormat.Channels)
		}
		return otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatFloat32LE,
	}
	if config.BufferSize > 0 {
		op.BufferSize = time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate)
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	otoCtx = ctx
	otoFormat = config
	return ctx, nil
}

type otoDriver struct {
	player *oto.Player
}

func (d *otoDriver) name() string {
	return "oto"
}

func (d *otoDriver) start(c *deviceClient) error {
	ctx, err := otoContext(c.config)
	if err != nil {
		return err
	}

	d.player = ctx.NewPlayer(&otoSource{client: c})
	if c.config.BufferSize > 0 {
		d.player.SetBufferSize(c.config.BufferSize * c.config.Channels * audio.BytesPerSample)
	}
	d.player.Play()
	return nil
}

func (d *otoDriver) stop() error {
	if d.player == nil {
		return nil
	}
	d.player.Pause()
	err := d.player.Close()
	d.player = nil
	return err
}

// otoSource adapts the process callback to the io.Reader oto pulls from
type otoSource struct {
	client *deviceClient
}

var errShortRead = errors.New("oto read shorter than one frame")

func (s *otoSource) Read(p []byte) (int, error) {
	n := s.client.renderBytes(p)
	if n == 0 && len(p) > 0 {
		return 0, errShortRead
	}
	return n, nil
}
