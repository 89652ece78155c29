// ABOUTME: Shared client for hardware playback device backends
// ABOUTME: Maps the mono output port onto interleaved device channels
package audioserver

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exjack/exjack-go/pkg/audio"
)

const (
	// maxDeviceFrames bounds one process call; larger device requests are
	// rendered in chunks
	maxDeviceFrames = 4096

	xrunPollInterval = 250 * time.Millisecond
)

// DeviceConfig configures a hardware playback backend
type DeviceConfig struct {
	SampleRate int
	Channels   int
	BufferSize int // frames per device period, 0 for the driver default
}

// DefaultDeviceConfig returns stereo 48kHz with 256-frame periods
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		SampleRate: 48000,
		Channels:   2,
		BufferSize: 256,
	}
}

// driver starts and stops one hardware stream that pulls audio from a
// deviceClient
type driver interface {
	name() string
	start(c *deviceClient) error
	stop() error
}

// deviceClient is the Client for every device backend. The device thread
// plays the role of the audio server's real-time thread.
type deviceClient struct {
	config DeviceConfig
	name   string
	drv    driver

	mu      sync.Mutex
	notify  NotificationHandler
	port    *devicePort
	active  bool
	closed  bool
	cancel  context.CancelFunc
	watchWg sync.WaitGroup

	// set before activation, read by the device thread
	process ProcessFunc
	scratch []float32

	// bit n set: device channel n plays the output port
	routes atomic.Uint32
	xruns  atomic.Uint32
}

func newDeviceClient(name string, config DeviceConfig, drv driver) *deviceClient {
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}
	if config.Channels <= 0 {
		config.Channels = 2
	}
	if config.Channels > 32 {
		config.Channels = 32
	}
	return &deviceClient{
		config:  config,
		name:    name,
		drv:     drv,
		scratch: make([]float32, maxDeviceFrames*config.Channels),
	}
}

func (c *deviceClient) SetProcessCallback(fn ProcessFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.active {
		return ErrAlreadyActive
	}
	c.process = fn
	return nil
}

func (c *deviceClient) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	c.notify = h
	c.mu.Unlock()
}

// RegisterOutputPort registers the single output port a device client feeds
func (c *deviceClient) RegisterOutputPort(name string) (Port, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	if c.port != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s backend supports one output port", c.drv.name())
	}
	c.port = &devicePort{
		name: c.name + ":" + name,
		buf:  make([]float32, maxDeviceFrames),
	}
	p := c.port
	c.mu.Unlock()

	c.emit(Notification{Kind: NotifyPortRegistration, A: 1, Name: p.name})
	return p, nil
}

func (c *deviceClient) PhysicalPlaybackPorts() ([]string, error) {
	ports := make([]string, c.config.Channels)
	for i := range ports {
		ports[i] = PlaybackPortName(i + 1)
	}
	return ports, nil
}

func (c *deviceClient) Activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return ErrClientClosed
	case c.active:
		return ErrAlreadyActive
	case c.process == nil || c.port == nil:
		return ErrNoCallback
	}

	if err := c.drv.start(c); err != nil {
		return fmt.Errorf("failed to start %s device: %w", c.drv.name(), err)
	}
	c.active = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.watchWg.Add(1)
	go c.watchXRuns(ctx)

	log.Printf("Audio device started: %s, %dHz, %d channels", c.drv.name(), c.config.SampleRate, c.config.Channels)
	return nil
}

// Connect routes the output port to a device channel
func (c *deviceClient) Connect(source, destination string) error {
	c.mu.Lock()
	if c.port == nil || c.port.name != source {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchPort, source)
	}
	c.mu.Unlock()

	var ch int
	if _, err := fmt.Sscanf(destination, "system:playback_%d", &ch); err != nil || ch < 1 || ch > c.config.Channels {
		return fmt.Errorf("%w: %s", ErrNoSuchPort, destination)
	}

	for {
		old := c.routes.Load()
		if c.routes.CompareAndSwap(old, old|1<<(ch-1)) {
			break
		}
	}

	c.emit(Notification{Kind: NotifyPortConnect, A: 1, Name: source + ">" + destination})
	return nil
}

func (c *deviceClient) SampleRate() uint32 {
	return uint32(c.config.SampleRate)
}

func (c *deviceClient) BufferSize() uint32 {
	return uint32(c.config.BufferSize)
}

func (c *deviceClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	c.active = false
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.watchWg.Wait()

	if err := c.drv.stop(); err != nil {
		return fmt.Errorf("failed to stop %s device: %w", c.drv.name(), err)
	}
	return nil
}

// renderFloat fills an interleaved float32 device buffer. Runs on the device
// thread: no allocation, no locks.
func (c *deviceClient) renderFloat(out []float32) {
	ch := c.config.Channels
	frames := len(out) / ch
	routes := c.routes.Load()

	for done := 0; done < frames; {
		n := min(frames-done, maxDeviceFrames)
		c.process(uint32(n))

		src := c.port.buf[:n]
		dst := out[done*ch : (done+n)*ch]
		for i, s := range src {
			frame := dst[i*ch : (i+1)*ch]
			for j := range frame {
				if routes&(1<<j) != 0 {
					frame[j] = s
				} else {
					frame[j] = 0
				}
			}
		}
		done += n
	}
}

// renderBytes fills an interleaved little-endian float32 device buffer and
// returns the bytes written, always whole frames
func (c *deviceClient) renderBytes(out []byte) int {
	frameBytes := c.config.Channels * audio.BytesPerSample
	written := 0
	for len(out)-written >= frameBytes {
		n := min((len(out)-written)/frameBytes, maxDeviceFrames)
		samples := c.scratch[:n*c.config.Channels]
		c.renderFloat(samples)
		written += audio.PutFloat32LE(out[written:], samples)
	}
	return written
}

// underrun is called by drivers from the device thread
func (c *deviceClient) underrun() {
	c.xruns.Add(1)
}

// watchXRuns reports device underruns off the device thread
func (c *deviceClient) watchXRuns(ctx context.Context) {
	defer c.watchWg.Done()

	ticker := time.NewTicker(xrunPollInterval)
	defer ticker.Stop()

	var reported uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.xruns.Load(); n != reported {
				c.emit(Notification{Kind: NotifyXRun, A: n - reported, B: n})
				reported = n
			}
		}
	}
}

// deviceStopped is called by drivers when the device stops on its own
func (c *deviceClient) deviceStopped() {
	c.mu.Lock()
	closing := c.closed
	c.mu.Unlock()
	if !closing {
		go c.emit(Notification{Kind: NotifyShutdown, Name: c.drv.name() + " device stopped"})
	}
}

func (c *deviceClient) emit(n Notification) {
	c.mu.Lock()
	h := c.notify
	c.mu.Unlock()
	if h != nil {
		h(n)
	}
}

type devicePort struct {
	name string
	buf  []float32
}

func (p *devicePort) Name() string {
	return p.name
}

func (p *devicePort) Buffer(nframes uint32) []float32 {
	return p.buf[:nframes]
}
