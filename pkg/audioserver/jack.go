//go:build jack

// ABOUTME: JACK audio server backend via go-jack
// ABOUTME: The JACK process thread runs the process callback directly
package audioserver

import (
	"fmt"
	"log"
	"os"
	"sync"
	"unsafe"

	"github.com/xthexder/go-jack"
)

// Jack opens clients on a running JACK server
type Jack struct{}

// NewJack creates a JACK server
func NewJack() *Jack {
	return &Jack{}
}

// Name identifies the backend
func (j *Jack) Name() string {
	return "jack"
}

// Open connects to the named JACK server without starting one
func (j *Jack) Open(clientName, serverName string) (Client, error) {
	if serverName != "" {
		os.Setenv("JACK_DEFAULT_SERVER", serverName)
	}

	client, status := jack.ClientOpen(clientName, jack.NoStartServer)
	if client == nil || status != 0 {
		return nil, fmt.Errorf("jack_client_open %q on %q failed, status %#x", clientName, serverName, status)
	}

	c := &jackClient{client: client}
	c.installNotifications()
	return c, nil
}

type jackClient struct {
	client *jack.Client

	mu     sync.Mutex
	notify NotificationHandler
	closed bool
}

func (c *jackClient) SetProcessCallback(fn ProcessFunc) error {
	if code := c.client.SetProcessCallback(func(nframes uint32) int {
		return fn(nframes)
	}); code != 0 {
		return fmt.Errorf("jack_set_process_callback failed, code %d", code)
	}
	return nil
}

func (c *jackClient) SetNotificationHandler(h NotificationHandler) {
	c.mu.Lock()
	c.notify = h
	c.mu.Unlock()
}

// installNotifications registers every JACK callback. JACK requires this
// before activation.
func (c *jackClient) installNotifications() {
	c.client.OnShutdown(func() {
		c.emit(Notification{Kind: NotifyShutdown, Name: "jack server shut down"})
	})
	c.client.SetSampleRateCallback(func(rate uint32) int {
		c.emit(Notification{Kind: NotifySampleRate, A: rate})
		return 0
	})
	c.client.SetBufferSizeCallback(func(size uint32) int {
		c.emit(Notification{Kind: NotifyBufferSize, A: size})
		return 0
	})
	c.client.SetPortRegistrationCallback(func(id jack.PortId, registered bool) {
		n := Notification{Kind: NotifyPortRegistration, A: boolArg(registered)}
		if p := c.client.GetPortById(id); p != nil {
			n.Name = p.GetName()
		}
		c.emit(n)
	})
	c.client.SetPortConnectCallback(func(a, b jack.PortId, connected bool) {
		n := Notification{Kind: NotifyPortConnect, A: boolArg(connected)}
		pa, pb := c.client.GetPortById(a), c.client.GetPortById(b)
		if pa != nil && pb != nil {
			n.Name = pa.GetName() + ">" + pb.GetName()
		}
		c.emit(n)
	})
}

func (c *jackClient) RegisterOutputPort(name string) (Port, error) {
	port := c.client.PortRegister(name, jack.DEFAULT_AUDIO_TYPE, jack.PortIsOutput, 0)
	if port == nil {
		return nil, fmt.Errorf("jack_port_register %q failed", name)
	}
	return &jackPort{port: port}, nil
}

func (c *jackClient) PhysicalPlaybackPorts() ([]string, error) {
	return c.client.GetPorts("", "", jack.PortIsPhysical|jack.PortIsInput), nil
}

func (c *jackClient) Activate() error {
	if code := c.client.Activate(); code != 0 {
		return fmt.Errorf("jack_activate failed, code %d", code)
	}
	return nil
}

func (c *jackClient) Connect(source, destination string) error {
	if code := c.client.Connect(source, destination); code != 0 {
		return fmt.Errorf("jack_connect %s -> %s failed, code %d", source, destination, code)
	}
	return nil
}

func (c *jackClient) SampleRate() uint32 {
	return c.client.GetSampleRate()
}

func (c *jackClient) BufferSize() uint32 {
	return c.client.GetBufferSize()
}

func (c *jackClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	c.mu.Unlock()

	if code := c.client.Close(); code != 0 {
		log.Printf("jack_client_close returned %d", code)
		return fmt.Errorf("jack_client_close failed, code %d", code)
	}
	return nil
}

func (c *jackClient) emit(n Notification) {
	c.mu.Lock()
	h := c.notify
	c.mu.Unlock()
	if h != nil {
		h(n)
	}
}

type jackPort struct {
	port *jack.Port
}

func (p *jackPort) Name() string {
	return p.port.GetName()
}

// Buffer reinterprets the JACK buffer; jack.AudioSample is a float32
func (p *jackPort) Buffer(nframes uint32) []float32 {
	buf := p.port.GetBuffer(nframes)
	if len(buf) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&buf[0])), len(buf))
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
