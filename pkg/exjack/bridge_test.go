// ABOUTME: Tests for the bridge lifecycle on the loopback server
// ABOUTME: Tests startup, failure cleanup, commands, events and shutdown
package exjack

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/exjack/exjack-go/pkg/audioserver"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/engine"
)

func newTestBridge(t *testing.T, lc audioserver.LoopbackConfig, mutate func(*Config)) (*Bridge, *audioserver.Loopback) {
	t.Helper()
	server := audioserver.NewLoopback(lc)
	config := DefaultConfig()
	if mutate != nil {
		mutate(&config)
	}
	b := New(server, config)
	t.Cleanup(b.Stop)
	return b, server
}

func TestStartConnectsToFirstPhysicalPort(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if b.State() != StateActive {
		t.Errorf("expected ACTIVE, got %s", b.State())
	}

	c := server.LastClient()
	if c.ClientName() != "ex_jack_client" || c.ServerName() != "ex_jack_server" {
		t.Errorf("unexpected names %q on %q", c.ClientName(), c.ServerName())
	}

	conns := c.Connections()
	if len(conns) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(conns))
	}
	if conns[0].Source != "ex_jack_client:ex_jack_output" || conns[0].Destination != "system:playback_1" {
		t.Errorf("unexpected connection %+v", conns[0])
	}

	status := b.Status()
	if status.Port != "ex_jack_client:ex_jack_output" || len(status.Connections) != 1 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestStartConnectsMultiplePorts(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), func(c *Config) {
		c.ConnectPorts = 5
	})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if n := len(server.LastClient().Connections()); n != 2 {
		t.Errorf("expected both playback ports connected, got %d", n)
	}
}

func TestStartWithoutAutoConnect(t *testing.T) {
	lc := audioserver.DefaultLoopbackConfig()
	lc.PhysicalPorts = nil
	b, server := newTestBridge(t, lc, func(c *Config) {
		c.AutoConnect = false
	})

	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if n := len(server.LastClient().Connections()); n != 0 {
		t.Errorf("expected no connections, got %d", n)
	}
}

func TestStartNoPhysicalPorts(t *testing.T) {
	lc := audioserver.DefaultLoopbackConfig()
	lc.PhysicalPorts = nil
	b, server := newTestBridge(t, lc, nil)

	err := b.Start(context.Background())
	if !errors.Is(err, ErrNoPhysicalPorts) {
		t.Fatalf("expected ErrNoPhysicalPorts, got %v", err)
	}

	var se *StartError
	if !errors.As(err, &se) || se.Stage != StatePortReady {
		t.Errorf("expected StartError in PORT_READY, got %v", err)
	}

	c := server.LastClient()
	if c.Activated() {
		t.Error("client must never be activated without physical ports")
	}
	if !c.Closed() || c.CloseCount() != 1 {
		t.Errorf("expected client closed once, got closed=%v count=%d", c.Closed(), c.CloseCount())
	}
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}

	select {
	case <-b.Done():
	default:
		t.Error("expected Done to be closed after a failed start")
	}
}

func TestStartFailureCleanup(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		config   audioserver.LoopbackConfig
		sentinel error
		opened   bool
	}{
		{"open", audioserver.LoopbackConfig{FailOpen: boom}, ErrServerUnreachable, false},
		{"callback", audioserver.LoopbackConfig{FailCallback: boom}, ErrCallbackRegistration, true},
		{"port", audioserver.LoopbackConfig{FailPortRegister: boom}, ErrPortRegistration, true},
		{"activate", audioserver.LoopbackConfig{FailActivate: boom}, ErrActivation, true},
		{"connect", audioserver.LoopbackConfig{FailConnect: boom}, ErrConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := tt.config
			lc.PhysicalPorts = []string{"system:playback_1"}
			b, server := newTestBridge(t, lc, nil)

			err := b.Start(context.Background())
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("expected the cause to be preserved, got %v", err)
			}

			c := server.LastClient()
			if !tt.opened {
				if c != nil {
					t.Error("expected no client")
				}
				return
			}
			if c.CloseCount() != 1 || c.Activated() {
				t.Errorf("expected one close and no active client, got count=%d active=%v", c.CloseCount(), c.Activated())
			}

			// Stop after a failed start must not close again
			b.Stop()
			if c.CloseCount() != 1 {
				t.Errorf("expected teardown exactly once, got %d", c.CloseCount())
			}
		})
	}
}

func TestStartTwice(t *testing.T) {
	b, _ := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartCanceledContext(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Start(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if server.LastClient().CloseCount() != 1 {
		t.Error("expected the opened client to be closed")
	}
}

func TestSetParameterRendersNote(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ack, err := b.Channel().Handle(control.Command{Opcode: control.OpSetParameter, Arg: 7})
	if err != nil || ack.Result != control.ResultOK {
		t.Fatalf("set parameter: %+v %v", ack, err)
	}

	c := server.LastClient()
	if status, err := c.Cycle(256); err != nil || status != 0 {
		t.Fatalf("cycle: status %d err %v", status, err)
	}

	out, err := c.Output("ex_jack_client:ex_jack_output", 256)
	if err != nil {
		t.Fatal(err)
	}

	freq := engine.NoteFrequency(7)
	nonZero := false
	for i, got := range out {
		want := 0.5 * math.Sin(2*math.Pi*freq*float64(i)/48000)
		if math.Abs(float64(got)-want) > 1e-4 {
			t.Fatalf("sample %d: expected %v, got %v", i, want, got)
		}
		if got != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("expected an audible tone")
	}
	if b.Engine().Stats().LastParam != 7 {
		t.Errorf("expected the cycle to observe parameter 7")
	}
}

func TestConcurrentSetParameterWithCycles(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	c := server.LastClient()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.Cycle(64)
			}
		}
	}()

	var last byte
	for i := 0; i < 1000; i++ {
		last = byte(i % 256)
		if _, err := b.Channel().Handle(control.Command{Opcode: control.OpSetParameter, Arg: last}); err != nil {
			t.Fatalf("command %d: %v", i, err)
		}
	}

	close(stop)
	wg.Wait()

	if _, err := c.Cycle(64); err != nil {
		t.Fatal(err)
	}

	if got := b.Status().Param; got != last {
		t.Errorf("expected final parameter %d, got %d", last, got)
	}
	if got := b.Engine().Stats().LastParam; got != last {
		t.Errorf("expected the next cycle to read %d, got %d", last, got)
	}
	if b.Status().Seq != 1000 {
		t.Errorf("expected 1000 acknowledged commands, got %d", b.Status().Seq)
	}
}

func TestUnsupportedOpcodeLeavesParameter(t *testing.T) {
	b, _ := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.Channel().Handle(control.Command{Opcode: control.OpSetParameter, Arg: 60})
	ack, err := b.Channel().Handle(control.Command{Opcode: 99, Arg: 5})
	if !errors.Is(err, control.ErrUnsupportedCommand) || ack.Result != control.ResultUnsupported {
		t.Errorf("expected unsupported, got %+v %v", ack, err)
	}
	if b.Status().Param != 60 {
		t.Errorf("expected parameter 60, got %d", b.Status().Param)
	}
	if b.State() != StateActive {
		t.Errorf("expected bridge to keep running, got %s", b.State())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Stop()
		}()
	}
	wg.Wait()

	c := server.LastClient()
	if c.CloseCount() != 1 {
		t.Errorf("expected one close, got %d", c.CloseCount())
	}
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}

	ack, err := b.Channel().Handle(control.Command{Opcode: control.OpSetParameter, Arg: 1})
	if !errors.Is(err, control.ErrChannelClosed) || ack.Result != control.ResultClosed {
		t.Errorf("expected closed channel, got %+v %v", ack, err)
	}
}

func TestStopBeforeStart(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	b.Stop()
	if b.State() != StateClosed || server.LastClient() != nil {
		t.Errorf("expected CLOSED with no client, got %s", b.State())
	}
}

func TestStopCommandStopsBridge(t *testing.T) {
	b, _ := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, err := b.Channel().Handle(control.Command{Opcode: control.OpStop}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []control.Event
}

func (l *eventLog) add(e control.Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) find(t control.EventType) (control.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == t {
			return e, true
		}
	}
	return control.Event{}, false
}

func TestEvents(t *testing.T) {
	events := &eventLog{}
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), func(c *Config) {
		c.OnEvent = events.add
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ready, ok := events.find(control.EventReady)
	if !ok {
		t.Fatal("expected a ready event")
	}
	if ready.A != 48000 || ready.B != 256 || ready.Name != "ex_jack_client:ex_jack_output" {
		t.Errorf("unexpected ready event %+v", ready)
	}

	if e, ok := events.find(control.EventPortsConnected); !ok || e.B != 1 {
		t.Errorf("expected a connection event, got %+v", e)
	}

	c := server.LastClient()
	c.Notify(audioserver.Notification{Kind: audioserver.NotifyXRun})
	c.Notify(audioserver.Notification{Kind: audioserver.NotifyXRun, A: 2})
	if b.Status().XRuns != 3 {
		t.Errorf("expected 3 xruns, got %d", b.Status().XRuns)
	}

	c.SetSampleRate(44100)
	if e, ok := events.find(control.EventSampleRate); !ok || e.A != 44100 {
		t.Errorf("expected a sample rate event, got %+v", e)
	}
	if b.Status().SampleRate != 44100 {
		t.Errorf("expected status rate 44100, got %d", b.Status().SampleRate)
	}
}

func TestServerShutdownStopsBridge(t *testing.T) {
	events := &eventLog{}
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), func(c *Config) {
		c.OnEvent = events.add
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	server.LastClient().Notify(audioserver.Notification{Kind: audioserver.NotifyShutdown, Name: "gone"})

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop after server shutdown")
	}
	if e, ok := events.find(control.EventShutdown); !ok || e.Name != "gone" {
		t.Errorf("expected a shutdown event, got %+v", e)
	}
}

func TestListenerReports(t *testing.T) {
	reports := make(chan control.Report, 8)
	b, _ := newTestBridge(t, audioserver.DefaultLoopbackConfig(), func(c *Config) {
		c.ListenerInterval = 10 * time.Millisecond
		c.OnReport = func(r control.Report) {
			select {
			case reports <- r:
			default:
			}
		}
	})
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	b.Channel().Handle(control.Command{Opcode: control.OpStartAsyncListener})

	select {
	case r := <-reports:
		if r.State != byte(StateActive) || !r.Listener {
			t.Errorf("unexpected report %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no report from the async listener")
	}
}

func TestPushFramesPlayThroughCallback(t *testing.T) {
	b, server := newTestBridge(t, audioserver.DefaultLoopbackConfig(), nil)
	if err := b.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	payload := make([]byte, 4*4)
	samples := []float32{0.1, 0.2, 0.3, 0.4}
	for i, s := range samples {
		bits := math.Float32bits(s)
		payload[i*4] = byte(bits)
		payload[i*4+1] = byte(bits >> 8)
		payload[i*4+2] = byte(bits >> 16)
		payload[i*4+3] = byte(bits >> 24)
	}

	b.Channel().Handle(control.Command{Opcode: control.OpSetParameter, Arg: engine.ParamExternalPCM})
	if ack, err := b.Channel().Handle(control.Command{Opcode: control.OpPushFrames, Payload: payload}); err != nil {
		t.Fatalf("push failed: %+v %v", ack, err)
	}

	c := server.LastClient()
	c.Cycle(8)
	out, _ := c.Output("ex_jack_client:ex_jack_output", 8)

	want := []float32{0.1, 0.2, 0.3, 0.4, 0, 0, 0, 0}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out)
		}
	}
}

func TestStartErrorMessage(t *testing.T) {
	err := startError(StatePortReady, ErrNoPhysicalPorts, nil)
	if err.Error() != "start failed in PORT_READY: no physical playback ports" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

// gatedServer holds Open until release is closed
type gatedServer struct {
	*audioserver.Loopback
	opening chan struct{}
	release chan struct{}
}

func (s *gatedServer) Open(clientName, serverName string) (audioserver.Client, error) {
	close(s.opening)
	<-s.release
	return s.Loopback.Open(clientName, serverName)
}

func TestStopDuringStart(t *testing.T) {
	server := &gatedServer{
		Loopback: audioserver.NewLoopback(audioserver.DefaultLoopbackConfig()),
		opening:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	events := &eventLog{}
	config := DefaultConfig()
	config.OnEvent = events.add
	b := New(server, config)

	started := make(chan error, 1)
	go func() {
		started <- b.Start(context.Background())
	}()

	<-server.opening
	stopped := make(chan struct{})
	go func() {
		b.Stop()
		close(stopped)
	}()

	deadline := time.After(2 * time.Second)
	for b.State() != StateShuttingDown {
		select {
		case <-deadline:
			t.Fatalf("expected SHUTTING_DOWN, got %s", b.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(server.release)

	err := <-started
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Errorf("expected *StartError, got %T", err)
	}
	if s := b.State(); s != StateShuttingDown && s != StateClosed {
		t.Errorf("state moved backwards to %s", s)
	}
	if _, ok := events.find(control.EventReady); ok {
		t.Error("expected no ready event")
	}

	<-stopped
	if b.State() != StateClosed {
		t.Errorf("expected CLOSED, got %s", b.State())
	}
	c := server.LastClient()
	if c.CloseCount() != 1 || c.Activated() {
		t.Errorf("expected one close and no active client, got count=%d active=%v", c.CloseCount(), c.Activated())
	}
}
