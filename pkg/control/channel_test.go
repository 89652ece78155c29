// ABOUTME: Tests for control channel command handling
// ABOUTME: Tests opcodes, idempotence, unsupported commands, listener and concurrency
package control

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/exjack/exjack-go/pkg/audio"
	"github.com/exjack/exjack-go/pkg/engine"
)

type recordingSink struct {
	samples []audio.Sample
	limit   int
}

func (s *recordingSink) Push(samples []audio.Sample) int {
	n := len(samples)
	if s.limit > 0 && len(s.samples)+n > s.limit {
		n = s.limit - len(s.samples)
	}
	s.samples = append(s.samples, samples[:n]...)
	return n
}

func TestSetParameterStoresArgument(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	defer ch.Close()

	ack, err := ch.Handle(Command{Opcode: OpSetParameter, Arg: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Result != ResultOK || ack.Seq != 1 || ack.Arg != 7 {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if param.Load() != 7 {
		t.Errorf("expected parameter 7, got %d", param.Load())
	}
}

func TestSetParameterIsIdempotent(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	defer ch.Close()

	ch.Handle(Command{Opcode: OpSetParameter, Arg: 42})
	once := param.Load()
	ch.Handle(Command{Opcode: OpSetParameter, Arg: 42})

	if param.Load() != once {
		t.Errorf("expected %d after repeat, got %d", once, param.Load())
	}
}

func TestUnsupportedOpcodeLeavesParameter(t *testing.T) {
	var param engine.Parameter
	param.Store(5)
	ch := New(&param, nil, Config{})
	defer ch.Close()

	for _, op := range []Opcode{0, 5, 99, 255} {
		ack, err := ch.Handle(Command{Opcode: op, Arg: 77})
		if !errors.Is(err, ErrUnsupportedCommand) {
			t.Errorf("opcode %d: expected ErrUnsupportedCommand, got %v", op, err)
		}
		if ack.Result != ResultUnsupported {
			t.Errorf("opcode %d: expected unsupported result, got %s", op, ack.Result)
		}
	}

	if param.Load() != 5 {
		t.Errorf("expected parameter to stay 5, got %d", param.Load())
	}

	// The channel keeps working afterwards
	if _, err := ch.Handle(Command{Opcode: OpSetParameter, Arg: 6}); err != nil {
		t.Fatalf("channel unusable after unsupported opcode: %v", err)
	}
}

func TestUnsupportedOpcodeNeverReachesSink(t *testing.T) {
	var param engine.Parameter
	sink := &recordingSink{}
	ch := New(&param, sink, Config{})
	defer ch.Close()

	payload := make([]byte, 2*audio.BytesPerSample)
	audio.PutFloat32LE(payload, []audio.Sample{0.5, 0.5})

	for _, op := range []Opcode{0, 5, 200} {
		ack, err := ch.Handle(Command{Opcode: op, Payload: payload})
		if !errors.Is(err, ErrUnsupportedCommand) || ack.Result != ResultUnsupported {
			t.Errorf("opcode %d: expected unsupported, got %s %v", op, ack.Result, err)
		}
	}
	if len(sink.samples) != 0 {
		t.Errorf("expected no pushed samples, got %v", sink.samples)
	}
}

func TestStatusTracksLastCommand(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	defer ch.Close()

	ch.Handle(Command{Opcode: OpSetParameter, Arg: 3})
	ack, _ := ch.Handle(Command{Opcode: 42, Arg: 1})

	st := ch.Status()
	if st.Seq != ack.Seq || st.Seq != 2 {
		t.Errorf("expected seq 2, got %d", st.Seq)
	}
	if st.LastOpcode != 42 || st.LastResult != ResultUnsupported {
		t.Errorf("unexpected last command in status: %+v", st)
	}
	if st.Param != 3 {
		t.Errorf("expected param 3 in status, got %d", st.Param)
	}
}

func TestPushFrames(t *testing.T) {
	var param engine.Parameter
	sink := &recordingSink{}
	ch := New(&param, sink, Config{})
	defer ch.Close()

	payload := make([]byte, 3*audio.BytesPerSample)
	audio.PutFloat32LE(payload, []audio.Sample{0.5, -0.5, 0.25})

	ack, err := ch.Handle(Command{Opcode: OpPushFrames, Payload: payload})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.Result != ResultOK {
		t.Errorf("expected ok, got %s", ack.Result)
	}
	if len(sink.samples) != 3 || sink.samples[1] != -0.5 {
		t.Errorf("unexpected pushed samples: %v", sink.samples)
	}
}

func TestPushFramesMalformedPayload(t *testing.T) {
	var param engine.Parameter
	sink := &recordingSink{}
	ch := New(&param, sink, Config{})
	defer ch.Close()

	ack, err := ch.Handle(Command{Opcode: OpPushFrames, Payload: []byte{1, 2, 3}})
	if !errors.Is(err, ErrMalformedCommand) {
		t.Errorf("expected ErrMalformedCommand, got %v", err)
	}
	if ack.Result != ResultMalformed {
		t.Errorf("expected malformed, got %s", ack.Result)
	}
	if len(sink.samples) != 0 {
		t.Error("malformed payload must not be pushed")
	}
}

func TestPushFramesOverflow(t *testing.T) {
	var param engine.Parameter
	sink := &recordingSink{limit: 2}
	ch := New(&param, sink, Config{})
	defer ch.Close()

	payload := make([]byte, 4*audio.BytesPerSample)
	ack, err := ch.Handle(Command{Opcode: OpPushFrames, Payload: payload})
	if !errors.Is(err, ErrFramesDropped) {
		t.Errorf("expected ErrFramesDropped, got %v", err)
	}
	if ack.Result != ResultOverflow {
		t.Errorf("expected overflow, got %s", ack.Result)
	}
}

func TestPushFramesWithoutSinkIsUnsupported(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	defer ch.Close()

	_, err := ch.Handle(Command{Opcode: OpPushFrames, Payload: make([]byte, 4)})
	if !errors.Is(err, ErrUnsupportedCommand) {
		t.Errorf("expected ErrUnsupportedCommand, got %v", err)
	}
}

func TestStopCallsHook(t *testing.T) {
	var param engine.Parameter
	var stopped atomic.Int32
	ch := New(&param, nil, Config{OnStop: func() { stopped.Add(1) }})
	defer ch.Close()

	if _, err := ch.Handle(Command{Opcode: OpStop}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stopped.Load() != 1 {
		t.Errorf("expected stop hook once, got %d", stopped.Load())
	}
}

func TestStopHookMayCloseChannel(t *testing.T) {
	var param engine.Parameter
	var ch *Channel
	ch = New(&param, nil, Config{OnStop: func() { ch.Close() }})

	done := make(chan struct{})
	go func() {
		ch.Handle(Command{Opcode: OpStop})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("STOP handling deadlocked when the hook closed the channel")
	}
}

func TestHandleAfterClose(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	ch.Close()
	ch.Close()

	ack, err := ch.Handle(Command{Opcode: OpSetParameter, Arg: 9})
	if !errors.Is(err, ErrChannelClosed) {
		t.Errorf("expected ErrChannelClosed, got %v", err)
	}
	if ack.Result != ResultClosed {
		t.Errorf("expected closed result, got %s", ack.Result)
	}
	if param.Load() != 0 {
		t.Errorf("closed channel must not write the parameter, got %d", param.Load())
	}
}

func TestListenerReportsAndStartsOnce(t *testing.T) {
	var param engine.Parameter
	reports := make(chan Status, 16)
	ch := New(&param, nil, Config{
		ListenerInterval: 10 * time.Millisecond,
		Report: func(s Status) {
			select {
			case reports <- s:
			default:
			}
		},
	})

	for i := 0; i < 2; i++ {
		ack, err := ch.Handle(Command{Opcode: OpStartAsyncListener})
		if err != nil || ack.Result != ResultOK {
			t.Fatalf("start %d: ack=%+v err=%v", i, ack, err)
		}
	}
	ch.Handle(Command{Opcode: OpSetParameter, Arg: 11})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-reports:
			if !s.Listener {
				t.Fatal("expected report to show the listener running")
			}
			if s.Param == 11 {
				ch.Close()
				if ch.Status().Listener {
					t.Error("expected listener stopped after Close")
				}
				return
			}
		case <-deadline:
			t.Fatal("no listener report with the updated parameter")
		}
	}
}

func TestConcurrentWritersAndReader(t *testing.T) {
	var param engine.Parameter
	ch := New(&param, nil, Config{})
	defer ch.Close()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				ch.Handle(Command{Opcode: OpSetParameter, Arg: byte(w*50 + i%50)})
			}
		}(w)
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if v := param.Load(); v >= 200 {
				t.Errorf("read a value never written: %d", v)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone

	if st := ch.Status(); st.Seq != 1000 {
		t.Errorf("expected 1000 handled commands, got %d", st.Seq)
	}
}

func TestOpcodeStrings(t *testing.T) {
	if OpSetParameter.String() != "SET_PARAMETER" {
		t.Errorf("unexpected name %q", OpSetParameter.String())
	}
	if Opcode(9).String() != "OPCODE(9)" {
		t.Errorf("unexpected name %q", Opcode(9).String())
	}
	if !OpStop.Valid() || Opcode(0).Valid() || Opcode(5).Valid() {
		t.Error("unexpected opcode validity")
	}
}
