// ABOUTME: Command-line remote control for a running exjack bridge
// ABOUTME: Sets the parameter, streams files as Opus and prints status and events
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exjack/exjack-go/internal/discovery"
	"github.com/exjack/exjack-go/internal/remote"
	"github.com/exjack/exjack-go/pkg/control"
	"github.com/exjack/exjack-go/pkg/pcm"
)

var (
	url      = flag.String("url", "", "Bridge websocket URL, e.g. ws://localhost:8927/exjack (default: discover via mDNS)")
	param    = flag.Int("param", -1, "SET_PARAMETER value (0 silence, 1-127 tone, 128 external PCM)")
	listener = flag.Bool("listener", false, "Send START_ASYNC_LISTENER")
	push     = flag.String("push", "", "Audio file to stream as Opus (switches to external PCM)")
	status   = flag.Bool("status", false, "Print the bridge status as JSON")
	watch    = flag.Duration("watch", 0, "Print status and event frames for this long")
	stop     = flag.Bool("stop", false, "Send STOP")
	list     = flag.Bool("list", false, "List bridges answering an mDNS query and exit")
	timeout  = flag.Duration("timeout", 10*time.Second, "Discovery and request timeout")
)

func main() {
	flag.Parse()
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *list {
		if err := listBridges(*timeout); err != nil {
			log.Fatalf("Lookup failed: %v", err)
		}
		return
	}

	target := *url
	if target == "" {
		found, err := discover(ctx, *timeout)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		target = found
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, *timeout)
	client, err := remote.Dial(dialCtx, target)
	dialCancel()
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer client.Close()

	if *listener {
		command(ctx, client, control.Command{Opcode: control.OpStartAsyncListener})
	}
	if *param >= 0 {
		if *param > 255 {
			log.Fatalf("-param must be 0-255, got %d", *param)
		}
		command(ctx, client, control.Command{Opcode: control.OpSetParameter, Arg: byte(*param)})
	}
	if *push != "" {
		if err := pushFile(ctx, client, *push); err != nil {
			log.Fatalf("Push failed: %v", err)
		}
	}
	if *status {
		reqCtx, reqCancel := context.WithTimeout(ctx, *timeout)
		raw, err := client.Status(reqCtx)
		reqCancel()
		if err != nil {
			log.Fatalf("Status failed: %v", err)
		}
		fmt.Println(string(raw))
	}
	if *watch > 0 {
		watchFrames(ctx, client, *watch)
	}
	if *stop {
		command(ctx, client, control.Command{Opcode: control.OpStop})
	}
}

// discover returns the URL of the first bridge found over mDNS
func discover(ctx context.Context, wait time.Duration) (string, error) {
	disc := discovery.NewManager(discovery.Config{})
	defer disc.Stop()

	if err := disc.Browse(); err != nil {
		return "", err
	}

	log.Printf("Browsing for %s...", discovery.ServiceType)
	select {
	case server := <-disc.Servers():
		log.Printf("Found %s (%s backend) at %s", server.Name, server.Backend, server.URL())
		return server.URL(), nil
	case <-time.After(wait):
		return "", fmt.Errorf("no bridge found after %v", wait)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// listBridges prints every bridge that answers one mDNS query
func listBridges(wait time.Duration) error {
	disc := discovery.NewManager(discovery.Config{QueryTimeout: wait})
	defer disc.Stop()

	servers, err := disc.Lookup()
	if err != nil {
		return err
	}
	if len(servers) == 0 {
		fmt.Println("No bridges found")
		return nil
	}
	for _, server := range servers {
		fmt.Printf("%s\t%s\t%s\t%s\n", server.Name, server.Backend, server.InstanceID, server.URL())
	}
	return nil
}

func command(ctx context.Context, client *remote.Client, cmd control.Command) {
	reqCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	ack, err := client.Command(reqCtx, cmd)
	if err != nil {
		log.Fatalf("%s failed: %v", cmd.Opcode, err)
	}
	fmt.Printf("#%d %s(%d): %s\n", ack.Seq, ack.Opcode, ack.Arg, ack.Result)
}

// pushFile streams a file as 20ms Opus packets, paced to real time
func pushFile(ctx context.Context, client *remote.Client, path string) error {
	clip, err := pcm.Load(path, pcm.OpusSampleRate)
	if err != nil {
		return err
	}

	enc, err := pcm.NewOpusEncoder()
	if err != nil {
		return err
	}
	packets, err := enc.Encode(clip.Samples)
	if err != nil {
		return err
	}
	if last, err := enc.Flush(); err != nil {
		return err
	} else if last != nil {
		packets = append(packets, last)
	}

	command(ctx, client, control.Command{Opcode: control.OpSetParameter, Arg: 128})
	log.Printf("Streaming %s: %d packets (%.1fs)", clip.Name, len(packets), clip.Duration())

	ticker := time.NewTicker(time.Second * pcm.OpusFrameSize / pcm.OpusSampleRate)
	defer ticker.Stop()

	var overflows int
	for i, packet := range packets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		ack, err := client.PushOpus(ctx, packet)
		if err != nil {
			return err
		}
		switch ack.Result {
		case control.ResultOK:
		case control.ResultOverflow:
			// the bridge kept what fit and dropped the rest
			overflows++
		default:
			return fmt.Errorf("packet %d rejected: %s", i, ack.Result)
		}
	}

	log.Printf("Pushed %d packets (%d overflowed)", len(packets), overflows)
	return nil
}

// watchFrames prints status and event frames until d elapses
func watchFrames(ctx context.Context, client *remote.Client, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case frame := <-client.Frames():
			printFrame(frame)
		case <-deadline:
			return
		case <-ctx.Done():
			return
		}
	}
}

func printFrame(frame []byte) {
	if len(frame) == 0 {
		return
	}
	switch frame[0] {
	case control.FrameStatus:
		r, err := control.DecodeReport(frame)
		if err != nil {
			log.Printf("Bad status frame: %v", err)
			return
		}
		fmt.Printf("status: state=%d param=%d listener=%v seq=%d cycles=%d faults=%d xruns=%d\n",
			r.State, r.Param, r.Listener, r.Seq, r.Cycles, r.Faults, r.XRuns)
	case control.FrameEvent:
		e, err := control.DecodeEvent(frame)
		if err != nil {
			log.Printf("Bad event frame: %v", err)
			return
		}
		fmt.Printf("event: %s a=%d b=%d %s\n", e.Type, e.A, e.B, e.Name)
	case control.FrameAck:
		ack, err := control.DecodeAck(frame)
		if err != nil {
			log.Printf("Bad ack frame: %v", err)
			return
		}
		fmt.Printf("ack: #%d %s(%d): %s\n", ack.Seq, ack.Opcode, ack.Arg, ack.Result)
	}
}
