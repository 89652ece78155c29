// ABOUTME: Audio server notification handling
// ABOUTME: Tracks rate, size and xruns and relays events to the owner
package exjack

import (
	"log"

	"github.com/exjack/exjack-go/pkg/audioserver"
	"github.com/exjack/exjack-go/pkg/control"
)

func (b *Bridge) handleNotification(n audioserver.Notification) {
	if b.config.Debug {
		log.Printf("[DEBUG] notification: %s a=%d b=%d %s", n.Kind, n.A, n.B, n.Name)
	}

	switch n.Kind {
	case audioserver.NotifyShutdown:
		log.Printf("Audio server shut down: %s", n.Name)
		b.emit(control.Event{Type: control.EventShutdown, Name: n.Name})
		go b.Stop()

	case audioserver.NotifySampleRate:
		b.sampleRate.Store(n.A)
		if n.A > 0 {
			b.engine.SetSampleRate(int(n.A))
		}
		b.emit(control.Event{Type: control.EventSampleRate, A: n.A})

	case audioserver.NotifyBufferSize:
		b.bufferSize.Store(n.A)
		b.emit(control.Event{Type: control.EventBufferSize, A: n.A})

	case audioserver.NotifyClientRegistration:
		b.emit(control.Event{Type: control.EventClientRegister, B: n.A, Name: n.Name})

	case audioserver.NotifyPortRegistration:
		b.emit(control.Event{Type: control.EventPortRegister, B: n.A, Name: n.Name})

	case audioserver.NotifyPortConnect:
		b.emit(control.Event{Type: control.EventPortsConnected, B: n.A, Name: n.Name})

	case audioserver.NotifyXRun:
		count := n.A
		if count == 0 {
			count = 1
		}
		total := b.xruns.Add(count)
		b.emit(control.Event{Type: control.EventXRun, A: total})
	}
}

func (b *Bridge) emit(e control.Event) {
	if b.config.OnEvent != nil {
		b.config.OnEvent(e)
	}
}
