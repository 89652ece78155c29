// ABOUTME: Async status listener started by START_ASYNC_LISTENER
// ABOUTME: Periodically reports channel status until the channel closes
package control

import (
	"context"
	"log"
	"time"
)

// startListenerLocked starts the listener once (must hold c.mu)
func (c *Channel) startListenerLocked() {
	if c.listenerCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.listenerCancel = cancel
	c.listenerDone = make(chan struct{})

	log.Printf("Control listener started (interval %v)", c.config.ListenerInterval)
	go c.listen(ctx, c.listenerDone)
}

// stopListenerLocked cancels the listener and returns its done channel (must hold c.mu)
func (c *Channel) stopListenerLocked() chan struct{} {
	if c.listenerCancel == nil {
		return nil
	}
	c.listenerCancel()
	c.listenerCancel = nil
	done := c.listenerDone
	c.listenerDone = nil
	return done
}

func (c *Channel) listen(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.config.ListenerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Control listener stopped")
			return
		case <-ticker.C:
			if c.config.Report != nil {
				c.config.Report(c.Status())
			}
		}
	}
}
