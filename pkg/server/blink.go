package server

import (
	"context"
	"time"

	"github.com/waveform-computing/compoundpi/pkg/camera"
)

const blinkDuration = 5 * time.Second
const blinkInterval = 250 * time.Millisecond

// blinkTask is the detached task BLINK starts: it overrides the normal
// off-during-capture/on-at-idle LED policy for a fixed window and always
// restores LED=on on exit (§4.4, "LED semantics").
type blinkTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startBlink(cam camera.Camera) *blinkTask {
	ctx, cancel := context.WithTimeout(context.Background(), blinkDuration)
	done := make(chan struct{})
	t := &blinkTask{cancel: cancel, done: done}
	go func() {
		defer cancel()
		defer close(done)
		defer cam.LED(true)
		ticker := time.NewTicker(blinkInterval)
		defer ticker.Stop()
		on := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				on = !on
				cam.LED(on)
			}
		}
	}()
	return t
}

// stop cancels the task and waits for it to exit, restoring LED=on.
func (t *blinkTask) stop() {
	t.cancel()
	<-t.done
}
