package engine

import (
	"log/slog"

	"tremolo.click/internal/backend"
)

// watchdogLoop runs only in exact-format mode. It sleeps on the player
// cond until the callback requests a reopen, then recycles the device
// stream in the format of the buffer waiting at the cursor. The reopen
// flag stays up across the whole cycle so the callback keeps filling
// silence, and drops exactly once at the end.
func (p *Player) watchdogLoop() {
	defer close(p.watchdogDone)
	slog.Debug("device watchdog started")

	p.mu.Lock()
	for {
		if p.abortRequested {
			p.mu.Unlock()
			slog.Debug("device watchdog stopped")
			return
		}
		if !p.reopenRequested {
			p.cond.Wait()
			continue
		}

		target := p.deviceFormat
		if buf := p.cursor.buffer(); buf != nil {
			target = buf.Format
		}
		oldStream := p.stream
		p.stream = nil
		p.mu.Unlock()

		// Close and open without the mutex: both can wait out an
		// in-flight callback, and the callback takes the mutex.
		if oldStream != nil {
			if err := oldStream.Close(); err != nil {
				slog.Warn("failed to close drifted stream", "error", err)
			}
		}

		newStream, err := p.backend.OpenStream(p.cfg.DeviceID, target, backend.StreamCallbacks{
			Write:     p.streamWrite,
			Underflow: p.streamUnderflow,
			Error:     p.streamError,
		})
		if err != nil {
			slog.Error("failed to reopen device",
				"device_id", p.cfg.DeviceID,
				"format", target.String(),
				"error", err)
			p.mu.Lock()
			p.reopenRequested = false
			p.mu.Unlock()
			p.events.Emit(EventDeviceReopenError)
			p.mu.Lock()
			continue
		}

		p.mu.Lock()
		p.stream = newStream
		p.deviceFormat = newStream.Format()
		p.reopenRequested = false
		p.mu.Unlock()

		// Start may run the callback synchronously.
		if err := newStream.Start(); err != nil {
			slog.Error("failed to start reopened stream", "error", err)
			p.events.Emit(EventDeviceReopenError)
			p.mu.Lock()
			continue
		}

		slog.Info("device reopened", "format", newStream.Format().String())
		p.events.Emit(EventDeviceReopened)
		p.mu.Lock()
	}
}
