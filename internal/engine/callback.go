package engine

import (
	"log/slog"

	"tremolo.click/internal/audio"
	"tremolo.click/internal/backend"
)

// streamWrite is the real-time write callback. It runs on the backend's
// playback goroutine and holds the play-head mutex for its whole
// duration, including the blocking source pull. A starved source
// therefore stalls the callback rather than dropping frames; the
// resulting device underrun comes back through streamUnderflow.
func (p *Player) streamWrite(requested int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stream := p.stream
	source := p.source
	if stream == nil || source == nil {
		return
	}
	// Consistent with the pull below: the play-head mutex is taken before
	// any source-internal lock.
	paused := !source.Playing()

	framesLeft := requested
	for {
		areas, writeFrames, err := stream.BeginWrite(framesLeft)
		if err != nil {
			slog.Error("begin write failed", "error", err)
			return
		}
		if writeFrames == 0 {
			return
		}

		waitingForSilence := p.silenceFramesLeft > 0
		if !p.reopenRequested && !waitingForSilence && !paused && p.cursor.remaining() == 0 {
			p.pullNextBuffer()
			waitingForSilence = p.silenceFramesLeft > 0
		}

		if p.reopenRequested || waitingForSilence || paused || p.cursor.empty() {
			// The backend pre-zeroes the transaction, so silence is just
			// an accounting matter.
			if waitingForSilence {
				p.silenceFramesLeft -= writeFrames
				if p.silenceFramesLeft <= 0 {
					p.silenceFramesLeft = 0
					p.reopenRequested = true
					p.cond.Signal()
				}
			}
			if err := stream.EndWrite(writeFrames); err != nil {
				slog.Error("end write failed", "error", err)
			}
			return
		}

		n := p.cursor.remaining()
		if n > writeFrames {
			n = writeFrames
		}
		p.copyFrames(areas, n)
		p.cursor.advance(n)
		if p.cursor.remaining() == 0 {
			p.cursor.release()
		}
		p.pos.advance(float64(n) / float64(p.deviceFormat.SampleRate))

		if err := stream.EndWrite(n); err != nil {
			slog.Error("end write failed", "error", err)
			return
		}
		framesLeft -= n
		if framesLeft <= 0 {
			return
		}
	}
}

// pullNextBuffer refills the cursor from the source, updating the play
// head and detecting format drift. Called with the play-head mutex held.
func (p *Player) pullNextBuffer() {
	p.cursor.release()

	buf, status := p.source.NextBuffer(true)
	switch status {
	case audio.PullEnd:
		if !p.pos.cleared() {
			p.pos.clear()
			p.events.Emit(EventNowPlaying)
		}
	case audio.PullBuffer:
		if p.pos.item != buf.Item {
			p.events.Emit(EventNowPlaying)
		}
		p.pos.set(buf.Item, buf.Pos)
		p.cursor.adopt(buf)

		if p.watchdogRunning && !buf.Format.Equal(p.deviceFormat) {
			p.silenceFramesLeft = int(p.stream.BufferDuration() * float64(p.deviceFormat.SampleRate))
			slog.Debug("stream format drifted, draining device",
				"device_format", p.deviceFormat.String(),
				"buffer_format", buf.Format.String(),
				"silence_frames", p.silenceFramesLeft)
		}
	case audio.PullAgain:
		// Nothing ready; the rest of the transaction plays as silence.
	}
}

// copyFrames copies n frames from the cursor into the write areas.
// Called with the play-head mutex held; the cursor is non-empty.
func (p *Player) copyFrames(areas []backend.ChannelArea, n int) {
	buf := p.cursor.buffer()
	bytesPerSample := p.deviceFormat.SampleFormat.BytesPerSample()
	channels := p.deviceFormat.Layout.Channels()
	bytesPerFrame := bytesPerSample * channels

	if buf.Format.SampleFormat.IsPlanar() {
		for frame := 0; frame < n; frame++ {
			src := (p.cursor.index + frame) * bytesPerSample
			for ch := 0; ch < channels; ch++ {
				dst := frame * areas[ch].Step
				copy(areas[ch].Buf[dst:dst+bytesPerSample], buf.Data[ch][src:src+bytesPerSample])
			}
		}
		return
	}

	// Interleaved devices expose channel areas into one shared buffer;
	// when the strides line up the whole block copies at once.
	if len(areas) > 0 && areas[0].Step == bytesPerFrame {
		src := p.cursor.index * bytesPerFrame
		copy(areas[0].Buf[:n*bytesPerFrame], buf.Data[0][src:src+n*bytesPerFrame])
		return
	}

	for frame := 0; frame < n; frame++ {
		src := (p.cursor.index + frame) * bytesPerFrame
		for ch := 0; ch < channels; ch++ {
			dst := frame * areas[ch].Step
			copy(areas[ch].Buf[dst:dst+bytesPerSample], buf.Data[0][src+ch*bytesPerSample:src+(ch+1)*bytesPerSample])
		}
	}
}

// streamUnderflow is the backend's hardware underrun report.
func (p *Player) streamUnderflow() {
	slog.Debug("device buffer underrun")
	p.events.Emit(EventBufferUnderrun)
}

// streamError is the backend's fatal stream report. With a watchdog
// running the stream is recycled through the reopen path; without one
// the failure surfaces as a reopen-error event and playback stalls.
func (p *Player) streamError(err error) {
	slog.Error("output stream failed", "error", err)

	p.mu.Lock()
	if p.watchdogRunning && !p.abortRequested {
		p.reopenRequested = true
		p.cond.Signal()
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.events.Emit(EventDeviceReopenError)
}
