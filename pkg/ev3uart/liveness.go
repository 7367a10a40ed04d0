package ev3uart

import "time"

// livenessTick is the LivenessWatch timer callback (spec.md section
// 4.5). It runs in its own goroutine outside Port.mu except while
// touching shared state, and never calls the link directly — NACK
// transmission is handed to the deferred-work worker, matching the
// original's hrtimer-callback-schedules-tasklet split.
func (p *Port) livenessTick() {
	p.mu.Lock()
	if !p.synced || !p.infoDone {
		p.mu.Unlock()
		return
	}

	if !p.dataRecv {
		p.setErrorLocked(ErrStarvation, "no data received since last keep-alive")
		p.dataErrCount++
	}
	p.dataRecv = false
	exceeded := p.dataErrCount > MaxDataErr

	if exceeded {
		p.doFatalSyncLossLocked(ErrSyncLost, "data starvation: keep-alive threshold exceeded")
		p.mu.Unlock()
		p.enqueue(p.nackJob)
		return
	}
	p.mu.Unlock()

	p.enqueue(p.nackJob)

	p.mu.Lock()
	p.liveTimer = time.AfterFunc(keepAlivePeriod*time.Millisecond, p.livenessTick)
	p.mu.Unlock()
}

// nackJob transmits the keep-alive NACK byte from the deferred-work
// worker goroutine.
func (p *Port) nackJob() {
	if err := p.link.Send([]byte{sysNack}); err != nil {
		p.mu.Lock()
		p.setErrorLocked(ErrLinkError, err.Error())
		p.mu.Unlock()
	}
}
