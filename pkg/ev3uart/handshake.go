package ev3uart

import (
	"log"
	"time"
)

// scheduleAckSendLocked arms the ACK-send job, mirroring the original
// driver's delayed work scheduled from legoev3_uart_send_ack's
// irq/tasklet context: the timer callback itself does only the
// bounded work of handing a closure to the worker goroutine (spec.md
// section 5's "timer context" rule).
func (p *Port) scheduleAckSendLocked() {
	p.ackTimer = time.AfterFunc(ackDelay*time.Millisecond, func() {
		p.enqueue(p.ackSendJob)
	})
}

// ackSendJob runs on the deferred-work worker goroutine. It publishes
// the completed descriptor (until one publish has succeeded; after
// that it reports a reconnect instead), transmits the SYS_ACK
// byte, and schedules the baud-change job — replaying, in order, the
// original's register-or-reconnect, write-ack, schedule-bitrate-change
// sequence.
func (p *Port) ackSendJob() {
	p.mu.Lock()
	firstTime := !p.sensorPublished
	lastErr := p.lastError
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if firstTime {
		if err := p.reg.Publish(p.name, snap); err != nil {
			log.Printf("ev3uart: publish failed for %s: %v", p.name, err)
			p.mu.Lock()
			p.setErrorLocked(ErrPublishFailed, err.Error())
			p.mu.Unlock()
		} else {
			p.mu.Lock()
			p.sensorPublished = true
			p.mu.Unlock()
		}
	} else {
		p.reg.Reconnect(p.name, lastErr)
	}

	if err := p.link.Send([]byte{sysAck}); err != nil {
		log.Printf("ev3uart: failed to send ack on %s: %v", p.name, err)
		p.mu.Lock()
		p.setErrorLocked(ErrLinkError, err.Error())
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.scheduleBaudChangeLocked()
	p.mu.Unlock()
}

// scheduleBaudChangeLocked arms the baud-change job at the same
// SET_BITRATE_DELAY the original used for both the happy-path ACK
// sequence and the resync failure path.
func (p *Port) scheduleBaudChangeLocked() {
	if p.baudTimer != nil {
		p.baudTimer.Stop()
	}
	p.baudTimer = time.AfterFunc(baudChangeDelay*time.Millisecond, func() {
		p.enqueue(p.baudChangeJob)
	})
}

// baudChangeJob runs on the deferred-work worker goroutine: flush
// pending output, apply the new baud rate, and — if discovery had
// completed before the rebaud — arm the LivenessWatch's first tick.
func (p *Port) baudChangeJob() {
	if err := p.link.Flush(); err != nil {
		log.Printf("ev3uart: flush before rebaud failed on %s: %v", p.name, err)
		p.mu.Lock()
		p.setErrorLocked(ErrLinkError, err.Error())
		p.mu.Unlock()
	}

	p.mu.Lock()
	newBaud := p.newBaud
	infoDone := p.infoDone
	p.mu.Unlock()

	if err := p.link.SetBaud(newBaud); err != nil {
		log.Printf("ev3uart: failed to set baud %d on %s: %v", newBaud, p.name, err)
		p.mu.Lock()
		p.setErrorLocked(ErrLinkError, err.Error())
		p.mu.Unlock()
		return
	}

	if infoDone {
		p.armLiveness()
	}
}

// armLiveness starts the LivenessWatch timer. Acquires Port.mu itself,
// so it must be called without the lock held.
func (p *Port) armLiveness() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.liveTimer != nil {
		p.liveTimer.Stop()
	}
	p.liveTimer = time.AfterFunc(keepAliveFirst*time.Millisecond, p.livenessTick)
}
