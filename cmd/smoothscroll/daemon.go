package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// ============================================================================
// Dispatch loop
// ============================================================================
//
// Single-threaded select(2) loop, the only owner of the smoother. It
// multiplexes:
//   - the grabbed physical device (read side)
//   - a self-pipe that wakes the loop for control actions and shutdown
//   - the smoother's tick deadline as the select timeout
//
// Side effects (writes to the virtual device, state broadcasts) happen only
// here. IPC handlers submit controlActions and wait on their reply channel.
//
// ============================================================================

// stateBroadcastInterval throttles websocket state updates while animating.
const stateBroadcastInterval = 250 * time.Millisecond

// readBatchEvents sizes the device read buffer; the kernel delivers whole
// input_event records, usually several per report.
const readBatchEvents = 64

type daemon struct {
	smoother *wheelSmoother
	devFd    int
	outFd    int
	hub      *Hub // nil when the state websocket is disabled
	logger   *slog.Logger

	freeSpinKey int

	actions chan controlAction
	wakeR   int
	wakeW   int

	dropSynReport bool
	lastSnapshot  smootherSnapshot
	lastBroadcast time.Time
}

func newDaemon(smoother *wheelSmoother, devFd, outFd int, freeSpinKey int, hub *Hub, logger *slog.Logger) (*daemon, error) {
	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_NONBLOCK); err != nil {
		return nil, fmt.Errorf("pipe2: %w", err)
	}

	return &daemon{
		smoother:    smoother,
		devFd:       devFd,
		outFd:       outFd,
		hub:         hub,
		logger:      logger,
		freeSpinKey: freeSpinKey,
		actions:     make(chan controlAction, 16),
		wakeR:       pipeFds[0],
		wakeW:       pipeFds[1],
	}, nil
}

// submit hands a control action to the loop and wakes it. Safe to call from
// any goroutine.
func (d *daemon) submit(a controlAction) {
	d.actions <- a
	d.wake()
}

func (d *daemon) wake() {
	// A full pipe already guarantees a pending wake-up.
	_, _ = unix.Write(d.wakeW, []byte{0})
}

// run drives the loop until ctx is canceled or a device error occurs.
func (d *daemon) run(ctx context.Context) error {
	defer unix.Close(d.wakeR)
	defer unix.Close(d.wakeW)

	// Unblock select when the context is canceled.
	go func() {
		<-ctx.Done()
		d.wake()
	}()

	nfds := d.devFd
	if d.wakeR > nfds {
		nfds = d.wakeR
	}
	nfds++

	buf := make([]byte, readBatchEvents*inputEventSize)

	d.logger.Info("dispatch loop running")

	for {
		if ctx.Err() != nil {
			d.logger.Info("dispatch loop stopping (context canceled)")
			return nil
		}

		var readFds unix.FdSet
		readFds.Set(d.devFd)
		readFds.Set(d.wakeR)

		var tvp *unix.Timeval
		if wait, ok := d.smoother.timeout(time.Now()); ok {
			tv := unix.NsecToTimeval(wait.Nanoseconds())
			tvp = &tv
		}

		n, err := unix.Select(nfds, &readFds, nil, nil, tvp)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("select: %w", err)
		}

		if n == 0 {
			// Tick deadline expired.
			if err := d.emitTick(); err != nil {
				return err
			}
		}

		if readFds.IsSet(d.wakeR) {
			d.drainControl()
		}

		if readFds.IsSet(d.devFd) {
			if err := d.drainDevice(buf); err != nil {
				return err
			}
		}

		d.maybeBroadcast()
	}
}

// emitTick runs one smoother tick and writes increment + SYN_REPORT.
func (d *daemon) emitTick() error {
	ev, ok := d.smoother.tick()
	if !ok {
		return nil
	}
	if err := writeEvent(d.outFd, ev); err != nil {
		return err
	}
	return writeEvent(d.outFd, syncReport(ev))
}

// drainControl empties the self-pipe and applies all pending actions.
func (d *daemon) drainControl() {
	var scratch [64]byte
	for {
		if _, err := unix.Read(d.wakeR, scratch[:]); err != nil {
			break
		}
	}

	for {
		select {
		case a := <-d.actions:
			d.applyAction(a)
		default:
			return
		}
	}
}

func (d *daemon) applyAction(a controlAction) {
	switch act := a.(type) {
	case stopAction:
		d.smoother.stop()
		d.logger.Info("control: stop")
		act.reply <- controlReply{Applied: true, Snapshot: d.smoother.snapshot()}

	case freeSpinAction:
		applied := d.smoother.setFreeSpin(act.Enabled)
		d.logger.Info("control: free spin", "enabled", act.Enabled, "applied", applied)
		act.reply <- controlReply{Applied: applied, Snapshot: d.smoother.snapshot()}

	case statusAction:
		act.reply <- controlReply{Applied: true, Snapshot: d.smoother.snapshot()}

	default:
		d.logger.Warn("unknown control action", "action", fmt.Sprintf("%T", a))
	}
}

// drainDevice reads every available input_event and routes it.
func (d *daemon) drainDevice(buf []byte) error {
	for {
		n, err := unix.Read(d.devFd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return nil
			}
			return fmt.Errorf("read input device: %w", err)
		}
		if n <= 0 {
			return fmt.Errorf("input device closed")
		}

		for off := 0; off+inputEventSize <= n; off += inputEventSize {
			ev, err := decodeInputEvent(buf[off : off+inputEventSize])
			if err != nil {
				// Skip malformed events
				continue
			}
			if err := d.processEvent(ev); err != nil {
				return err
			}
		}
	}
}

// processEvent routes one inbound event per the smoothing policy:
//   - REL_WHEEL feeds the smoother; the notch itself never passes through.
//     A suppressed notch marks the device's next SYN_REPORT for dropping so
//     the output stream carries no empty report.
//   - the device's own REL_WHEEL_HI_RES is swallowed; the smoother owns
//     that axis on the output.
//   - key presses stop the animation (or toggle free spin, if configured).
//   - pointer motion feeds the braking policy and passes through.
//   - a forwarded SYN_REPORT stamped past the tick deadline triggers an
//     immediate catch-up tick.
func (d *daemon) processEvent(ev inputEvent) error {
	t := ev.Time()

	if ev.Type == EV_REL && ev.Code == REL_WHEEL {
		out, ok := d.smoother.handleWheel(t, ev.Value > 0)
		if ok {
			return writeEvent(d.outFd, out)
		}
		d.dropSynReport = true
		return nil
	}

	if ev.Type == EV_REL && ev.Code == REL_WHEEL_HI_RES {
		return nil
	}

	if d.dropSynReport && ev.Type == EV_SYN && ev.Code == SYN_REPORT {
		d.dropSynReport = false
		return nil
	}

	if ev.Type == EV_KEY {
		if d.freeSpinKey != 0 && int(ev.Code) == d.freeSpinKey {
			if ev.Value == evValuePress {
				enabled := !d.smoother.snapshot().FreeSpin
				applied := d.smoother.setFreeSpin(enabled)
				d.logger.Debug("free spin key", "enabled", enabled, "applied", applied)
			}
			// The toggle key is consumed, not forwarded.
			return nil
		}
		d.smoother.stop()
	}

	if ev.Type == EV_REL && ev.Code == REL_X {
		d.smoother.handleRelX(t, ev.Value)
	}
	if ev.Type == EV_REL && ev.Code == REL_Y {
		d.smoother.handleRelY(t, ev.Value)
	}

	if err := writeEvent(d.outFd, ev); err != nil {
		return err
	}

	if ev.Type == EV_SYN && ev.Code == SYN_REPORT {
		if next, ok := d.smoother.nextTickTime(); ok && t.After(next) {
			return d.emitTick()
		}
	}

	return nil
}

// maybeBroadcast pushes a state envelope to the websocket hub when the
// visible state changed, throttled while the speed is merely decaying.
func (d *daemon) maybeBroadcast() {
	if d.hub == nil {
		return
	}

	snap := d.smoother.snapshot()
	if snap == d.lastSnapshot {
		return
	}

	now := time.Now()
	edge := snap.Active != d.lastSnapshot.Active || snap.FreeSpin != d.lastSnapshot.FreeSpin
	if !edge && now.Sub(d.lastBroadcast) < stateBroadcastInterval {
		return
	}

	d.lastSnapshot = snap
	d.lastBroadcast = now
	d.hub.BroadcastState(snap)
}
