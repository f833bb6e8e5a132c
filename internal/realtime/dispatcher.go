package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/models"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrDeliveryFailure is the parent of all per-connection delivery errors.
	ErrDeliveryFailure = errors.New("realtime: delivery failed")
	// ErrSlowConsumer means the connection send queue is full.
	ErrSlowConsumer = fmt.Errorf("%w: send queue full", ErrDeliveryFailure)
	// ErrConnectionClosed means the connection is already shut down.
	ErrConnectionClosed = fmt.Errorf("%w: connection closed", ErrDeliveryFailure)
)

// defaultQueueLimit bounds events waiting for the dispatch loop.
const defaultQueueLimit = 4096

// Report summarizes one fan-out.
type Report struct {
	Event        string
	Group        string
	Delivered    int
	Failed       int
	Disconnected []string
}

// queuedEvent is an encoded event waiting for fan-out.
type queuedEvent struct {
	name  string
	group string
	frame []byte
}

// Dispatcher fans events out to registry groups from a single loop.
type Dispatcher struct {
	registry   *Registry
	nowFn      func() time.Time
	queueLimit int

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []queuedEvent
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	onReport func(Report)
}

// NewDispatcher builds a dispatcher for registry. Call Start to begin delivery.
func NewDispatcher(registry *Registry) *Dispatcher {
	d := &Dispatcher{
		registry:   registry,
		nowFn:      time.Now,
		queueLimit: defaultQueueLimit,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// SetReportHook installs a callback invoked after every fan-out.
func (d *Dispatcher) SetReportHook(fn func(Report)) {
	d.mu.Lock()
	d.onReport = fn
	d.mu.Unlock()
}

// OnErrorLogged publishes NewError to the application's group.
func (d *Dispatcher) OnErrorLogged(applicationID uint64, record *models.ErrorLog) {
	if d == nil || record == nil || applicationID == 0 {
		return
	}
	d.Publish(OutboundEvent{
		Name:    EventNewError,
		Group:   GroupForApplication(applicationID),
		Payload: record,
	})
}

// OnAlertTriggered publishes NewAlert to the alert's application group, or to SystemGroup.
func (d *Dispatcher) OnAlertTriggered(alert *models.Alert) {
	if d == nil || alert == nil {
		return
	}
	group := SystemGroup
	if alert.ApplicationID != nil && *alert.ApplicationID != 0 {
		group = GroupForApplication(*alert.ApplicationID)
	}
	d.Publish(OutboundEvent{Name: EventNewAlert, Group: group, Payload: alert})
}

// Publish serializes evt and queues it for the dispatch loop.
func (d *Dispatcher) Publish(evt OutboundEvent) {
	if d == nil {
		return
	}
	if evt.EmittedAt.IsZero() {
		evt.EmittedAt = d.nowFn()
	}
	frame, errEncode := encodeEvent(evt)
	if errEncode != nil {
		log.WithError(errEncode).WithField("event", evt.Name).Error("realtime: encode event failed")
		return
	}

	d.mu.Lock()
	if len(d.queue) >= d.queueLimit {
		dropped := d.queue[0]
		d.queue = d.queue[1:]
		log.WithFields(log.Fields{"event": dropped.name, "group": dropped.group}).Warn("realtime: dispatch queue full, dropping oldest event")
	}
	d.queue = append(d.queue, queuedEvent{name: evt.Name, group: evt.Group, frame: frame})
	d.cond.Signal()
	d.mu.Unlock()
}

// Broadcast delivers evt synchronously to the current members of its group.
func (d *Dispatcher) Broadcast(evt OutboundEvent) (Report, error) {
	if evt.EmittedAt.IsZero() {
		evt.EmittedAt = d.nowFn()
	}
	frame, errEncode := encodeEvent(evt)
	if errEncode != nil {
		return Report{Event: evt.Name, Group: evt.Group}, errEncode
	}
	return d.fanOut(queuedEvent{name: evt.Name, group: evt.Group, frame: frame}), nil
}

// fanOut delivers to a membership snapshot and disconnects members that failed.
func (d *Dispatcher) fanOut(evt queuedEvent) Report {
	report := Report{Event: evt.name, Group: evt.group}
	members := d.registry.MembersOf(evt.group)
	var failed []Member
	for _, member := range members {
		if errDeliver := member.Sink.Deliver(evt.frame); errDeliver != nil {
			report.Failed++
			failed = append(failed, member)
			log.WithError(errDeliver).WithFields(log.Fields{
				"connection_id": member.ID,
				"user_id":       member.Identity.UserID,
				"group":         evt.group,
			}).Warn("realtime: delivery failed, disconnecting")
			continue
		}
		report.Delivered++
	}
	for _, member := range failed {
		if _, ok := d.registry.Disconnect(member.ID); ok {
			report.Disconnected = append(report.Disconnected, member.ID)
		}
		member.Sink.Close()
	}

	d.mu.Lock()
	hook := d.onReport
	d.mu.Unlock()
	if hook != nil {
		hook(report)
	}
	return report
}

// Start launches the dispatch loop. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		<-loopCtx.Done()
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	}()
	go func() {
		defer d.wg.Done()
		d.dispatchLoop(loopCtx)
	}()
	log.Info("realtime dispatcher started")
}

// Stop cancels the dispatch loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	d.wg.Wait()

	d.mu.Lock()
	pending := len(d.queue)
	d.queue = nil
	d.mu.Unlock()
	if pending > 0 {
		log.Debugf("realtime dispatcher stopped with %d undelivered events", pending)
	}
}

// dispatchLoop fans out queued events in emission order until canceled.
func (d *Dispatcher) dispatchLoop(ctx context.Context) {
	for {
		batch, ok := d.nextBatch(ctx)
		if !ok {
			return
		}
		for _, evt := range batch {
			d.fanOut(evt)
		}
	}
}

// nextBatch waits for queued events and takes all of them.
func (d *Dispatcher) nextBatch(ctx context.Context) ([]queuedEvent, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 {
		if ctx.Err() != nil {
			return nil, false
		}
		d.cond.Wait()
		if ctx.Err() != nil {
			return nil, false
		}
	}
	out := d.queue
	d.queue = nil
	return out, true
}
