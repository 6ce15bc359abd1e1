package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net/mail"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/portal-service/internal/config"
	"github.com/spec-kit/portal-service/internal/domain"
	"github.com/spec-kit/portal-service/internal/events"
	"github.com/spec-kit/portal-service/internal/notify"
	"github.com/spec-kit/portal-service/internal/observability"
	"github.com/spec-kit/portal-service/internal/repository"
)

// Result classifies one delivery attempt.
type Result int

const (
	ResultDelivered Result = iota
	ResultRetryable
	ResultFatal
)

// InAppSender writes a delivered record into the in-app read model.
type InAppSender interface {
	Push(ctx context.Context, record *domain.NotificationRecord) error
}

// Dispatcher turns domain events into durable at-most-once deliveries.
// Records are persisted before dispatch; the (event, recipient, channel)
// primary key absorbs duplicate submissions. Delivery is serialized
// per (recipient, channel) so causally ordered events reach a recipient
// in emission order over the same channel.
type Dispatcher struct {
	cfg      config.DispatchConfig
	records  repository.NotificationRepository
	accounts repository.AccountRepository
	email    notify.EmailSender
	inapp    InAppSender
	dedupe   *redis.Client
	logger   *zap.Logger
	metrics  *observability.Metrics

	lanes []chan domain.NotificationRecord

	mu       sync.Mutex
	inflight map[string]struct{}
	// stalled marks (recipient, channel) keys with a record deferred to the
	// sweep; later records for the key defer too so creation order holds.
	stalled map[string]struct{}

	wg sync.WaitGroup
}

// NewDispatcher builds the dispatcher. The dedupe client is optional; when
// present it short-circuits duplicate submits before touching the store.
func NewDispatcher(
	cfg config.DispatchConfig,
	records repository.NotificationRepository,
	accounts repository.AccountRepository,
	email notify.EmailSender,
	inapp InAppSender,
	dedupe *redis.Client,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	lanes := make([]chan domain.NotificationRecord, cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan domain.NotificationRecord, cfg.QueueSize)
	}

	return &Dispatcher{
		cfg:      cfg,
		records:  records,
		accounts: accounts,
		email:    email,
		inapp:    inapp,
		dedupe:   dedupe,
		logger:   logger,
		metrics:  metrics,
		lanes:    lanes,
		inflight: make(map[string]struct{}),
		stalled:  make(map[string]struct{}),
	}
}

// RegisterHandlers subscribes the dispatcher to the domain event stream.
func (d *Dispatcher) RegisterHandlers(bus events.Dispatcher) {
	for _, t := range []events.EventType{
		events.EventTaskCompleted,
		events.EventQuoteValidated,
		events.EventAccountCreated,
		events.EventInvitationIssued,
	} {
		bus.Subscribe(t, d.Submit)
	}
}

// Run starts the delivery workers and the pending-record sweep, blocking
// until ctx is cancelled. In-flight attempts finish; records still queued
// stay pending in the store and are re-swept on the next start.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := range d.lanes {
		d.wg.Add(1)
		go d.worker(ctx, d.lanes[i])
	}

	d.wg.Add(1)
	go d.sweepLoop(ctx)

	<-ctx.Done()
	d.wg.Wait()
}

// Submit expands an event into one pending record per (recipient, channel)
// pair and queues them for delivery. Duplicate submissions of the same
// event are absorbed: expansion is deterministic and the store insert is
// conditional on the record not existing.
func (d *Dispatcher) Submit(ctx context.Context, event events.Event) error {
	if d.alreadySeen(ctx, event.ID) {
		return nil
	}

	pending, err := d.expand(ctx, event)
	if err != nil {
		return err
	}

	for _, record := range pending {
		inserted, err := d.records.InsertIfAbsent(ctx, &record)
		if err != nil {
			return fmt.Errorf("persist notification record: %w", err)
		}
		if !inserted {
			// Redelivered event; the original record owns delivery.
			continue
		}
		d.enqueue(record)
	}

	d.markSeen(ctx, event.ID)
	return nil
}

// alreadySeen is a best-effort fast path; the store constraint is the
// actual idempotency boundary. The seen marker is only written once all
// records are durably inserted, so a failed submit stays re-processable.
func (d *Dispatcher) alreadySeen(ctx context.Context, eventID string) bool {
	if d.dedupe == nil {
		return false
	}
	n, err := d.dedupe.Exists(ctx, "events:seen:"+eventID).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (d *Dispatcher) markSeen(ctx context.Context, eventID string) {
	if d.dedupe == nil {
		return
	}
	_ = d.dedupe.Set(ctx, "events:seen:"+eventID, 1, 24*time.Hour).Err()
}

func (d *Dispatcher) expand(ctx context.Context, event events.Event) ([]domain.NotificationRecord, error) {
	switch event.Type {
	case events.EventAccountCreated:
		payload, ok := event.Payload.(events.AccountCreatedPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload for %s", event.Type)
		}
		return []domain.NotificationRecord{
			d.record(event, payload.AccountID, domain.ChannelEmail, payload.Email,
				"Your account has been created",
				fmt.Sprintf("Hello %s, an account has been created for you.", payload.Name)),
		}, nil

	case events.EventInvitationIssued:
		payload, ok := event.Payload.(events.InvitationIssuedPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload for %s", event.Type)
		}
		return []domain.NotificationRecord{
			d.record(event, payload.AccountID, domain.ChannelInApp, "",
				"Welcome", "Finish setting up your account to access your client portal."),
			d.record(event, payload.AccountID, domain.ChannelEmail, payload.Email,
				"You have been invited",
				fmt.Sprintf("Use token %s to set your credentials.", payload.Token)),
		}, nil

	case events.EventTaskCompleted:
		payload, ok := event.Payload.(events.TaskCompletedPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload for %s", event.Type)
		}
		subject := "Task completed"
		body := fmt.Sprintf("Task %q has been completed.", payload.TaskTitle)
		return d.fanOut(ctx, event, subject, body)

	case events.EventQuoteValidated:
		payload, ok := event.Payload.(events.QuoteValidatedPayload)
		if !ok {
			return nil, fmt.Errorf("unexpected payload for %s", event.Type)
		}
		subject := "Quote approved"
		body := fmt.Sprintf("Quote %s has been approved.", payload.QuoteReference)
		return d.fanOut(ctx, event, subject, body)

	default:
		return nil, fmt.Errorf("unknown event type %s", event.Type)
	}
}

// fanOut targets the event's recipients: in-app always, email only when
// the recipient has opted in.
func (d *Dispatcher) fanOut(ctx context.Context, event events.Event, subject, body string) ([]domain.NotificationRecord, error) {
	var out []domain.NotificationRecord
	for _, recipientID := range event.RecipientIDs {
		out = append(out, d.record(event, recipientID, domain.ChannelInApp, "", subject, body))

		account, err := d.accounts.GetByID(ctx, recipientID)
		if err != nil {
			d.logger.Warn("recipient lookup failed; skipping email record",
				zap.String("recipient_id", recipientID), zap.Error(err))
			continue
		}
		if account.EmailOptIn {
			out = append(out, d.record(event, recipientID, domain.ChannelEmail, account.Email, subject, body))
		}
	}
	return out, nil
}

func (d *Dispatcher) record(event events.Event, recipientID string, channel domain.Channel, address, subject, body string) domain.NotificationRecord {
	return domain.NotificationRecord{
		EventID:     event.ID,
		EventType:   string(event.Type),
		RecipientID: recipientID,
		Channel:     channel,
		Address:     address,
		Subject:     subject,
		Body:        body,
		Status:      domain.DeliveryStatusPending,
	}
}

// enqueue hands a record to its (recipient, channel) lane. A full lane is
// not an error: the record is already pending in the store and the sweep
// will pick it up.
func (d *Dispatcher) enqueue(record domain.NotificationRecord) {
	d.push(record, false)
}

// push reports whether the record entered the delivery pipeline. Once a key
// has a record deferred to the sweep, every later record for that key is
// deferred as well; only the sweep (replay) may bypass the marker, and it
// replays in creation order.
func (d *Dispatcher) push(record domain.NotificationRecord, replay bool) bool {
	key := recordKey(record)
	laneKey := laneKeyFor(record.RecipientID, record.Channel)

	d.mu.Lock()
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return true
	}
	if _, held := d.stalled[laneKey]; held && !replay {
		d.mu.Unlock()
		d.logger.Warn("lane key stalled; deferring to sweep",
			zap.String("event_id", record.EventID),
			zap.String("recipient_id", record.RecipientID),
			zap.String("channel", string(record.Channel)),
		)
		return false
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	lane := d.lanes[laneFor(record.RecipientID, record.Channel, len(d.lanes))]
	select {
	case lane <- record:
		return true
	default:
		d.release(key)
		d.mu.Lock()
		d.stalled[laneKey] = struct{}{}
		d.mu.Unlock()
		d.logger.Warn("dispatch lane full; deferring to sweep",
			zap.String("event_id", record.EventID),
			zap.String("recipient_id", record.RecipientID),
		)
		return false
	}
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	delete(d.inflight, key)
	d.mu.Unlock()
}

func (d *Dispatcher) worker(ctx context.Context, lane <-chan domain.NotificationRecord) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case record := <-lane:
			d.process(ctx, record)
			d.release(recordKey(record))
		}
	}
}

// process drives one record to a terminal state or runs out of attempts.
// Retries back off exponentially with jitter; the record stays pending if
// the context is cancelled mid-loop and is re-swept later.
func (d *Dispatcher) process(ctx context.Context, record domain.NotificationRecord) {
	for {
		result, deliveryErr := d.deliver(ctx, &record)

		switch result {
		case ResultDelivered:
			if err := d.records.RecordAttempt(ctx, &record, domain.DeliveryStatusDelivered, nil); err != nil {
				d.logger.Error("mark delivered failed", zap.Error(err))
			}
			d.metrics.RecordDelivery(string(record.Channel), "delivered")
			return

		case ResultFatal:
			if err := d.records.RecordAttempt(ctx, &record, domain.DeliveryStatusFailed, deliveryErr); err != nil {
				d.logger.Error("mark failed failed", zap.Error(err))
			}
			d.metrics.RecordDelivery(string(record.Channel), "fatal")
			d.logger.Warn("notification permanently failed",
				zap.String("event_id", record.EventID),
				zap.String("recipient_id", record.RecipientID),
				zap.String("channel", string(record.Channel)),
				zap.Error(deliveryErr),
			)
			return

		case ResultRetryable:
			exhausted := record.Attempts+1 >= d.cfg.MaxAttempts
			status := domain.DeliveryStatusPending
			if exhausted {
				status = domain.DeliveryStatusFailed
			}
			if err := d.records.RecordAttempt(ctx, &record, status, deliveryErr); err != nil {
				d.logger.Error("record attempt failed", zap.Error(err))
				return
			}
			if exhausted {
				d.metrics.RecordDelivery(string(record.Channel), "exhausted")
				d.logger.Warn("notification retries exhausted",
					zap.String("event_id", record.EventID),
					zap.String("recipient_id", record.RecipientID),
					zap.Int("attempts", record.Attempts),
				)
				return
			}

			delay := backoffDelay(record.Attempts,
				time.Duration(d.cfg.BackoffBaseMillis)*time.Millisecond,
				time.Duration(d.cfg.BackoffMaxMillis)*time.Millisecond,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// deliver performs a single attempt on the record's channel.
func (d *Dispatcher) deliver(ctx context.Context, record *domain.NotificationRecord) (Result, error) {
	switch record.Channel {
	case domain.ChannelInApp:
		if err := d.inapp.Push(ctx, record); err != nil {
			return ResultRetryable, err
		}
		return ResultDelivered, nil

	case domain.ChannelEmail:
		if _, err := mail.ParseAddress(record.Address); err != nil {
			return ResultFatal, fmt.Errorf("malformed address %q: %w", record.Address, err)
		}
		if err := d.email.Send(ctx, record.Address, record.Subject, record.Body); err != nil {
			if errorsIsPermanent(err) {
				return ResultFatal, err
			}
			return ResultRetryable, err
		}
		return ResultDelivered, nil

	default:
		return ResultFatal, fmt.Errorf("unknown channel %s", record.Channel)
	}
}

func (d *Dispatcher) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

const sweepBatch = 200

// Sweep re-enqueues stale pending records: crash recovery and lane
// overflow both land here. Records arrive oldest-first; within one
// (recipient, channel) key the first record that does not fit keeps the
// key stalled and the rest of the key's records are skipped, so delivery
// keeps creation order across the detour.
func (d *Dispatcher) Sweep(ctx context.Context) {
	pending, err := d.records.ListPending(ctx, d.cfg.PendingAge(), sweepBatch)
	if err != nil {
		d.logger.Error("pending sweep failed", zap.Error(err))
		return
	}

	blocked := make(map[string]struct{})
	replayed := make(map[string]struct{})
	for _, record := range pending {
		laneKey := laneKeyFor(record.RecipientID, record.Channel)
		if _, skip := blocked[laneKey]; skip {
			continue
		}
		if d.push(record, true) {
			replayed[laneKey] = struct{}{}
		} else {
			blocked[laneKey] = struct{}{}
		}
	}

	// Unstall only keys whose backlog was fully replayed. A truncated batch
	// may hide newer pending records, so markers survive until a full read.
	if len(pending) < sweepBatch {
		d.mu.Lock()
		for laneKey := range replayed {
			if _, still := blocked[laneKey]; !still {
				delete(d.stalled, laneKey)
			}
		}
		d.mu.Unlock()
	}

	if len(pending) > 0 {
		d.logger.Info("re-enqueued pending notifications", zap.Int("count", len(pending)))
	}
}

func recordKey(record domain.NotificationRecord) string {
	return record.EventID + "|" + record.RecipientID + "|" + string(record.Channel)
}

func laneKeyFor(recipientID string, channel domain.Channel) string {
	return recipientID + "|" + string(channel)
}

func laneFor(recipientID string, channel domain.Channel, lanes int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(recipientID))
	_, _ = h.Write([]byte(channel))
	return int(h.Sum32() % uint32(lanes))
}

func errorsIsPermanent(err error) bool {
	return errors.Is(err, notify.ErrPermanent)
}
