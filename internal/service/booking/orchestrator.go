// Package booking coordinates multi-leg seat reservation and the payment
// outcome that settles it.
package booking

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/metrics"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/Domenick1991/flightbooking/internal/service/allocation"
	"github.com/Domenick1991/flightbooking/internal/service/holds"
	"github.com/Domenick1991/flightbooking/internal/service/outbox"
	"github.com/Domenick1991/flightbooking/internal/service/tickets"
)

type State string

const (
	StateStarted           State = "STARTED"
	StateLegsAllocating    State = "LEGS_ALLOCATING"
	StateAllAllocated      State = "ALL_ALLOCATED"
	StateAllocationFailed  State = "ALLOCATION_FAILED"
	StateTicketProvisioned State = "TICKET_PROVISIONED"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

type BookingUseCase interface {
	RequestBooking(ctx context.Context, req Request) (*Result, error)
	ReportPayment(ctx context.Context, signal PaymentSignal) (*PaymentResult, error)
	GetBooking(ctx context.Context, paymentRef string) (*View, error)
}

// Catalog resolves flights before any seat is touched.
type Catalog interface {
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
}

type Request struct {
	FlightIDs []int64 `json:"flight_ids" validate:"required,min=1,max=3,unique,dive,gt=0"`
	SeatCount int     `json:"seat_count" validate:"required,min=1,max=9"`
}

type Leg struct {
	FlightID    int64    `json:"flight_id"`
	SeatNumbers []string `json:"seat_numbers"`
}

type Result struct {
	SessionID   string
	PaymentRef  string
	TicketID    int64
	ExpiresAt   time.Time
	TotalAmount int64
	SeatNumbers []string
	Legs        []Leg
	State       State
}

type PaymentSignal struct {
	PaymentRef string  `validate:"required"`
	Outcome    Outcome `validate:"required,oneof=SUCCESS FAILURE"`
}

type PaymentResult struct {
	TicketID     int64
	Reference    string
	Status       domain.TicketStatus
	CancelReason domain.CancelReason
	// FlightNumber is the flight of a single-leg ticket, or MULTI.
	FlightNumber string
	SeatNumbers  []string
	TotalAmount  int64

	flightID int64
}

// View is the read model of a booking by payment reference.
type View struct {
	Ticket      domain.Ticket
	SeatNumbers []string
	// HoldsExpireAt is set while the ticket is IN_PROGRESS and holds remain.
	HoldsExpireAt *time.Time
}

type Orchestrator struct {
	store     repository.Store
	catalog   Catalog
	allocator *allocation.Allocator
	holds     *holds.Ledger
	tickets   *tickets.Ledger
	outbox    *outbox.Writer
	validate  *validator.Validate
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.log = log.With(zap.String("service", "booking"))
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(
	store repository.Store,
	catalog Catalog,
	allocator *allocation.Allocator,
	holdLedger *holds.Ledger,
	ticketLedger *tickets.Ledger,
	writer *outbox.Writer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		catalog:   catalog,
		allocator: allocator,
		holds:     holdLedger,
		tickets:   ticketLedger,
		outbox:    writer,
		validate:  validator.New(),
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RequestBooking holds seatCount seats on every requested flight, in order,
// and provisions an IN_PROGRESS ticket. Each leg commits on its own; if a
// later leg fails the committed ones are released before the error returns.
func (o *Orchestrator) RequestBooking(ctx context.Context, req Request) (*Result, error) {
	res, err := o.requestBooking(ctx, req)
	o.metrics.BookingRequest(bookingResult(err))
	return res, err
}

func (o *Orchestrator) requestBooking(ctx context.Context, req Request) (*Result, error) {
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
	}

	flights := make([]domain.Flight, 0, len(req.FlightIDs))
	for _, id := range req.FlightIDs {
		f, err := o.catalog.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("lookup flight %d: %w", id, err)
		}
		flights = append(flights, *f)
	}

	res := &Result{
		SessionID:  NewSessionID(o.now()),
		PaymentRef: NewPaymentRef(),
		State:      StateStarted,
	}
	log := o.log.With(zap.String("session_id", res.SessionID))

	res.State = StateLegsAllocating
	var committed []Leg
	held := 0
	for _, f := range flights {
		var legHolds []domain.Hold
		err := repository.RetryOnConflict(ctx, o.store, func(ctx context.Context, tx repository.Tx) error {
			refs, err := o.allocator.Allocate(ctx, tx, f.ID, req.SeatCount)
			if err != nil {
				return err
			}
			legHolds, err = o.holds.CreateHolds(ctx, tx, f.ID, refs, res.SessionID)
			return err
		})
		if err != nil {
			res.State = StateAllocationFailed
			log.Warn("leg allocation failed", zap.Int64("flight_id", f.ID), zap.Error(err))
			o.compensate(ctx, res.SessionID, committed)
			return nil, &domain.AllocationError{
				Reason:       reasonOf(err),
				SessionID:    res.SessionID,
				FlightID:     f.ID,
				PartialHolds: held,
				Err:          err,
			}
		}

		leg := Leg{FlightID: f.ID}
		for _, h := range legHolds {
			leg.SeatNumbers = append(leg.SeatNumbers, h.SeatNo)
		}
		if len(committed) == 0 && len(legHolds) > 0 {
			res.ExpiresAt = legHolds[0].ExpiresAt
		}
		committed = append(committed, leg)
		held += len(legHolds)
	}
	res.State = StateAllAllocated

	var ticket *domain.Ticket
	err := repository.RetryOnConflict(ctx, o.store, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ticket, err = o.tickets.CreateProvisional(ctx, tx, flights, res.PaymentRef, res.SessionID, req.SeatCount)
		if err != nil {
			return err
		}
		_, err = o.outbox.Enqueue(ctx, tx, domain.TopicTicketProvisioned, res.PaymentRef, domain.TicketProvisioned{
			TicketID:    ticket.ID,
			PaymentRef:  res.PaymentRef,
			SessionID:   res.SessionID,
			FlightIDs:   req.FlightIDs,
			TotalAmount: ticket.TotalAmount,
		})
		return err
	})
	if err != nil {
		res.State = StateAllocationFailed
		log.Error("ticket provisioning failed", zap.Error(err))
		o.compensate(ctx, res.SessionID, committed)
		return nil, &domain.AllocationError{
			Reason:       "ticket provisioning failed",
			SessionID:    res.SessionID,
			FlightID:     flights[0].ID,
			PartialHolds: held,
			Err:          err,
		}
	}

	res.TicketID = ticket.ID
	res.TotalAmount = ticket.TotalAmount
	res.Legs = committed
	for _, leg := range committed {
		res.SeatNumbers = append(res.SeatNumbers, leg.SeatNumbers...)
	}
	res.State = StateTicketProvisioned

	log.Info("booking provisioned",
		zap.String("payment_ref", res.PaymentRef),
		zap.Int("seats", len(res.SeatNumbers)),
		zap.Int64("total_amount", res.TotalAmount))
	return res, nil
}

// compensate releases committed legs newest first. If a step fails it falls
// back to releasing the whole session. It runs to completion even when the
// caller's context is cancelled.
func (o *Orchestrator) compensate(ctx context.Context, sessionID string, legs []Leg) {
	ctx = context.WithoutCancel(ctx)
	for i := len(legs) - 1; i >= 0; i-- {
		if _, err := o.holds.ReleaseLeg(ctx, sessionID, legs[i].FlightID); err != nil {
			o.log.Error("leg compensation failed, releasing session",
				zap.String("session_id", sessionID),
				zap.Int64("flight_id", legs[i].FlightID),
				zap.Error(err))
			if _, err := o.holds.Release(ctx, sessionID); err != nil {
				o.log.Error("session release failed", zap.String("session_id", sessionID), zap.Error(err))
			}
			return
		}
	}
}

// ReportPayment settles a provisional ticket. Both outcomes are idempotent:
// repeating a signal returns the stored result and writes nothing new.
func (o *Orchestrator) ReportPayment(ctx context.Context, signal PaymentSignal) (*PaymentResult, error) {
	res, err := o.reportPayment(ctx, signal)
	o.metrics.PaymentSignal(string(signal.Outcome), paymentResult(err))
	return res, err
}

func (o *Orchestrator) reportPayment(ctx context.Context, signal PaymentSignal) (*PaymentResult, error) {
	if err := o.validate.Struct(signal); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
	}

	switch signal.Outcome {
	case OutcomeSuccess:
		return o.confirm(ctx, signal.PaymentRef)
	default:
		return o.cancel(ctx, signal.PaymentRef)
	}
}

func (o *Orchestrator) confirm(ctx context.Context, paymentRef string) (*PaymentResult, error) {
	var (
		res     *PaymentResult
		noHolds *domain.NoActiveHoldsError
	)
	err := repository.RetryOnConflict(ctx, o.store, func(ctx context.Context, tx repository.Tx) error {
		res, noHolds = nil, nil

		ticket, err := o.tickets.LockByPaymentRef(ctx, tx, paymentRef)
		if err != nil {
			return err
		}

		switch {
		case ticket.Status == domain.TicketStatusConfirmed:
			seats, err := tx.Tickets().Seats(ctx, ticket.ID)
			if err != nil {
				return err
			}
			res = paymentResultOf(ticket, seats)
			return nil
		case ticket.Status == domain.TicketStatusCancelled && ticket.CancelReason == domain.CancelReasonHoldsExpired:
			noHolds = &domain.NoActiveHoldsError{PaymentRef: paymentRef, SessionID: ticket.SessionID, TicketID: ticket.ID}
			return nil
		case ticket.Status == domain.TicketStatusCancelled:
			return fmt.Errorf("payment success for cancelled ticket %s: %w", ticket.Reference(), domain.ErrInvalidTransition)
		}

		confirmed, err := o.holds.Confirm(ctx, tx, ticket.SessionID)
		if errors.Is(err, domain.ErrNoActiveHolds) {
			noHolds, err = o.reconcile(ctx, tx, ticket)
			return err
		}
		if err != nil {
			return err
		}

		ticket, seats, err := o.tickets.ConfirmWithSeats(ctx, tx, ticket, confirmed)
		if err != nil {
			return err
		}

		booked := make([]domain.BookedSeat, len(seats))
		for i, s := range seats {
			booked[i] = domain.BookedSeat{FlightID: s.FlightID, SeatNo: s.SeatNo}
		}
		if _, err := o.outbox.Enqueue(ctx, tx, domain.TopicTicketConfirmed, paymentRef, domain.TicketConfirmed{
			TicketID:    ticket.ID,
			Reference:   ticket.Reference(),
			PaymentRef:  paymentRef,
			SessionID:   ticket.SessionID,
			Seats:       booked,
			TotalAmount: ticket.TotalAmount,
		}); err != nil {
			return err
		}
		res = paymentResultOf(ticket, seats)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirm payment %s: %w", paymentRef, err)
	}
	if noHolds != nil {
		o.log.Warn("payment succeeded without active holds, refund requested",
			zap.String("payment_ref", paymentRef),
			zap.String("session_id", noHolds.SessionID))
		return nil, noHolds
	}

	if err := o.resolveFlightNumber(ctx, res); err != nil {
		return nil, err
	}
	o.log.Info("ticket confirmed", zap.String("payment_ref", paymentRef), zap.String("reference", res.Reference))
	return res, nil
}

// reconcile settles a successful payment that arrived after the session's
// lease lapsed: the ticket is cancelled, leftover holds are dropped and a
// refund is requested, all in the caller's unit.
func (o *Orchestrator) reconcile(ctx context.Context, tx repository.Tx, ticket *domain.Ticket) (*domain.NoActiveHoldsError, error) {
	cancelled, err := o.tickets.Cancel(ctx, tx, ticket, domain.CancelReasonHoldsExpired)
	if err != nil {
		return nil, err
	}
	if _, err := o.holds.ReleaseInTx(ctx, tx, ticket.SessionID, domain.ReleaseReasonExpired); err != nil {
		return nil, err
	}
	if _, err := o.outbox.Enqueue(ctx, tx, domain.TopicPaymentRefundRequired, ticket.PaymentRef, domain.RefundRequested{
		TicketID:   cancelled.ID,
		PaymentRef: cancelled.PaymentRef,
		SessionID:  cancelled.SessionID,
		Amount:     cancelled.TotalAmount,
		Reason:     domain.CancelReasonHoldsExpired,
	}); err != nil {
		return nil, err
	}
	return &domain.NoActiveHoldsError{PaymentRef: ticket.PaymentRef, SessionID: ticket.SessionID, TicketID: ticket.ID}, nil
}

func (o *Orchestrator) cancel(ctx context.Context, paymentRef string) (*PaymentResult, error) {
	var res *PaymentResult
	err := repository.RetryOnConflict(ctx, o.store, func(ctx context.Context, tx repository.Tx) error {
		ticket, err := o.tickets.LockByPaymentRef(ctx, tx, paymentRef)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketStatusCancelled {
			res = paymentResultOf(ticket, nil)
			return nil
		}

		cancelled, err := o.tickets.Cancel(ctx, tx, ticket, domain.CancelReasonPaymentFailed)
		if err != nil {
			return err
		}
		if _, err := o.holds.ReleaseInTx(ctx, tx, ticket.SessionID, domain.ReleaseReasonPaymentFailed); err != nil {
			return err
		}
		if _, err := o.outbox.Enqueue(ctx, tx, domain.TopicTicketCancelled, paymentRef, domain.TicketCancelled{
			TicketID:   cancelled.ID,
			PaymentRef: paymentRef,
			SessionID:  cancelled.SessionID,
			Reason:     domain.CancelReasonPaymentFailed,
		}); err != nil {
			return err
		}
		res = paymentResultOf(cancelled, nil)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel payment %s: %w", paymentRef, err)
	}
	if err := o.resolveFlightNumber(ctx, res); err != nil {
		return nil, err
	}
	o.log.Info("ticket cancelled", zap.String("payment_ref", paymentRef), zap.String("reason", string(res.CancelReason)))
	return res, nil
}

// GetBooking reads the ticket of paymentRef with its booked seats, or with
// the seats still held for it while payment is pending.
func (o *Orchestrator) GetBooking(ctx context.Context, paymentRef string) (*View, error) {
	ticket, err := o.tickets.FindByPaymentRef(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	view := &View{Ticket: *ticket}

	switch ticket.Status {
	case domain.TicketStatusConfirmed:
		seats, err := o.tickets.Seats(ctx, ticket.ID)
		if err != nil {
			return nil, err
		}
		for _, s := range seats {
			view.SeatNumbers = append(view.SeatNumbers, s.SeatNo)
		}
	case domain.TicketStatusInProgress:
		active, err := o.holds.ActiveForSession(ctx, ticket.SessionID)
		if err != nil {
			return nil, err
		}
		for _, h := range active {
			view.SeatNumbers = append(view.SeatNumbers, h.SeatNo)
		}
		if len(active) > 0 {
			exp := active[0].ExpiresAt
			view.HoldsExpireAt = &exp
		}
	}
	return view, nil
}

func (o *Orchestrator) resolveFlightNumber(ctx context.Context, res *PaymentResult) error {
	if res.FlightNumber != "" {
		return nil
	}
	f, err := o.catalog.GetByID(ctx, res.flightID)
	if err != nil {
		return fmt.Errorf("lookup flight %d: %w", res.flightID, err)
	}
	res.FlightNumber = f.FlightNo
	return nil
}

func paymentResultOf(t *domain.Ticket, seats []domain.TicketSeat) *PaymentResult {
	res := &PaymentResult{
		flightID:     t.FlightID,
		TicketID:     t.ID,
		Reference:    t.Reference(),
		Status:       t.Status,
		CancelReason: t.CancelReason,
		TotalAmount:  t.TotalAmount,
	}
	if t.MultiLeg() {
		res.FlightNumber = domain.MultiLegFlightNo
	}
	for _, s := range seats {
		res.SeatNumbers = append(res.SeatNumbers, s.SeatNo)
	}
	return res
}

// NewSessionID returns sess_<unix millis>_<8 hex>.
func NewSessionID(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("sess_%d_%s", now.UnixMilli(), hex.EncodeToString(id[:4]))
}

// NewPaymentRef returns pay_<16 hex>.
func NewPaymentRef() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "pay_" + id[:16]
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient inventory"
	case errors.Is(err, domain.ErrNotFound):
		return "flight not found"
	case errors.Is(err, domain.ErrConflict):
		return "concurrent modification"
	default:
		return "allocation error"
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "provisioned"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "insufficient_inventory"
	default:
		return "error"
	}
}

func paymentResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNoActiveHolds):
		return "no_active_holds"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}

var _ BookingUseCase = (*Orchestrator)(nil)
