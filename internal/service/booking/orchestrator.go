package booking

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/rest"
	"github.com/Domenick1991/slotcart/internal/scheduling"
	"golang.org/x/sync/errgroup"
)

const defaultBookingFailure = "Booking Failed: Try Again"

type Scheduler interface {
	CreateBooking(ctx context.Context, req scheduling.BookingRequest) (*scheduling.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

type BookingUseCase interface {
	CreateBulk(ctx context.Context, items []domain.CartItem, userID, userEmail string, onResult func(domain.BookingResult)) []domain.BookingResult
	CancelBulk(ctx context.Context, userID string, results []domain.BookingResult) int
}

type Orchestrator struct {
	scheduler   Scheduler
	concurrency int
}

type OrchestratorOption func(*Orchestrator)

// WithConcurrency caps in-flight scheduler calls; zero or less means one goroutine per item.
func WithConcurrency(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		o.concurrency = n
	}
}

func NewOrchestrator(scheduler Scheduler, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{scheduler: scheduler}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateBulk books every item independently. results[i] always belongs to items[i],
// whatever order the calls finish in. onResult, when set, sees each result as soon as its
// call returns and may be invoked from several goroutines at once.
func (o *Orchestrator) CreateBulk(ctx context.Context, items []domain.CartItem, userID, userEmail string, onResult func(domain.BookingResult)) []domain.BookingResult {
	results := make([]domain.BookingResult, len(items))

	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			results[i] = o.book(ctx, item, userID, userEmail)
			if onResult != nil {
				onResult(results[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) book(ctx context.Context, item domain.CartItem, userID, userEmail string) domain.BookingResult {
	created, err := o.scheduler.CreateBooking(ctx, scheduling.BookingRequest{
		ProductTypeID: item.Slot.ProductTypeID,
		CalendarID:    item.Slot.CalendarID,
		Date:          item.Slot.Date,
		Time:          item.Slot.Time,
		Timezone:      item.Slot.Timezone,
		FirstName:     item.Patient.FirstName,
		LastName:      item.Patient.LastName,
		Email:         item.Patient.Email,
		Phone:         item.Patient.Phone,
		DateOfBirth:   item.Patient.DateOfBirth,
		BookedBy:      userID,
		BookedByEmail: userEmail,
		Reference:     item.ID,
	})
	if err != nil {
		log.Printf("booking: item %s for user %s failed: %v", item.ID, userID, err)
		return domain.BookingResult{CartItemID: item.ID, Outcome: domain.BookingFailed{Reason: failureReason(err)}}
	}
	return domain.BookingResult{CartItemID: item.ID, Outcome: domain.Booked{BookingID: created.ID}}
}

func failureReason(err error) string {
	var statusErr *rest.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	return defaultBookingFailure
}

// CancelBulk cancels every booked entry once. Failures are logged and otherwise ignored;
// the return value is the number of bookings actually canceled.
func (o *Orchestrator) CancelBulk(ctx context.Context, userID string, results []domain.BookingResult) int {
	var (
		g        errgroup.Group
		canceled atomic.Int64
	)
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for _, r := range results {
		r := r
		bookingID, ok := r.BookingID()
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := o.scheduler.CancelBooking(ctx, bookingID); err != nil {
				log.Printf("booking: compensation cancel of %s (item %s, user %s) failed: %v", bookingID, r.CartItemID, userID, err)
				return nil
			}
			canceled.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(canceled.Load())
}

var _ BookingUseCase = (*Orchestrator)(nil)
