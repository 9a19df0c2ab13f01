package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/kafka"
	"github.com/Domenick1991/slotcart/internal/obs"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/service/availability"
	"github.com/Domenick1991/slotcart/internal/service/booking"
	"github.com/Domenick1991/slotcart/internal/service/payment"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrCheckoutInProgress = errors.New("a checkout is already in progress for this cart")

const (
	defaultLockTTL        = 2 * time.Minute
	defaultPublishTimeout = 5 * time.Second
)

type CheckoutUseCase interface {
	CheckoutPayment(ctx context.Context, input PaymentCheckoutInput) (*Result, error)
	Checkout(ctx context.Context, input CheckoutInput) (*Result, error)
}

type Locker interface {
	AcquireCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string, ttl time.Duration) (bool, error)
	ReleaseCheckoutLock(ctx context.Context, owner domain.OwnerKey, token string) error
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

type CheckoutInput struct {
	Owner domain.OwnerKey
	Email string
}

type PaymentCheckoutInput struct {
	CheckoutInput
	CustomerID      string
	PaymentMethodID string
}

type CartResult struct {
	IsValid bool
	Items   []availability.InvalidItem
}

// Result is what one checkout attempt produced. Payment is nil for the book-then-clear flow.
type Result struct {
	SagaID   string
	State    domain.SagaState
	Payment  *domain.PaymentAuthorization
	Cart     CartResult
	Bookings []domain.BookingResult
	Order    *domain.Order
}

type Service struct {
	carts      repository.CartRepository
	orders     repository.OrderRepository
	sagas      repository.SagaRepository
	validator  availability.AvailabilityUseCase
	payments   payment.PaymentUseCase
	bookings   booking.BookingUseCase
	locker     Locker
	producer   Producer
	eventTopic string
	notifTopic string
	taxRate    decimal.Decimal
	lockTTL    time.Duration
	publishTTL time.Duration
	tracer     trace.Tracer
	newID      func() string
}

type ServiceOption func(*Service)

func WithLocker(locker Locker, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithProducer(producer Producer, eventTopic string) ServiceOption {
	return func(s *Service) {
		s.producer = producer
		s.eventTopic = eventTopic
	}
}

func WithNotificationsTopic(topic string) ServiceOption {
	return func(s *Service) {
		s.notifTopic = topic
	}
}

// WithPublishTimeout bounds how long event publishing may hold up a checkout response.
func WithPublishTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		if timeout > 0 {
			s.publishTTL = timeout
		}
	}
}

func NewService(
	carts repository.CartRepository,
	orders repository.OrderRepository,
	sagas repository.SagaRepository,
	validator availability.AvailabilityUseCase,
	payments payment.PaymentUseCase,
	bookings booking.BookingUseCase,
	taxRate decimal.Decimal,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		carts:      carts,
		orders:     orders,
		sagas:      sagas,
		validator:  validator,
		payments:   payments,
		bookings:   bookings,
		taxRate:    taxRate,
		lockTTL:    defaultLockTTL,
		publishTTL: defaultPublishTimeout,
		tracer:     obs.Tracer("slotcart/checkout"),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckoutPayment validates the cart, authorizes payment for its total, books every item
// and captures. Any booking or capture failure cancels what was booked and releases the
// authorization.
func (s *Service) CheckoutPayment(ctx context.Context, input PaymentCheckoutInput) (*Result, error) {
	if input.CustomerID == "" {
		return nil, domain.NewValidationError("customerId", "is required")
	}
	if input.PaymentMethodID == "" {
		return nil, domain.NewValidationError("paymentMethodId", "is required")
	}

	return s.run(ctx, input.CheckoutInput, domain.SagaFlowPayThenBook, func(ctx context.Context, saga *domain.Saga, cart *domain.Cart) (*Result, error) {
		return s.payThenBook(ctx, saga, cart, input)
	})
}

// Checkout books every item without taking payment and clears the cart on full success.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (*Result, error) {
	return s.run(ctx, input, domain.SagaFlowBookThenClear, s.bookThenClear)
}

type flowFunc func(ctx context.Context, saga *domain.Saga, cart *domain.Cart) (*Result, error)

// run holds the owner lock, loads the cart, records the saga and hands over to flow.
// Side effects run on a context detached from the caller so a dropped request cannot
// stop the saga half way.
func (s *Service) run(ctx context.Context, input CheckoutInput, flowName domain.SagaFlow, flow flowFunc) (*Result, error) {
	if input.Owner.UserID == "" || input.Owner.OrganizationID == "" {
		return nil, domain.NewValidationError("owner", "user and organization are required")
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := s.tracer.Start(ctx, "checkout."+string(flowName), trace.WithAttributes(
		attribute.String("owner", input.Owner.String()),
	))
	defer span.End()

	if s.locker != nil {
		token := s.newID()
		ok, err := s.locker.AcquireCheckoutLock(ctx, input.Owner, token, s.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire checkout lock: %w", err)
		}
		if !ok {
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err := s.locker.ReleaseCheckoutLock(ctx, input.Owner, token); err != nil {
				log.Printf("checkout: release lock for %s failed: %v", input.Owner, err)
			}
		}()
	}

	cart, err := s.carts.GetCart(ctx, input.Owner)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	saga := domain.NewSaga(s.newID(), input.Owner, input.Email, flowName, cart.ItemIDs())
	if err := s.sagas.Create(ctx, saga); err != nil {
		return nil, fmt.Errorf("record saga: %w", err)
	}
	span.SetAttributes(attribute.String("saga.id", saga.ID))

	result, err := flow(ctx, saga, cart)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("saga.state", string(result.State)))
	return result, nil
}

func (s *Service) payThenBook(ctx context.Context, saga *domain.Saga, cart *domain.Cart, input PaymentCheckoutInput) (*Result, error) {
	auth := domain.NewPaymentAuthorization()
	result := &Result{SagaID: saga.ID, Payment: &auth, Bookings: []domain.BookingResult{}}

	if ok, err := s.validate(ctx, saga, cart, result); err != nil {
		return nil, err
	} else if !ok {
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaAuthorizingPayment); err != nil {
		return nil, err
	}
	stepCtx, span := s.tracer.Start(ctx, "checkout.authorize")
	total := cart.Total(s.taxRate)
	auth = s.payments.Authorize(stepCtx, payment.AuthorizeInput{
		CustomerID:      input.CustomerID,
		PaymentMethodID: input.PaymentMethodID,
		Amount:          total,
		Reference:       saga.ID,
	})
	span.End()
	saga.PaymentIntentID = auth.IntentID

	if !auth.IsValid() {
		auth = s.payments.Cancel(ctx, auth)
		saga.Error = auth.Error
		s.settle(ctx, saga, domain.SagaPaymentFailed, total)
		result.State = saga.State
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaPaymentAuthorized); err != nil {
		s.payments.Cancel(ctx, auth)
		return nil, err
	}
	if err := s.advance(ctx, saga, domain.SagaBookingAll); err != nil {
		s.payments.Cancel(ctx, auth)
		return nil, err
	}

	if !s.bookAll(ctx, saga, cart, result) {
		if err := s.compensate(ctx, saga, &auth, total); err != nil {
			return nil, err
		}
		result.State = saga.State
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaAllBooked); err != nil {
		if takenOver(err) {
			return nil, err
		}
		log.Printf("checkout: saga %s: %v", saga.ID, err)
	}
	if err := s.advance(ctx, saga, domain.SagaCapturing); err != nil {
		if !takenOver(err) {
			_ = s.compensate(ctx, saga, &auth, total)
		}
		return nil, err
	}

	stepCtx, span = s.tracer.Start(ctx, "checkout.capture")
	auth = s.payments.Capture(stepCtx, auth)
	span.End()
	if auth.Status != domain.PaymentStatusSucceeded {
		saga.Error = "capture failed: " + auth.Error
		if err := s.compensate(ctx, saga, &auth, total); err != nil {
			return nil, err
		}
		result.State = saga.State
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaCaptured); err != nil {
		if takenOver(err) {
			return nil, err
		}
		log.Printf("checkout: saga %s: %v", saga.ID, err)
	}
	s.finish(ctx, saga, cart.Items, total, result)
	return result, nil
}

func (s *Service) bookThenClear(ctx context.Context, saga *domain.Saga, cart *domain.Cart) (*Result, error) {
	result := &Result{SagaID: saga.ID, Bookings: []domain.BookingResult{}}
	total := cart.Total(s.taxRate)

	if ok, err := s.validate(ctx, saga, cart, result); err != nil {
		return nil, err
	} else if !ok {
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaBookingAll); err != nil {
		return nil, err
	}
	if !s.bookAll(ctx, saga, cart, result) {
		if err := s.compensate(ctx, saga, nil, total); err != nil {
			return nil, err
		}
		result.State = saga.State
		return result, nil
	}

	if err := s.advance(ctx, saga, domain.SagaAllBooked); err != nil {
		if takenOver(err) {
			return nil, err
		}
		log.Printf("checkout: saga %s: %v", saga.ID, err)
	}
	s.finish(ctx, saga, cart.Items, total, result)
	return result, nil
}

// validate runs the availability pass and records Valid or Invalid. It reports whether
// the saga may continue.
func (s *Service) validate(ctx context.Context, saga *domain.Saga, cart *domain.Cart, result *Result) (bool, error) {
	stepCtx, span := s.tracer.Start(ctx, "checkout.validate")
	validation := s.validator.Validate(stepCtx, cart.Items)
	span.End()

	result.Cart = CartResult{IsValid: validation.IsValid, Items: validation.InvalidItems}
	if !validation.IsValid {
		saga.Error = fmt.Sprintf("%d item(s) unavailable", len(validation.InvalidItems))
		s.settle(ctx, saga, domain.SagaInvalid, cart.Total(s.taxRate))
		result.State = saga.State
		return false, nil
	}

	if err := s.advance(ctx, saga, domain.SagaValid); err != nil {
		if takenOver(err) {
			return false, err
		}
		log.Printf("checkout: saga %s: %v", saga.ID, err)
	}
	return true, nil
}

// bookAll books every item and records the results. Each booking is written to the saga
// log as soon as it exists so a crash mid-batch still leaves it cancelable. Failed bookings
// are reported against their cart items. It reports whether every item was booked.
func (s *Service) bookAll(ctx context.Context, saga *domain.Saga, cart *domain.Cart, result *Result) bool {
	var mu sync.Mutex
	record := func(r domain.BookingResult) {
		if !r.IsSuccess() {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		saga.Bookings = append(saga.Bookings, r)
		saga.UpdatedAt = time.Now()
		if err := s.sagas.Save(ctx, saga, saga.State); err != nil {
			log.Printf("checkout: saga %s: record booking for item %s: %v", saga.ID, r.CartItemID, err)
		}
	}

	stepCtx, span := s.tracer.Start(ctx, "checkout.book", trace.WithAttributes(attribute.Int("items", len(cart.Items))))
	results := s.bookings.CreateBulk(stepCtx, cart.Items, saga.Owner.UserID, saga.Email, record)
	span.End()

	saga.Bookings = results
	result.Bookings = results

	if domain.AllBooked(results) {
		return true
	}

	for _, r := range results {
		if !r.IsSuccess() {
			result.Cart.Items = append(result.Cart.Items, availability.InvalidItem{ItemID: r.CartItemID, Message: r.ErrorMessage()})
		}
	}
	result.Cart.IsValid = false
	saga.Error = "one or more bookings failed"
	if err := s.advance(ctx, saga, domain.SagaPartialOrFullFailure); err != nil {
		log.Printf("checkout: saga %s: %v", saga.ID, err)
	}
	return false
}

// compensate cancels every booking the saga made and, when an authorization exists,
// releases it. Failures are logged and the saga ends Failed. It only returns an error
// when another writer has taken the saga over, in which case nothing is undone here.
func (s *Service) compensate(ctx context.Context, saga *domain.Saga, auth *domain.PaymentAuthorization, total decimal.Decimal) error {
	stepCtx, span := s.tracer.Start(ctx, "checkout.compensate")
	defer span.End()

	if saga.State == domain.SagaCapturing {
		if err := s.advance(stepCtx, saga, domain.SagaPartialOrFullFailure); err != nil {
			if takenOver(err) {
				return err
			}
			log.Printf("checkout: saga %s: %v", saga.ID, err)
		}
	}
	if saga.State != domain.SagaCompensating {
		if err := s.advance(stepCtx, saga, domain.SagaCompensating); err != nil {
			if takenOver(err) {
				log.Printf("checkout: %v", err)
				return err
			}
			log.Printf("checkout: saga %s: %v", saga.ID, err)
		}
	}

	booked := len(saga.SucceededBookings())
	canceled := s.bookings.CancelBulk(stepCtx, saga.Owner.UserID, saga.Bookings)
	if canceled < booked {
		log.Printf("checkout: saga %s canceled %d of %d bookings", saga.ID, canceled, booked)
	}

	if auth != nil {
		*auth = s.payments.Cancel(stepCtx, *auth)
		if auth.Status != domain.PaymentStatusCanceledIntent && auth.Status != domain.PaymentStatusCanceled {
			log.Printf("checkout: saga %s left payment %s in status %s", saga.ID, auth.IntentID, auth.Status)
		}
	}

	s.settle(stepCtx, saga, domain.SagaFailed, total)
	return nil
}

// finish persists the order, removes the checked-out items and marks the saga Completed.
// If either write fails the saga stays where it is for the reconciler to pick up.
func (s *Service) finish(ctx context.Context, saga *domain.Saga, items []domain.CartItem, total decimal.Decimal, result *Result) {
	order, err := s.complete(ctx, saga, items, total)
	result.State = saga.State
	if err != nil {
		log.Printf("checkout: saga %s: %v", saga.ID, err)
		return
	}
	result.Order = order
}

func (s *Service) complete(ctx context.Context, saga *domain.Saga, items []domain.CartItem, total decimal.Decimal) (*domain.Order, error) {
	order := &domain.Order{
		ID:              s.newID(),
		Owner:           saga.Owner,
		SagaID:          saga.ID,
		PaymentIntentID: saga.PaymentIntentID,
		Total:           total,
		Bookings:        domain.NewOrderBookings(items, saga.Bookings),
		CreatedAt:       time.Now(),
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	if err := s.carts.DeleteItems(ctx, saga.Owner, saga.ItemIDs); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}

	saga.OrderID = order.ID
	saga.Error = ""
	s.settle(ctx, saga, domain.SagaCompleted, total)
	return order, nil
}

// advance moves the saga and writes it to the log. The write only lands while the stored
// record is still in the state this process last saw.
func (s *Service) advance(ctx context.Context, saga *domain.Saga, to domain.SagaState) error {
	from := saga.State
	if err := saga.Transition(to); err != nil {
		return err
	}
	if err := s.sagas.Save(ctx, saga, from); err != nil {
		return fmt.Errorf("saga %s: record %s: %w", saga.ID, to, err)
	}
	return nil
}

// settle moves the saga into a terminal state and announces the outcome.
func (s *Service) settle(ctx context.Context, saga *domain.Saga, to domain.SagaState, total decimal.Decimal) {
	if err := s.advance(ctx, saga, to); err != nil {
		log.Printf("checkout: %v", err)
		if takenOver(err) {
			return
		}
	}
	s.publish(ctx, saga, total)
}

// takenOver reports whether another writer, normally the reconciler, moved the saga first.
func takenOver(err error) bool {
	return errors.Is(err, repository.ErrSagaConflict)
}

func eventType(state domain.SagaState) string {
	switch state {
	case domain.SagaCompleted:
		return kafka.EventCheckoutCompleted
	case domain.SagaInvalid:
		return kafka.EventCheckoutInvalid
	case domain.SagaPaymentFailed:
		return kafka.EventCheckoutPaymentFailed
	default:
		return kafka.EventCheckoutFailed
	}
}

func (s *Service) publish(ctx context.Context, saga *domain.Saga, total decimal.Decimal) {
	if s.producer == nil || s.eventTopic == "" {
		return
	}

	bookingIDs := make([]string, 0, len(saga.Bookings))
	for _, b := range saga.SucceededBookings() {
		id, _ := b.BookingID()
		bookingIDs = append(bookingIDs, id)
	}
	event := kafka.CheckoutEvent{
		Type:            eventType(saga.State),
		SagaID:          saga.ID,
		Flow:            string(saga.Flow),
		State:           string(saga.State),
		UserID:          saga.Owner.UserID,
		OrganizationID:  saga.Owner.OrganizationID,
		Email:           saga.Email,
		OrderID:         saga.OrderID,
		PaymentIntentID: saga.PaymentIntentID,
		BookingIDs:      bookingIDs,
		Total:           total.StringFixed(2),
		Error:           saga.Error,
		OccurredAt:      time.Now(),
	}

	ctx, cancel := context.WithTimeout(ctx, s.publishTTL)
	defer cancel()

	key := saga.Owner.String()
	if err := s.producer.Publish(ctx, s.eventTopic, key, event); err != nil {
		log.Printf("checkout: publish %s for saga %s failed: %v", event.Type, saga.ID, err)
	}
	if s.notifTopic != "" {
		if err := s.producer.Publish(ctx, s.notifTopic, key, event); err != nil {
			log.Printf("checkout: publish notification for saga %s failed: %v", saga.ID, err)
		}
	}
}

var _ CheckoutUseCase = (*Service)(nil)
