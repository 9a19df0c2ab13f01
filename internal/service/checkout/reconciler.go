package checkout

import (
	"context"
	"log"
	"time"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/shopspring/decimal"
)

const defaultReconcileBatch = 100

// DefaultStaleAfter is used when no stale window is configured.
const DefaultStaleAfter = 15 * time.Minute

// Reconciler finishes or unwinds checkouts whose process died mid-saga. A saga is
// considered abandoned once its log record has not moved for staleAfter.
type Reconciler struct {
	svc        *Service
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

// NewReconciler never uses a window at or below the checkout lock TTL, since a saga that
// young may still be running in the app process.
func NewReconciler(svc *Service, staleAfter time.Duration) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if staleAfter <= svc.lockTTL {
		log.Printf("reconciler: stale window %s is within the lock ttl %s, using %s", staleAfter, svc.lockTTL, 2*svc.lockTTL)
		staleAfter = 2 * svc.lockTTL
	}
	return &Reconciler{svc: svc, staleAfter: staleAfter, batch: defaultReconcileBatch, now: time.Now}
}

// Reconcile handles one batch of stale sagas and returns how many reached a terminal state.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	stale, err := r.svc.sagas.ListStale(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range stale {
		saga := &stale[i]
		r.reconcile(ctx, saga)
		if saga.State.Terminal() {
			settled++
		}
		log.Printf("reconciler: saga %s (%s) now %s", saga.ID, saga.Flow, saga.State)
	}
	return settled, nil
}

func (r *Reconciler) reconcile(ctx context.Context, saga *domain.Saga) {
	ctx, span := r.svc.tracer.Start(ctx, "checkout.reconcile")
	defer span.End()

	items, total, err := r.checkedOutItems(ctx, saga)
	if err != nil {
		log.Printf("reconciler: load cart for saga %s: %v", saga.ID, err)
		return
	}

	switch {
	case saga.State == domain.SagaCaptured,
		saga.State == domain.SagaAllBooked && saga.Flow == domain.SagaFlowBookThenClear:
		if _, err := r.svc.complete(ctx, saga, items, total); err != nil {
			log.Printf("reconciler: saga %s: %v", saga.ID, err)
		}

	case saga.State == domain.SagaCapturing:
		auth := r.svc.payments.Capture(ctx, recordedAuthorization(saga))
		if auth.Status != domain.PaymentStatusSucceeded {
			saga.Error = "capture failed: " + auth.Error
			if err := r.svc.compensate(ctx, saga, &auth, total); err != nil {
				log.Printf("reconciler: saga %s: %v", saga.ID, err)
			}
			return
		}
		if err := r.svc.advance(ctx, saga, domain.SagaCaptured); err != nil {
			log.Printf("reconciler: saga %s: %v", saga.ID, err)
			return
		}
		if _, err := r.svc.complete(ctx, saga, items, total); err != nil {
			log.Printf("reconciler: saga %s: %v", saga.ID, err)
		}

	case saga.State == domain.SagaValidating:
		saga.Error = "abandoned before validation finished"
		r.svc.settle(ctx, saga, domain.SagaInvalid, total)

	case saga.State == domain.SagaValid || saga.State == domain.SagaAuthorizingPayment:
		if saga.PaymentIntentID != "" {
			r.svc.payments.Cancel(ctx, recordedAuthorization(saga))
		}
		saga.Error = "abandoned before booking"
		r.svc.settle(ctx, saga, domain.SagaFailed, total)

	default:
		if saga.Error == "" {
			saga.Error = "abandoned during " + string(saga.State)
		}
		var auth *domain.PaymentAuthorization
		if saga.PaymentIntentID != "" {
			recorded := recordedAuthorization(saga)
			auth = &recorded
		}
		if err := r.svc.compensate(ctx, saga, auth, total); err != nil {
			log.Printf("reconciler: saga %s: %v", saga.ID, err)
		}
	}
}

// recordedAuthorization rebuilds the authorization the saga was holding when it stalled.
func recordedAuthorization(saga *domain.Saga) domain.PaymentAuthorization {
	auth := domain.NewPaymentAuthorization()
	auth.IntentID = saga.PaymentIntentID
	if auth.IntentID != "" {
		auth.Status = domain.PaymentStatusRequiresCapture
	}
	return auth
}

// checkedOutItems returns the cart items the saga covered that are still in the cart.
func (r *Reconciler) checkedOutItems(ctx context.Context, saga *domain.Saga) ([]domain.CartItem, decimal.Decimal, error) {
	cart, err := r.svc.carts.GetCart(ctx, saga.Owner)
	if err != nil {
		return nil, decimal.Zero, err
	}

	wanted := make(map[string]struct{}, len(saga.ItemIDs))
	for _, id := range saga.ItemIDs {
		wanted[id] = struct{}{}
	}
	subset := &domain.Cart{Owner: cart.Owner}
	for _, item := range cart.Items {
		if _, ok := wanted[item.ID]; ok {
			subset.Items = append(subset.Items, item)
		}
	}
	return subset.Items, subset.Total(r.svc.taxRate), nil
}
