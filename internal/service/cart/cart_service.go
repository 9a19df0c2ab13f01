package cart

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Domenick1991/slotcart/internal/domain"
	"github.com/Domenick1991/slotcart/internal/repository"
	"github.com/Domenick1991/slotcart/internal/scheduling"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartUseCase interface {
	GetCart(ctx context.Context, owner domain.OwnerKey) (*CartView, error)
	AddItem(ctx context.Context, owner domain.OwnerKey, input AddItemInput) (*domain.CartItem, error)
	UpdateItem(ctx context.Context, owner domain.OwnerKey, input UpdateItemInput) (*domain.CartItem, error)
	DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error
	Summarize(cart *domain.Cart) *CartView
}

type Catalog interface {
	GetProductType(ctx context.Context, productTypeID int64) (*scheduling.ProductType, error)
}

type CartView struct {
	Cart    *domain.Cart
	Summary domain.PaymentSummary
}

type AddItemInput struct {
	Slot    domain.SlotRef     `json:"slot"`
	Patient domain.PatientInfo `json:"patient"`
}

type UpdateItemInput struct {
	CartItemID string             `json:"cartItemId"`
	Patient    domain.PatientInfo `json:"patient"`
}

type CartService struct {
	carts   repository.CartRepository
	catalog Catalog
	taxRate decimal.Decimal
}

func NewCartService(carts repository.CartRepository, catalog Catalog, taxRate decimal.Decimal) *CartService {
	return &CartService{carts: carts, catalog: catalog, taxRate: taxRate}
}

func (s *CartService) GetCart(ctx context.Context, owner domain.OwnerKey) (*CartView, error) {
	cart, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.Summarize(cart), nil
}

func (s *CartService) Summarize(cart *domain.Cart) *CartView {
	return &CartView{Cart: cart, Summary: cart.Summary(s.taxRate)}
}

// AddItem freezes the catalog price of the product type into the new item.
func (s *CartService) AddItem(ctx context.Context, owner domain.OwnerKey, input AddItemInput) (*domain.CartItem, error) {
	if err := validateSlot(input.Slot); err != nil {
		return nil, err
	}
	if err := validatePatient(input.Patient); err != nil {
		return nil, err
	}

	productType, err := s.catalog.GetProductType(ctx, input.Slot.ProductTypeID)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}
	if productType.Price.IsNegative() {
		return nil, fmt.Errorf("product type %d has a negative price", productType.ID)
	}

	item := &domain.CartItem{
		ID:         uuid.NewString(),
		Owner:      owner,
		Slot:       input.Slot,
		Patient:    input.Patient,
		PriceCents: productType.PriceCents(),
		Status:     domain.CartItemStatusActive,
	}
	if err := s.carts.AddItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem replaces the patient details only; the slot is fixed once an item exists.
func (s *CartService) UpdateItem(ctx context.Context, owner domain.OwnerKey, input UpdateItemInput) (*domain.CartItem, error) {
	if input.CartItemID == "" {
		return nil, domain.NewValidationError("cartItemId", "is required")
	}
	if err := validatePatient(input.Patient); err != nil {
		return nil, err
	}
	return s.carts.UpdatePatient(ctx, owner, input.CartItemID, input.Patient)
}

func (s *CartService) DeleteItem(ctx context.Context, owner domain.OwnerKey, itemID string) error {
	if itemID == "" {
		return domain.NewValidationError("cartItemId", "is required")
	}
	return s.carts.DeleteItem(ctx, owner, itemID)
}

func validateSlot(slot domain.SlotRef) error {
	if slot.ProductTypeID <= 0 {
		return domain.NewValidationError("slot.productTypeId", "must be positive")
	}
	if slot.CalendarID <= 0 {
		return domain.NewValidationError("slot.calendarId", "must be positive")
	}
	if _, err := time.Parse(time.DateOnly, slot.Date); err != nil {
		return domain.NewValidationError("slot.date", "must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", slot.Time); err != nil {
		return domain.NewValidationError("slot.time", "must be HH:MM")
	}
	if slot.Timezone != "" {
		if _, err := time.LoadLocation(slot.Timezone); err != nil {
			return domain.NewValidationError("slot.timezone", "is not a known time zone")
		}
	}
	return nil
}

func validatePatient(p domain.PatientInfo) error {
	if strings.TrimSpace(p.FirstName) == "" {
		return domain.NewValidationError("patient.firstName", "is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return domain.NewValidationError("patient.lastName", "is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return domain.NewValidationError("patient.email", "is not a valid address")
	}
	if p.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, p.DateOfBirth); err != nil {
			return domain.NewValidationError("patient.dateOfBirth", "must be YYYY-MM-DD")
		}
	}
	return nil
}

var _ CartUseCase = (*CartService)(nil)
