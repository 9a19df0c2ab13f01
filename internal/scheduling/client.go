// Package scheduling talks to the external inventory/scheduling service that owns slot capacity and bookings.
package scheduling

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Domenick1991/slotcart/internal/rest"
	"github.com/shopspring/decimal"
)

type Slot struct {
	Time           string `json:"time"`
	SlotsAvailable int    `json:"slotsAvailable"`
}

type ProductType struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// PriceCents rounds the catalog price to cents.
func (p ProductType) PriceCents() int64 {
	return p.Price.Round(2).Shift(2).IntPart()
}

type BookingRequest struct {
	ProductTypeID int64  `json:"appointmentTypeID"`
	CalendarID    int64  `json:"calendarID"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Timezone      string `json:"timezone"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	DateOfBirth   string `json:"dateOfBirth,omitempty"`
	BookedBy      string `json:"bookedBy"`
	BookedByEmail string `json:"bookedByEmail"`
	Reference     string `json:"reference"`
}

type Booking struct {
	ID string
}

type Client struct {
	rest *rest.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{rest: rest.NewClient(baseURL, apiKey, timeout)}
}

func (c *Client) GetAvailableSlots(ctx context.Context, productTypeID int64, date string, calendarID int64, timezone string) ([]Slot, error) {
	query := url.Values{}
	query.Set("appointmentTypeID", strconv.FormatInt(productTypeID, 10))
	query.Set("date", date)
	query.Set("calendarID", strconv.FormatInt(calendarID, 10))
	if timezone != "" {
		query.Set("timezone", timezone)
	}

	var slots []Slot
	if err := c.rest.Do(ctx, http.MethodGet, "/availability/times", query, nil, &slots); err != nil {
		return nil, fmt.Errorf("get available slots: %w", err)
	}
	return slots, nil
}

func (c *Client) GetProductType(ctx context.Context, productTypeID int64) (*ProductType, error) {
	var pt ProductType
	if err := c.rest.Do(ctx, http.MethodGet, "/appointment-types/"+strconv.FormatInt(productTypeID, 10), nil, nil, &pt); err != nil {
		return nil, fmt.Errorf("get product type %d: %w", productTypeID, err)
	}
	return &pt, nil
}

func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Booking, error) {
	var res struct {
		ID int64 `json:"id"`
	}
	if err := c.rest.Do(ctx, http.MethodPost, "/appointments", nil, req, &res); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	if res.ID == 0 {
		return nil, fmt.Errorf("create booking: response carried no id")
	}
	return &Booking{ID: strconv.FormatInt(res.ID, 10)}, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	if err := c.rest.Do(ctx, http.MethodPut, "/appointments/"+url.PathEscape(bookingID)+"/cancel", nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("cancel booking %s: %w", bookingID, err)
	}
	return nil
}
