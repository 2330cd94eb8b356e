package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"minibus.schoolride.org/internal/models"
)

// BookingFilter narrows ListBookings; zero fields are ignored.
type BookingFilter struct {
	RouteID int
	UserID  int
}

func (f BookingFilter) query() url.Values {
	q := url.Values{}
	if f.RouteID > 0 {
		q.Set("route_id", strconv.Itoa(f.RouteID))
	}
	if f.UserID > 0 {
		q.Set("user_id", strconv.Itoa(f.UserID))
	}
	return q
}

func (c *Client) ListBookings(ctx context.Context, f BookingFilter) ([]models.Booking, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{op: "list_bookings", method: http.MethodGet, path: "/bookings", query: f.query()}, &raw); err != nil {
		return nil, err
	}
	wires, err := decodeList[bookingWire](raw, "bookings")
	if err != nil {
		return nil, decodeFailure("list_bookings", err)
	}
	out := make([]models.Booking, 0, len(wires))
	for _, w := range wires {
		b, err := w.model()
		if err != nil {
			return nil, decodeFailure("list_bookings", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// CreateBooking submits a new booking. The Idempotency-Key lets the backend
// drop a resubmission after a timed-out first attempt.
func (c *Client) CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	var w bookingWire
	req := request{
		op:      "create_booking",
		method:  http.MethodPost,
		path:    "/bookings",
		body:    bookingToWire(b),
		headers: map[string]string{"Idempotency-Key": uuid.NewString()},
	}
	if err := c.do(ctx, req, &w); err != nil {
		return models.Booking{}, err
	}
	return c.decodeBooking("create_booking", w, b)
}

func (c *Client) UpdateBooking(ctx context.Context, b models.Booking) (models.Booking, error) {
	var w bookingWire
	req := request{
		op:     "update_booking",
		method: http.MethodPatch,
		path:   "/bookings/" + strconv.Itoa(b.ID),
		body:   bookingToWire(b),
	}
	if err := c.do(ctx, req, &w); err != nil {
		return models.Booking{}, err
	}
	return c.decodeBooking("update_booking", w, b)
}

func (c *Client) CancelBooking(ctx context.Context, bookingID int) error {
	req := request{
		op:     "cancel_booking",
		method: http.MethodPatch,
		path:   "/bookings/" + strconv.Itoa(bookingID),
		body:   map[string]string{"status": string(models.BookingCancelled)},
	}
	return c.do(ctx, req, nil)
}

// decodeBooking prefers the backend's echo and falls back to what was sent
// when the response carried no booking.
func (c *Client) decodeBooking(op string, w bookingWire, sent models.Booking) (models.Booking, error) {
	if w.StartDate == "" {
		if w.ID != 0 {
			sent.ID = w.ID
		}
		return sent, nil
	}
	b, err := w.model()
	if err != nil {
		return models.Booking{}, decodeFailure(op, err)
	}
	return b, nil
}
