package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-booking/internal/middleware"
	"github.com/iliyamo/cinema-booking/internal/model"
	"github.com/iliyamo/cinema-booking/internal/service"
)

type fakeEngine struct {
	create  func(service.CreateInput) (*service.CreateResult, error)
	confirm func(service.ConfirmInput) (*service.ConfirmResult, error)
	cancel  func(service.CancelInput) (*service.CancelResult, error)
	get     func(model.Actor, uint64) (*service.BookingDetails, error)
	pending func(model.Actor) (*model.PendingBooking, error)
	seatMap func(uint64) ([]model.SeatStatus, error)
	payment func(model.PaymentResult) error
}

func (f *fakeEngine) Create(_ context.Context, in service.CreateInput) (*service.CreateResult, error) {
	return f.create(in)
}

func (f *fakeEngine) Confirm(_ context.Context, in service.ConfirmInput) (*service.ConfirmResult, error) {
	return f.confirm(in)
}

func (f *fakeEngine) Cancel(_ context.Context, in service.CancelInput) (*service.CancelResult, error) {
	return f.cancel(in)
}

func (f *fakeEngine) Get(_ context.Context, a model.Actor, id uint64) (*service.BookingDetails, error) {
	return f.get(a, id)
}

func (f *fakeEngine) GetPending(_ context.Context, a model.Actor) (*model.PendingBooking, error) {
	return f.pending(a)
}

func (f *fakeEngine) SeatMap(_ context.Context, id uint64) ([]model.SeatStatus, error) {
	return f.seatMap(id)
}

func (f *fakeEngine) HandlePaymentResult(_ context.Context, r model.PaymentResult) error {
	return f.payment(r)
}

type fakeCache struct{ dropped []uint64 }

func (f *fakeCache) Invalidate(_ context.Context, id uint64) error {
	f.dropped = append(f.dropped, id)
	return nil
}

var customer = model.Actor{UserID: 7, Role: model.RoleCustomer}

// newServer routes the handler the way the router does, with a stub
// authenticator that installs actor.
func newServer(engine *fakeEngine, cache *fakeCache, actor *model.Actor) *echo.Echo {
	var inv SeatMapInvalidator
	if cache != nil {
		inv = cache
	}
	h := NewBookingHandler(engine, inv)
	auth := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if actor != nil {
				middleware.SetActor(c, *actor)
			}
			return next(c)
		}
	}
	e := echo.New()
	e.GET("/v1/showtimes/:id/seats", h.SeatMap)
	e.POST("/v1/showtimes/:id/bookings", h.Create, auth)
	e.GET("/v1/bookings/pending", h.GetPending, auth)
	e.GET("/v1/bookings/:id", h.Get, auth)
	e.POST("/v1/bookings/:id/confirm", h.Confirm, auth)
	e.POST("/v1/bookings/:id/cancel", h.Cancel, auth)
	e.POST("/v1/payments/events", h.PaymentEvent)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateBooking(t *testing.T) {
	var got service.CreateInput
	engine := &fakeEngine{create: func(in service.CreateInput) (*service.CreateResult, error) {
		got = in
		return &service.CreateResult{Booking: model.Booking{ID: 1, ShowtimeID: in.ShowtimeID, Status: model.BookingPending, TotalAmount: 220}}, nil
	}}
	cache := &fakeCache{}
	e := newServer(engine, cache, &customer)

	rec := do(e, http.MethodPost, "/v1/showtimes/10/bookings",
		`{"seats":[{"seat_id":1},{"row":"B","column":2}],"promotion_id":3,"points_to_use":40}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total_amount":220`)

	assert.Equal(t, customer, got.Actor)
	assert.Equal(t, uint64(10), got.ShowtimeID)
	assert.Equal(t, []model.SeatSelector{{SeatLayoutID: 1}, {Row: "B", Column: 2}}, got.Seats)
	require.NotNil(t, got.PromotionID)
	assert.Equal(t, uint64(3), *got.PromotionID)
	assert.Equal(t, int64(40), got.PointsToUse)
	assert.Equal(t, []uint64{10}, cache.dropped)
}

func TestCreateBookingRejectsBadInput(t *testing.T) {
	engine := &fakeEngine{create: func(service.CreateInput) (*service.CreateResult, error) {
		t.Fatal("engine must not be called")
		return nil, nil
	}}
	e := newServer(engine, nil, &customer)

	cases := map[string]struct {
		path, body, code string
	}{
		"bad id":          {"/v1/showtimes/abc/bookings", `{"seats":[{"seat_id":1}]}`, codeInvalidID},
		"zero id":         {"/v1/showtimes/0/bookings", `{"seats":[{"seat_id":1}]}`, codeInvalidID},
		"no seats":        {"/v1/showtimes/10/bookings", `{"seats":[]}`, codeInvalidSeatSelection},
		"negative points": {"/v1/showtimes/10/bookings", `{"seats":[{"seat_id":1}],"points_to_use":-5}`, codeInvalidRequestBody},
		"not json":        {"/v1/showtimes/10/bookings", `{"seats":`, codeInvalidRequestBody},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(e, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"code":%q`, tc.code))
		})
	}

	rec := do(newServer(engine, nil, nil), http.MethodPost, "/v1/showtimes/10/bookings", `{"seats":[{"seat_id":1}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServiceErrorMapping(t *testing.T) {
	starts := time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"pending", &service.PendingBookingError{BookingID: 4, RemainingMinutes: 3, Seats: []string{"A1"}, StartsAt: starts}, http.StatusConflict, codePendingBookingExists},
		{"seat taken", fmt.Errorf("create booking: %w", &service.SeatUnavailableError{Positions: []string{"A1"}}), http.StatusConflict, codeSeatUnavailable},
		{"selection", &service.InvalidSeatSelectionError{Selectors: []string{"Z9"}, Reason: "unknown seat"}, http.StatusBadRequest, codeInvalidSeatSelection},
		{"showtime missing", service.ErrShowtimeNotFound, http.StatusNotFound, codeShowtimeNotFound},
		{"showtime closed", service.ErrShowtimeNotBookable, http.StatusBadRequest, codeShowtimeNotBookable},
		{"points", &service.InsufficientPointsError{Requested: 100, Available: 20}, http.StatusBadRequest, codeInsufficientPoints},
		{"state", &service.InvalidBookingStateError{BookingID: 1, Status: model.BookingConfirmed, Want: model.BookingPending}, http.StatusConflict, codeInvalidBookingState},
		{"unauthorized", service.ErrUnauthorized, http.StatusForbidden, codeUnauthorized},
		{"finalized", service.ErrAlreadyFinalized, http.StatusConflict, codeAlreadyFinalized},
		{"pricing", service.ErrPricingNotFound, http.StatusInternalServerError, codePricingNotFound},
		{"promotion", service.ErrPromotionNotApplicable, http.StatusBadRequest, codePromotionNotApplicable},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, codeInternalError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{create: func(service.CreateInput) (*service.CreateResult, error) { return nil, tc.err }}
			cache := &fakeCache{}
			rec := do(newServer(engine, cache, &customer), http.MethodPost, "/v1/showtimes/10/bookings", `{"seats":[{"seat_id":1}]}`)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"code":%q`, tc.code))
			assert.Empty(t, cache.dropped)
		})
	}
}

func TestPendingBookingErrorBody(t *testing.T) {
	engine := &fakeEngine{create: func(service.CreateInput) (*service.CreateResult, error) {
		return nil, &service.PendingBookingError{
			BookingID: 4, RemainingMinutes: 3, Seats: []string{"A1", "A2"},
			MovieTitle: "Dune", RoomName: "Hall 1", ShowtimeID: 10,
			StartsAt: time.Date(2026, 10, 14, 14, 0, 0, 0, time.UTC),
		}
	}}
	rec := do(newServer(engine, nil, &customer), http.MethodPost, "/v1/showtimes/10/bookings", `{"seats":[{"seat_id":1}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{
        "error": "a pending booking awaits payment",
        "code": "pending_booking_exists",
        "booking_id": 4,
        "remaining_minutes": 3,
        "seats": ["A1", "A2"],
        "movie_title": "Dune",
        "room_name": "Hall 1",
        "showtime_id": 10,
        "starts_at": "2026-10-14T14:00:00Z"
    }`, rec.Body.String())
}

func TestGetAndPending(t *testing.T) {
	engine := &fakeEngine{
		get: func(a model.Actor, id uint64) (*service.BookingDetails, error) {
			if id != 5 {
				return nil, service.ErrBookingNotFound
			}
			return &service.BookingDetails{Booking: model.Booking{ID: 5, CreatorID: a.UserID}}, nil
		},
		pending: func(model.Actor) (*model.PendingBooking, error) { return nil, service.ErrBookingNotFound },
	}
	e := newServer(engine, nil, &customer)

	rec := do(e, http.MethodGet, "/v1/bookings/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"creator_id":7`)

	rec = do(e, http.MethodGet, "/v1/bookings/6", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/v1/bookings/pending", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), codeBookingNotFound)
}

func TestConfirmAndCancel(t *testing.T) {
	var confirmed service.ConfirmInput
	var cancelled service.CancelInput
	engine := &fakeEngine{
		confirm: func(in service.ConfirmInput) (*service.ConfirmResult, error) {
			confirmed = in
			return &service.ConfirmResult{Booking: model.Booking{ID: in.BookingID, Status: model.BookingConfirmed}, PaymentRecorded: true}, nil
		},
		cancel: func(in service.CancelInput) (*service.CancelResult, error) {
			cancelled = in
			return &service.CancelResult{Booking: model.Booking{ID: in.BookingID, ShowtimeID: 10, Status: model.BookingCancelled}}, nil
		},
	}
	cache := &fakeCache{}
	e := newServer(engine, cache, &customer)

	rec := do(e, http.MethodPost, "/v1/bookings/5/confirm", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ConfirmInput{Actor: customer, BookingID: 5}, confirmed)

	rec = do(e, http.MethodPost, "/v1/bookings/5/confirm", `{"amount":220,"method":"CARD","reference":"ch_1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(220), confirmed.Amount)
	assert.Equal(t, "CARD", confirmed.Method)

	rec = do(e, http.MethodPost, "/v1/bookings/5/cancel", `{"reason":"plans changed"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plans changed", cancelled.Reason)
	assert.Empty(t, cancelled.OnlyIfStatus)
	assert.Equal(t, []uint64{10}, cache.dropped)
}

func TestSeatMap(t *testing.T) {
	engine := &fakeEngine{seatMap: func(id uint64) ([]model.SeatStatus, error) {
		if id != 10 {
			return nil, service.ErrShowtimeNotFound
		}
		return []model.SeatStatus{
			{SeatLayout: model.SeatLayout{ID: 1, RowLabel: "A", Column: 1, IsActive: true}, Label: "A1", Occupied: true},
			{SeatLayout: model.SeatLayout{ID: 2, RowLabel: "A", Column: 2, IsActive: true}, Label: "A2"},
			{SeatLayout: model.SeatLayout{ID: 3, RowLabel: "A", Column: 3}, Label: "A3"},
		}, nil
	}}
	e := newServer(engine, nil, nil)

	rec := do(e, http.MethodGet, "/v1/showtimes/10/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":1`)

	rec = do(e, http.MethodGet, "/v1/showtimes/11/seats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentEvent(t *testing.T) {
	var got model.PaymentResult
	engine := &fakeEngine{payment: func(r model.PaymentResult) error {
		got = r
		switch r.BookingID {
		case 1:
			return nil
		case 2:
			return fmt.Errorf("payment failed for booking 2: %w", &service.InvalidBookingStateError{BookingID: 2, Status: model.BookingConfirmed, Want: model.BookingPending})
		}
		return service.ErrBookingNotFound
	}}
	e := newServer(engine, nil, nil)

	rec := do(e, http.MethodPost, "/v1/payments/events", `{"booking_id":1,"succeeded":true,"amount":220,"reference":"ch_1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, got.Succeeded)
	assert.Equal(t, "ch_1", got.Reference)

	rec = do(e, http.MethodPost, "/v1/payments/events", `{"booking_id":2,"succeeded":false,"reason":"declined"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)

	rec = do(e, http.MethodPost, "/v1/payments/events", `{"booking_id":3,"succeeded":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/v1/payments/events", `{"succeeded":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	e := echo.New()
	e.GET("/a", Health(HealthCheck{Name: "mysql", Required: true, Check: ok}, HealthCheck{Name: "redis", Check: down}))
	e.GET("/b", Health(HealthCheck{Name: "mysql", Required: true, Check: down}))

	rec := do(e, http.MethodGet, "/a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"mysql":"ok","redis":"dial tcp: refused"}}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/b", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unavailable"`)
}
