package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/service/booking"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type reserveRequest struct {
	ListingID       string    `json:"listing_id" binding:"required"`
	CheckIn         time.Time `json:"check_in" binding:"required"`
	CheckOut        time.Time `json:"check_out" binding:"required"`
	Guests          int       `json:"guests" binding:"required"`
	SpecialRequests string    `json:"special_requests"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type bookingResponse struct {
	ID              string `json:"id"`
	BookingNumber   string `json:"booking_number"`
	ListingID       string `json:"listing_id"`
	CustomerID      string `json:"customer_id"`
	CheckIn         string `json:"check_in"`
	CheckOut        string `json:"check_out"`
	Guests          int    `json:"guests"`
	SpecialRequests string `json:"special_requests,omitempty"`
	TotalPriceCents int64  `json:"total_price_cents"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	PaymentRef      string `json:"payment_ref,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	return bookingResponse{
		ID:              b.ID,
		BookingNumber:   b.BookingNumberString(),
		ListingID:       b.ListingID,
		CustomerID:      b.CustomerID,
		CheckIn:         b.CheckIn.UTC().Format(time.RFC3339),
		CheckOut:        b.CheckOut.UTC().Format(time.RFC3339),
		Guests:          b.Guests,
		SpecialRequests: b.SpecialRequests,
		TotalPriceCents: b.TotalPriceCents,
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		PaymentRef:      b.PaymentRef,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.reserve)
	router.GET("/", h.list)
	router.GET("/:id", h.get)
	router.PATCH("/:id/status", h.updateStatus)
}

func (h *BookingHandler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validation("invalid request body: %v", err))
		return
	}

	b, err := h.service.Reserve(c.Request.Context(), booking.ReserveInput{
		CustomerID:      callerID(c),
		ListingID:       req.ListingID,
		CheckIn:         req.CheckIn,
		CheckOut:        req.CheckOut,
		Guests:          req.Guests,
		SpecialRequests: req.SpecialRequests,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) list(c *gin.Context) {
	bookings, err := h.service.ListCustomerBookings(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]bookingResponse, 0, len(bookings))
	for i := range bookings {
		out = append(out, toBookingResponse(&bookings[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *BookingHandler) get(c *gin.Context) {
	b, err := h.service.GetBooking(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) updateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validation("invalid request body: %v", err))
		return
	}

	b, err := h.service.UpdateStatus(c.Request.Context(), callerID(c), c.Param("id"), domain.BookingStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}
