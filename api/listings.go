package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rentora/rentora/internal/domain"
	"github.com/rentora/rentora/internal/repository"
	"github.com/rentora/rentora/internal/service/booking"
)

type ListingHandler struct {
	service  booking.BookingUseCase
	listings repository.ListingRepository
	loc      *time.Location
}

func NewListingHandler(service booking.BookingUseCase, listings repository.ListingRepository, loc *time.Location) *ListingHandler {
	return &ListingHandler{service: service, listings: listings, loc: loc}
}

func (h *ListingHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id/availability", h.availability)
	router.POST("/:id/blackouts", h.addBlackout)
	router.DELETE("/:id/blackouts/:date", h.removeBlackout)
	router.DELETE("/:id", h.delete)
}

type dateRangeResponse struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type blackoutResponse struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type availabilityResponse struct {
	BookedRanges  []dateRangeResponse `json:"booked_ranges"`
	BlackoutDates []blackoutResponse  `json:"blackout_dates"`
}

func (h *ListingHandler) availability(c *gin.Context) {
	var from, to time.Time
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.ParseInLocation("2006-01-02", v, h.loc); err != nil {
			writeError(c, domain.Validation("invalid from date: %v", err))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.ParseInLocation("2006-01-02", v, h.loc); err != nil {
			writeError(c, domain.Validation("invalid to date: %v", err))
			return
		}
	}

	avail, err := h.service.ListAvailability(c.Request.Context(), c.Param("id"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := availabilityResponse{
		BookedRanges:  make([]dateRangeResponse, 0, len(avail.BookedRanges)),
		BlackoutDates: make([]blackoutResponse, 0, len(avail.BlackoutDates)),
	}
	for _, r := range avail.BookedRanges {
		resp.BookedRanges = append(resp.BookedRanges, dateRangeResponse{
			CheckIn:  r.CheckIn.UTC().Format(time.RFC3339),
			CheckOut: r.CheckOut.UTC().Format(time.RFC3339),
		})
	}
	for _, b := range avail.BlackoutDates {
		resp.BlackoutDates = append(resp.BlackoutDates, blackoutResponse{
			Date:   b.Date.In(h.loc).Format("2006-01-02"),
			Reason: b.Reason,
		})
	}
	c.JSON(http.StatusOK, resp)
}

type addBlackoutRequest struct {
	Date   string `json:"date" binding:"required"`
	Reason string `json:"reason"`
}

func (h *ListingHandler) addBlackout(c *gin.Context) {
	listing, ok := h.requireOwner(c)
	if !ok {
		return
	}

	var req addBlackoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.Validation("invalid request body: %v", err))
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
	if err != nil {
		writeError(c, domain.Validation("invalid date: %v", err))
		return
	}

	entry := domain.BlackoutEntry{ListingID: listing.ID, Date: date, Reason: req.Reason}
	if err := h.listings.AddBlackout(c.Request.Context(), entry); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, blackoutResponse{Date: req.Date, Reason: req.Reason})
}

func (h *ListingHandler) removeBlackout(c *gin.Context) {
	listing, ok := h.requireOwner(c)
	if !ok {
		return
	}

	date, err := time.ParseInLocation("2006-01-02", c.Param("date"), h.loc)
	if err != nil {
		writeError(c, domain.Validation("invalid date: %v", err))
		return
	}
	if err := h.listings.RemoveBlackout(c.Request.Context(), listing.ID, date); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ListingHandler) delete(c *gin.Context) {
	listing, ok := h.requireOwner(c)
	if !ok {
		return
	}
	if err := h.listings.Delete(c.Request.Context(), listing.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// requireOwner loads the listing and checks the caller owns it. Non-owners get
// not_found so the response does not reveal whether the listing exists.
func (h *ListingHandler) requireOwner(c *gin.Context) (*domain.Listing, bool) {
	actor := callerID(c)
	if actor == "" {
		writeError(c, domain.Unauthenticated("identity is required"))
		return nil, false
	}
	listing, err := h.listings.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if listing.OwnerID != actor {
		writeError(c, domain.NotFound("listing not found"))
		return nil, false
	}
	return listing, true
}
