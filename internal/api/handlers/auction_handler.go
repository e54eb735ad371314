package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AuctionService is the engine surface the REST API exposes.
type AuctionService interface {
	Authorize(identity domain.Identity, op domain.Operation) error
	CreateAuction(ctx context.Context, identity domain.Identity, input domain.CreateAuctionInput) (*domain.Auction, error)
	PlaceBid(ctx context.Context, identity domain.Identity, auctionID string, amount float64) (*domain.PlacedBid, error)
	GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error)
	ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error)
	Phase(auction *domain.Auction) domain.Phase
	TimeRemaining(auction *domain.Auction) time.Duration
}

type AuctionHandler struct {
	engine AuctionService
	log    logger.Logger
}

type CreateAuctionRequest struct {
	ProductName      string   `json:"productName" validate:"required"`
	Details          string   `json:"details" validate:"required"`
	StartingBidPrice *float64 `json:"startingBidPrice" validate:"required,gte=0"`
	AuctionDuration  int      `json:"auctionDuration" validate:"required,min=1"`
	ProductImage     string   `json:"productImage"`
}

type PlaceBidRequest struct {
	BidAmount *float64 `json:"bidAmount" validate:"required"`
}

type BidResponse struct {
	Bidder    string    `json:"bidder"`
	BidAmount float64   `json:"bidAmount"`
	BidTime   time.Time `json:"bidTime"`
}

type AuctionResponse struct {
	ID               string        `json:"id"`
	ProductName      string        `json:"productName"`
	Details          string        `json:"details"`
	StartingBidPrice float64       `json:"startingBidPrice"`
	AuctionDuration  int           `json:"auctionDuration"`
	ProductImage     string        `json:"productImage,omitempty"`
	AuctionEndTime   time.Time     `json:"auctionEndTime"`
	RegisterBy       string        `json:"registerBy"`
	Bids             []BidResponse `json:"bids"`
	HighestBid       float64       `json:"highestBid"`
	Phase            string        `json:"phase"`
	TimeRemainingMs  int64         `json:"timeRemainingMs"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type PlaceBidResponse struct {
	AuctionID  string      `json:"auctionId"`
	Bid        BidResponse `json:"bid"`
	HighestBid float64     `json:"highestBid"`
	BidCount   int         `json:"bidCount"`
}

func NewAuctionHandler(engine AuctionService, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		engine: engine,
		log:    log,
	}
}

// Register mounts the routes. The legacy paths stay available for existing
// clients.
func (h *AuctionHandler) Register(e *echo.Echo) {
	api := e.Group("/api/v1")
	api.POST("/auctions", h.CreateAuction)
	api.GET("/auctions", h.ListAuctions)
	api.GET("/auctions/:id", h.GetAuction)
	api.POST("/auctions/:id/bids", h.PlaceBid)
	api.GET("/auctions/register/:registerId", h.ListAuctionsByRegister)

	e.POST("/create-auction", h.CreateAuction)
	e.POST("/auction/:id/place-bid", h.PlaceBid)
	e.GET("/auctions", h.ListAuctions)
	e.GET("/auctions/:id", h.GetAuction)
	e.GET("/auctions/register/:registerId", h.ListAuctionsByRegister)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	if err := h.engine.Authorize(identity, domain.OpCreateAuction); err != nil {
		return h.fail(c, "create auction", err)
	}

	var req CreateAuctionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	auction, err := h.engine.CreateAuction(c.Request().Context(), identity, domain.CreateAuctionInput{
		ProductName:      req.ProductName,
		Details:          req.Details,
		StartingBidPrice: *req.StartingBidPrice,
		DurationMinutes:  req.AuctionDuration,
		ProductImageRef:  req.ProductImage,
	})
	if err != nil {
		return h.fail(c, "create auction", err)
	}

	return c.JSON(http.StatusCreated, h.toResponse(auction))
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	identity, err := requireIdentity(c)
	if err != nil {
		return err
	}
	if err := h.engine.Authorize(identity, domain.OpPlaceBid); err != nil {
		return h.fail(c, "place bid", err)
	}

	var req PlaceBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	placed, err := h.engine.PlaceBid(c.Request().Context(), identity, c.Param("id"), *req.BidAmount)
	if err != nil {
		return h.fail(c, "place bid", err)
	}

	return c.JSON(http.StatusOK, PlaceBidResponse{
		AuctionID:  placed.AuctionID,
		Bid:        toBidResponse(placed.Bid),
		HighestBid: placed.HighestBid,
		BidCount:   placed.BidCount,
	})
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.engine.GetAuction(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get auction", err)
	}
	return c.JSON(http.StatusOK, h.toResponse(auction))
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	return h.list(c, domain.AuctionFilter{RegisteredBy: c.QueryParam("registered_by")})
}

func (h *AuctionHandler) ListAuctionsByRegister(c echo.Context) error {
	return h.list(c, domain.AuctionFilter{RegisteredBy: c.Param("registerId")})
}

func (h *AuctionHandler) list(c echo.Context, filter domain.AuctionFilter) error {
	auctions, err := h.engine.ListAuctions(c.Request().Context(), filter)
	if err != nil {
		return h.fail(c, "list auctions", err)
	}

	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, h.toResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AuctionHandler) fail(c echo.Context, op string, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "op", op, "path", c.Path(), "status", status, "error", err)
	} else {
		h.log.Debug("Request rejected", "op", op, "path", c.Path(), "status", status, "error", err)
	}
	return c.JSON(status, errorBody(err))
}

func (h *AuctionHandler) toResponse(a *domain.Auction) AuctionResponse {
	bids := make([]BidResponse, 0, len(a.Bids))
	for _, b := range a.Bids {
		bids = append(bids, toBidResponse(b))
	}
	return AuctionResponse{
		ID:               a.ID,
		ProductName:      a.ProductName,
		Details:          a.Details,
		StartingBidPrice: a.StartingBidPrice,
		AuctionDuration:  a.DurationMinutes,
		ProductImage:     a.ProductImageRef,
		AuctionEndTime:   a.EndTime,
		RegisterBy:       a.RegisteredBy,
		Bids:             bids,
		HighestBid:       a.HighestBid(),
		Phase:            h.engine.Phase(a).String(),
		TimeRemainingMs:  h.engine.TimeRemaining(a).Milliseconds(),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toBidResponse(b domain.Bid) BidResponse {
	return BidResponse{Bidder: b.Bidder, BidAmount: b.Amount, BidTime: b.PlacedAt}
}

// requireIdentity and bindAndValidate return *echo.HTTPError; echo's error
// handler renders its ErrorResponse message as the body.
func requireIdentity(c echo.Context) (domain.Identity, error) {
	identity := domain.IdentityFromContext(c.Request().Context())
	if identity.IsZero() {
		return identity, echo.NewHTTPError(http.StatusUnauthorized,
			ErrorResponse{Error: "authentication required", Reason: "unauthenticated"})
	}
	return identity, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest,
			ErrorResponse{Error: "invalid request body", Reason: "invalid_input"})
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest,
			ErrorResponse{Error: fmt.Sprintf("invalid request: %v", err), Reason: "invalid_input"})
	}
	return nil
}
