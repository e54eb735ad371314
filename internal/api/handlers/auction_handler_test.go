package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidding-engine/internal/api/middleware"
	"bidding-engine/internal/domain"
	"bidding-engine/internal/infrastructure/memory"
	"bidding-engine/internal/services"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	e     *echo.Echo
	clock *clock.Manual
}

func setupAPI(t *testing.T) *testAPI {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	engine := services.NewBiddingEngine(memory.NewAuctionStore(), nil, nil, nil, nil, clk,
		services.EngineConfig{MaxRetries: 3, StoreTimeout: time.Second}, logger.NewNop())

	e := echo.New()
	e.Validator = NewRequestValidator()
	e.Use(middleware.EchoIdentity(middleware.NewAuthenticator(""), logger.NewNop()))
	NewAuctionHandler(engine, logger.NewNop()).Register(e)
	return &testAPI{e: e, clock: clk}
}

func (a *testAPI) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const createBody = `{"productName":"Oak desk","details":"1930s, restored","startingBidPrice":50,"auctionDuration":30}`

func (a *testAPI) createAuction(t *testing.T, seller string) AuctionResponse {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/auctions", seller, "seller", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AuctionResponse](t, rec)
}

func TestAuctionHandler_CreateAuction(t *testing.T) {
	api := setupAPI(t)

	created := api.createAuction(t, "seller-1")
	assert.Equal(t, "seller-1", created.RegisterBy)
	assert.Equal(t, 50.0, created.HighestBid)
	assert.Equal(t, "open", created.Phase)
	assert.Equal(t, (30 * time.Minute).Milliseconds(), created.TimeRemainingMs)
	assert.Empty(t, created.Bids)
	assert.True(t, created.AuctionEndTime.Equal(api.clock.Now().Add(30*time.Minute)))

	tests := []struct {
		name   string
		user   string
		role   string
		body   string
		status int
	}{
		{"anonymous", "", "", createBody, http.StatusUnauthorized},
		{"buyer", "buyer-1", "buyer", createBody, http.StatusForbidden},
		{"buyer with malformed body", "buyer-1", "buyer", `{"productName":`, http.StatusForbidden},
		{"malformed json", "seller-1", "seller", `{"productName":`, http.StatusBadRequest},
		{"missing price", "seller-1", "seller", `{"productName":"x","details":"y","auctionDuration":5}`, http.StatusBadRequest},
		{"zero duration", "seller-1", "seller", `{"productName":"x","details":"y","startingBidPrice":1,"auctionDuration":0}`, http.StatusBadRequest},
		{"blank name", "seller-1", "seller", `{"productName":"   ","details":"y","startingBidPrice":1,"auctionDuration":5}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/auctions", tt.user, tt.role, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAuctionHandler_PlaceBid(t *testing.T) {
	api := setupAPI(t)
	auction := api.createAuction(t, "seller-1")
	path := "/api/v1/auctions/" + auction.ID + "/bids"

	rec := api.do(t, http.MethodPost, path, "buyer-1", "buyer", `{"bidAmount":60}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	placed := decode[PlaceBidResponse](t, rec)
	assert.Equal(t, 60.0, placed.HighestBid)
	assert.Equal(t, 1, placed.BidCount)
	assert.Equal(t, "buyer-1", placed.Bid.Bidder)

	rec = api.do(t, http.MethodPost, path, "buyer-2", "buyer", `{"bidAmount":55}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bid_too_low", decode[ErrorResponse](t, rec).Reason)

	rec = api.do(t, http.MethodPost, path, "buyer-2", "buyer", `{"bidAmount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_amount", decode[ErrorResponse](t, rec).Reason)

	rec = api.do(t, http.MethodPost, path, "seller-1", "seller", `{"bidAmount":500}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Role is checked before the body is parsed
	rec = api.do(t, http.MethodPost, path, "seller-1", "seller", `{"bidAmount":"abc"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode[ErrorResponse](t, rec).Reason)
	rec = api.do(t, http.MethodPost, path, "seller-1", "seller", `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/auctions/auction-missing/bids", "buyer-2", "buyer", `{"bidAmount":500}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Legacy route
	rec = api.do(t, http.MethodPost, "/auction/"+auction.ID+"/place-bid", "buyer-3", "buyer", `{"bidAmount":61}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	api.clock.Advance(31 * time.Minute)
	rec = api.do(t, http.MethodPost, path, "buyer-2", "buyer", `{"bidAmount":70}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "auction_closed", decode[ErrorResponse](t, rec).Reason)

	rec = api.do(t, http.MethodGet, "/api/v1/auctions/"+auction.ID, "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[AuctionResponse](t, rec)
	assert.Equal(t, "closed", got.Phase)
	assert.Zero(t, got.TimeRemainingMs)
	assert.Equal(t, 61.0, got.HighestBid)
	require.Len(t, got.Bids, 2)
	assert.Equal(t, "buyer-1", got.Bids[0].Bidder)
}

func TestAuctionHandler_Reads(t *testing.T) {
	api := setupAPI(t)
	first := api.createAuction(t, "seller-1")
	api.clock.Advance(time.Minute)
	second := api.createAuction(t, "seller-1")
	api.createAuction(t, "seller-2")

	rec := api.do(t, http.MethodGet, "/api/v1/auctions/"+first.ID, "", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/auctions/nope", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/auctions", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AuctionResponse](t, rec), 3)

	for _, path := range []string{
		"/api/v1/auctions?registered_by=seller-1",
		"/api/v1/auctions/register/seller-1",
		"/auctions/register/seller-1",
	} {
		rec = api.do(t, http.MethodGet, path, "", "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		mine := decode[[]AuctionResponse](t, rec)
		require.Len(t, mine, 2, path)
		assert.Equal(t, []string{second.ID, first.ID}, []string{mine[0].ID, mine[1].ID}, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: x", domain.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: x", domain.ErrNotFound), http.StatusNotFound},
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrBidTooLow, http.StatusBadRequest},
		{domain.ErrAuctionClosed, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", domain.ErrTimeout, context.DeadlineExceeded), http.StatusServiceUnavailable},
		{domain.ErrConcurrencyConflict, http.StatusServiceUnavailable},
		{domain.ErrInternal, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestErrorBodyHidesInternals(t *testing.T) {
	body := errorBody(fmt.Errorf("%w: dial tcp 10.0.0.3:3306: refused", domain.ErrInternal))
	assert.Equal(t, "internal error", body.Error)
}
