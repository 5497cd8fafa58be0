package futapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"futapi/session"

	http "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"
)

// statusOutbid is returned by the bid endpoint when someone bid higher first.
const statusOutbid = 461

const (
	defaultPageSize     = 21
	defaultSellDuration = 3600
)

// ItemData is an item as the trade endpoints describe it.
type ItemData struct {
	ID            int64  `json:"id"`
	AssetID       int64  `json:"assetId"`
	ResourceID    int64  `json:"resourceId"`
	ItemType      string `json:"itemType"`
	Rating        int    `json:"rating"`
	Rareflag      int    `json:"rareflag"`
	Pile          int    `json:"pile"`
	Untradeable   bool   `json:"untradeable"`
	LastSalePrice int64  `json:"lastSalePrice"`
}

// AuctionInfo is one listing on the transfer market.
type AuctionInfo struct {
	TradeID     int64    `json:"tradeId"`
	TradeState  string   `json:"tradeState"`
	BidState    string   `json:"bidState"`
	BuyNowPrice int64    `json:"buyNowPrice"`
	CurrentBid  int64    `json:"currentBid"`
	StartingBid int64    `json:"startingBid"`
	Expires     int64    `json:"expires"`
	Watched     bool     `json:"watched"`
	ItemData    ItemData `json:"itemData"`
}

// TradeResponse is returned by the bid, tradepile and watchlist endpoints.
type TradeResponse struct {
	Credits     int64         `json:"credits"`
	AuctionInfo []AuctionInfo `json:"auctionInfo"`
}

// ItemsResponse lists items outside any auction.
type ItemsResponse struct {
	ItemData []ItemData `json:"itemData"`
}

// SellResponse carries the trade id of a new listing.
type SellResponse struct {
	ID int64 `json:"id"`
}

// PileSizes are the tradepile and watchlist sizes recorded at login.
type PileSizes struct {
	Tradepile int `json:"tradepile"`
	Watchlist int `json:"watchlist"`
}

// SearchParams filters a transfer market search. Zero values are left out
// of the query.
type SearchParams struct {
	CardType    string
	MinPrice    int64
	MaxPrice    int64
	MinBuy      int64
	MaxBuy      int64
	Level       string
	Category    string
	AssetID     int64
	DefID       int64
	League      int64
	Club        int64
	Position    string
	Zone        string
	Nationality int64
	Rare        bool
	PlayStyle   int64
	// Start is the result offset, a multiple of the page size.
	Start    int
	PageSize int
}

func (p SearchParams) query() map[string]any {
	cardType := p.CardType
	if cardType == "" {
		cardType = "player"
	}
	num := p.PageSize
	if num <= 0 {
		num = defaultPageSize
	}

	q := map[string]any{
		"start": p.Start,
		"num":   num,
		"type":  cardType,
	}
	setString := func(key, v string) {
		if v != "" {
			q[key] = v
		}
	}
	setInt := func(key string, v int64) {
		if v != 0 {
			q[key] = v
		}
	}

	setString("lev", p.Level)
	setString("cat", p.Category)
	setInt("maskedDefId", p.AssetID)
	setInt("definitionId", p.DefID)
	setInt("micr", p.MinPrice)
	setInt("macr", p.MaxPrice)
	setInt("minb", p.MinBuy)
	setInt("maxb", p.MaxBuy)
	setInt("leag", p.League)
	setInt("team", p.Club)
	setString("pos", p.Position)
	setString("zone", p.Zone)
	setInt("nat", p.Nationality)
	if p.Rare {
		q["rare"] = "SP"
	}
	setInt("playStyle", p.PlayStyle)
	return q
}

// SellParams lists an item on the transfer market.
type SellParams struct {
	ItemID      int64
	StartingBid int64
	BuyNowPrice int64
	// Duration in seconds, one hour when zero.
	Duration int
	// Fast skips the trade status check after listing.
	Fast bool
}

func (c *Client) pageViews(ctx context.Context, pages ...string) {
	if c.pin == nil {
		return
	}
	events := make([]Event, 0, len(pages))
	for _, page := range pages {
		events = append(events, c.pin.PageView(page))
	}
	c.pin.Emit(ctx, events...)
}

func (c *Client) updateCredits(credits int64) {
	if credits == 0 {
		return
	}
	info, err := session.Get[UserInfo](c.store, session.KeyUserInfo)
	if err != nil {
		c.logger.Debug("no user info to update credits on", zap.Error(err))
		return
	}
	info.Credits = credits
	c.store.Save(session.KeyUserInfo, info)
}

// Search queries the transfer market. The first page is wrapped in the page
// views the web app reports.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]AuctionInfo, error) {
	if params.Start == 0 {
		c.pageViews(ctx, "Transfer Market Search")
	}

	var res TradeResponse
	err := c.pipeline.ExecuteInto(ctx, Call{
		Method: http.MethodGet,
		Path:   "transfermarket",
		Params: params.query(),
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if params.Start == 0 {
		c.pageViews(ctx, "Transfer Market Results - List View", "Item - Detail View")
	}
	if res.AuctionInfo == nil {
		return []AuctionInfo{}, nil
	}
	return res.AuctionInfo, nil
}

// Bid places bid on tradeID. Being outbid yields an empty response and no
// error.
func (c *Client) Bid(ctx context.Context, tradeID, bid int64) (*TradeResponse, error) {
	var res TradeResponse
	err := c.pipeline.ExecuteInto(ctx, Call{
		Method: http.MethodPut,
		Path:   "trade/" + strconv.FormatInt(tradeID, 10) + "/bid",
		Params: map[string]any{"bid": bid},
	}, &res)
	if isStatus(err, statusOutbid) {
		c.logger.Info("bid refused, probably outbid", zap.Int64("trade", tradeID))
		return &TradeResponse{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bid on %d: %w", tradeID, err)
	}

	if c.pin != nil {
		c.pin.Emit(ctx,
			c.pin.Event("connection", EventOpts{}),
			c.pin.Event("boot_end", EventOpts{EndReason: "normal"}),
		)
	}
	c.updateCredits(res.Credits)
	return &res, nil
}

// TradeStatus reports the state of one or more trades.
func (c *Client) TradeStatus(ctx context.Context, tradeIDs ...int64) (*TradeResponse, error) {
	var res TradeResponse
	err := c.pipeline.ExecuteInto(ctx, Call{
		Method: http.MethodGet,
		Path:   "trade/status",
		Params: map[string]any{"tradeIds": tradeIDs},
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("trade status: %w", err)
	}
	return &res, nil
}

// Sell lists an item. Unless Fast is set the new trade is checked once.
func (c *Client) Sell(ctx context.Context, params SellParams) (*SellResponse, error) {
	duration := params.Duration
	if duration <= 0 {
		duration = defaultSellDuration
	}

	var res SellResponse
	err := c.pipeline.ExecuteInto(ctx, Call{
		Method: http.MethodPost,
		Path:   "auctionhouse",
		Params: map[string]any{
			"itemData":    map[string]any{"id": params.ItemID},
			"buyNowPrice": params.BuyNowPrice,
			"startingBid": params.StartingBid,
			"duration":    duration,
		},
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("sell item %d: %w", params.ItemID, err)
	}

	if !params.Fast && res.ID != 0 {
		if _, err := c.TradeStatus(ctx, res.ID); err != nil {
			return &res, err
		}
	}
	return &res, nil
}

// QuickSell discards items for their quick sell value.
func (c *Client) QuickSell(ctx context.Context, itemIDs ...int64) (json.RawMessage, error) {
	body, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodDelete,
		Path:   "item",
		Params: map[string]any{"itemIds": itemIDs},
	})
	if err != nil {
		return nil, fmt.Errorf("quick sell: %w", err)
	}
	return body, nil
}

// TradepileDelete removes a sold trade from the tradepile.
func (c *Client) TradepileDelete(ctx context.Context, tradeID int64) error {
	_, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodDelete,
		Path:   "trade/" + strconv.FormatInt(tradeID, 10),
	})
	if err != nil {
		return fmt.Errorf("delete trade %d: %w", tradeID, err)
	}
	return nil
}

// WatchlistDelete stops watching the given trades.
func (c *Client) WatchlistDelete(ctx context.Context, tradeIDs ...int64) error {
	_, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodDelete,
		Path:   "watchlist",
		Params: map[string]any{"tradeId": tradeIDs},
	})
	if err != nil {
		return fmt.Errorf("watchlist delete: %w", err)
	}
	return nil
}

// TradepileClear removes every sold item from the tradepile.
func (c *Client) TradepileClear(ctx context.Context) error {
	_, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodDelete,
		Path:   "trade/sold",
	})
	if err != nil {
		return fmt.Errorf("clear tradepile: %w", err)
	}
	return nil
}

func (c *Client) sendToPile(ctx context.Context, pile string, itemID int64) (json.RawMessage, error) {
	body, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodPut,
		Path:   "item",
		Params: map[string]any{
			"itemData": []map[string]any{{"pile": pile, "id": itemID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("send item %d to %s: %w", itemID, pile, err)
	}
	return body, nil
}

// SendToTradepile moves an item to the tradepile. The pile's free space is
// not checked.
func (c *Client) SendToTradepile(ctx context.Context, itemID int64) (json.RawMessage, error) {
	return c.sendToPile(ctx, "trade", itemID)
}

// SendToClub moves an item to the club.
func (c *Client) SendToClub(ctx context.Context, itemID int64) (json.RawMessage, error) {
	return c.sendToPile(ctx, "club", itemID)
}

// SendToWatchlist starts watching a trade.
func (c *Client) SendToWatchlist(ctx context.Context, tradeID int64) (json.RawMessage, error) {
	body, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodPut,
		Path:   "watchlist",
		Params: map[string]any{
			"auctionInfo": []map[string]any{{"id": tradeID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("watch trade %d: %w", tradeID, err)
	}
	return body, nil
}

// Relist puts every expired tradepile item back on the market.
func (c *Client) Relist(ctx context.Context) (json.RawMessage, error) {
	body, err := c.pipeline.Execute(ctx, Call{
		Method: http.MethodPut,
		Path:   "auctionhouse/relist",
	})
	if err != nil {
		return nil, fmt.Errorf("relist: %w", err)
	}
	return body, nil
}

// Keepalive refreshes the coin balance, which also marks the session as
// active.
func (c *Client) Keepalive(ctx context.Context) (int64, error) {
	var res creditsResponse
	err := c.pipeline.ExecuteInto(ctx, Call{
		Method: http.MethodGet,
		Path:   "user/credits",
	}, &res)
	if err != nil {
		return 0, fmt.Errorf("keepalive: %w", err)
	}
	c.updateCredits(res.Credits)
	return res.Credits, nil
}

// PileSize returns the pile sizes recorded in the login's mass info.
func (c *Client) PileSize() (PileSizes, error) {
	info, err := session.Get[UserInfo](c.store, session.KeyUserInfo)
	if errors.Is(err, session.ErrNotFound) {
		return PileSizes{}, ErrNotAuthenticated
	}
	if err != nil {
		return PileSizes{}, err
	}
	tradepile, watchlist, err := pileSizes(info.MassInfo)
	if err != nil {
		return PileSizes{}, err
	}
	return PileSizes{Tradepile: tradepile, Watchlist: watchlist}, nil
}

// Unassigned lists purchased items not yet moved to a pile.
func (c *Client) Unassigned(ctx context.Context) (*ItemsResponse, error) {
	var res ItemsResponse
	if err := c.pipeline.ExecuteInto(ctx, Call{Method: http.MethodGet, Path: "purchased/items"}, &res); err != nil {
		return nil, fmt.Errorf("unassigned: %w", err)
	}
	c.pageViews(ctx, "Unassigned Items - List View")
	return &res, nil
}

// Tradepile lists the tradepile.
func (c *Client) Tradepile(ctx context.Context) (*TradeResponse, error) {
	var res TradeResponse
	if err := c.pipeline.ExecuteInto(ctx, Call{Method: http.MethodGet, Path: "tradepile"}, &res); err != nil {
		return nil, fmt.Errorf("tradepile: %w", err)
	}
	c.pageViews(ctx, "Transfer List - List View")
	c.updateCredits(res.Credits)
	return &res, nil
}

// Watchlist lists watched trades.
func (c *Client) Watchlist(ctx context.Context) (*TradeResponse, error) {
	var res TradeResponse
	if err := c.pipeline.ExecuteInto(ctx, Call{Method: http.MethodGet, Path: "watchlist"}, &res); err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	c.pageViews(ctx, "Transfer Targets - List View")
	c.updateCredits(res.Credits)
	return &res, nil
}
