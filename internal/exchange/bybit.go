package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	bybit_api "github.com/bybit-exchange/bybit.go.api"

	"github.com/ducminhle1904/crypto-signal-trader/pkg/types"
)

// BybitConfig holds credentials and environment selection for the
// Bybit gateway.
type BybitConfig struct {
	APIKey    string
	APISecret string
	Category  string // "spot" or "linear"
	Testnet   bool
	Demo      bool // demo trading environment (paper)
}

// BybitGateway implements Gateway against Bybit's v5 unified API.
type BybitGateway struct {
	client   *bybit_api.Client
	category string
	demo     bool

	mu      sync.RWMutex
	filters map[string]*SymbolFilter
	fetched time.Time
}

const filterCacheTTL = time.Hour

// NewBybitGateway creates a gateway for the configured environment.
func NewBybitGateway(cfg BybitConfig) *BybitGateway {
	var baseURL string
	switch {
	case cfg.Demo:
		baseURL = "https://api-demo.bybit.com"
	case cfg.Testnet:
		baseURL = bybit_api.TESTNET
	default:
		baseURL = bybit_api.MAINNET
	}

	category := cfg.Category
	if category == "" {
		category = "spot"
	}

	return &BybitGateway{
		client: bybit_api.NewBybitHttpClient(
			cfg.APIKey,
			cfg.APISecret,
			bybit_api.WithBaseURL(baseURL),
		),
		category: category,
		demo:     cfg.Demo,
		filters:  make(map[string]*SymbolFilter),
	}
}

func (g *BybitGateway) GetName() string {
	if g.demo {
		return "bybit-demo"
	}
	return "bybit"
}

// PlaceOrder submits the order. Stop-loss and take-profit protective
// orders map onto Bybit conditional orders via triggerPrice.
func (g *BybitGateway) PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	if req.Symbol == "" {
		return nil, &GatewayError{Code: "INVALID_REQUEST", Message: "symbol is required"}
	}
	if req.Quantity <= 0 {
		return nil, &GatewayError{Code: "INVALID_REQUEST", Message: "quantity must be positive"}
	}

	params := map[string]interface{}{
		"category": g.category,
		"symbol":   req.Symbol,
		"side":     bybitSide(req.Side),
		"qty":      strconv.FormatFloat(req.Quantity, 'f', -1, 64),
	}

	switch req.Type {
	case types.OrderTypeMarket:
		params["orderType"] = "Market"
	case types.OrderTypeLimit:
		params["orderType"] = "Limit"
		params["price"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		params["timeInForce"] = "GTC"
	case types.OrderTypeStopLoss, types.OrderTypeTakeProfit:
		params["orderType"] = "Market"
		params["triggerPrice"] = strconv.FormatFloat(req.Price, 'f', -1, 64)
		params["reduceOnly"] = true
		if req.Type == types.OrderTypeStopLoss {
			params["triggerDirection"] = triggerDirection(req.Side, true)
		} else {
			params["triggerDirection"] = triggerDirection(req.Side, false)
		}
	default:
		return nil, &GatewayError{Code: "INVALID_REQUEST", Message: "unsupported order type", Details: string(req.Type)}
	}

	result, err := g.client.NewUtaBybitServiceWithParams(params).PlaceOrder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	orderID, err := parseOrderIDResponse(result)
	if err != nil {
		return nil, err
	}

	return &PlacedOrder{ExchangeOrderID: orderID, Symbol: req.Symbol}, nil
}

func (g *BybitGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	params := map[string]interface{}{
		"category": g.category,
		"symbol":   symbol,
		"orderId":  exchangeOrderID,
	}

	result, err := g.client.NewUtaBybitServiceWithParams(params).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if err := checkRetCode(result); err != nil {
		return err
	}
	return nil
}

func (g *BybitGateway) GetLatestPrice(ctx context.Context, symbol string) (float64, error) {
	params := map[string]interface{}{
		"category": g.category,
		"symbol":   symbol,
	}

	result, err := g.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest price: %w", err)
	}

	return parseTickerPriceResponse(result)
}

// GetSymbolFilter returns the cached lot-size filter, refreshing from
// the instruments-info endpoint when stale.
func (g *BybitGateway) GetSymbolFilter(ctx context.Context, symbol string) (*SymbolFilter, error) {
	g.mu.RLock()
	if f, ok := g.filters[symbol]; ok && time.Since(g.fetched) < filterCacheTTL {
		g.mu.RUnlock()
		return f, nil
	}
	g.mu.RUnlock()

	params := map[string]interface{}{
		"category": g.category,
		"symbol":   symbol,
	}

	result, err := g.client.NewUtaBybitServiceWithParams(params).GetInstrumentInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument info: %w", err)
	}

	filter, err := parseInstrumentFilterResponse(result, symbol)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.filters[symbol] = filter
	g.fetched = time.Now()
	g.mu.Unlock()

	return filter, nil
}

func bybitSide(side types.Side) string {
	if side == types.SideSell {
		return "Sell"
	}
	return "Buy"
}

// triggerDirection returns Bybit's trigger direction code: 1 = trigger
// when price rises to triggerPrice, 2 = trigger when price falls.
func triggerDirection(side types.Side, stopLoss bool) int {
	long := side == types.SideBuy
	if stopLoss == long {
		return 2
	}
	return 1
}

func checkRetCode(response interface{}) error {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return &GatewayError{
			Code:    fmt.Sprintf("BYBIT_%d", serverResp.RetCode),
			Message: serverResp.RetMsg,
		}
	}
	return nil
}

func parseOrderIDResponse(response interface{}) (string, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return "", fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return "", &GatewayError{
			Code:    fmt.Sprintf("BYBIT_%d", serverResp.RetCode),
			Message: serverResp.RetMsg,
		}
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}

	var orderResult struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(resultBytes, &orderResult); err != nil {
		return "", fmt.Errorf("failed to unmarshal order result: %w", err)
	}
	if orderResult.OrderID == "" {
		return "", fmt.Errorf("order response missing orderId")
	}

	return orderResult.OrderID, nil
}

func parseTickerPriceResponse(response interface{}) (float64, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return 0, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return 0, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal result: %w", err)
	}

	var tickerResult struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &tickerResult); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ticker result: %w", err)
	}
	if len(tickerResult.List) == 0 {
		return 0, fmt.Errorf("no ticker data found")
	}

	price, err := strconv.ParseFloat(tickerResult.List[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse last price: %w", err)
	}
	return price, nil
}

func parseInstrumentFilterResponse(response interface{}, symbol string) (*SymbolFilter, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}
	if serverResp.RetCode != 0 {
		return nil, fmt.Errorf("API error: %s (code: %d)", serverResp.RetMsg, serverResp.RetCode)
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var infoResult struct {
		List []struct {
			Symbol        string `json:"symbol"`
			LotSizeFilter struct {
				MinOrderQty      string `json:"minOrderQty"`
				QtyStep          string `json:"qtyStep"`
				MinNotionalValue string `json:"minNotionalValue"`
			} `json:"lotSizeFilter"`
		} `json:"list"`
	}
	if err := json.Unmarshal(resultBytes, &infoResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instrument info: %w", err)
	}
	if len(infoResult.List) == 0 {
		return nil, fmt.Errorf("no instrument info for %s", symbol)
	}

	lot := infoResult.List[0].LotSizeFilter
	minQty, _ := strconv.ParseFloat(lot.MinOrderQty, 64)
	qtyStep, _ := strconv.ParseFloat(lot.QtyStep, 64)
	minNotional, _ := strconv.ParseFloat(lot.MinNotionalValue, 64)

	return &SymbolFilter{
		Symbol:      symbol,
		MinOrderQty: minQty,
		QtyStep:     qtyStep,
		MinNotional: minNotional,
	}, nil
}
