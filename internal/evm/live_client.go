package evm

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Live Chain Client — JSON-RPC over HTTP + websocket log subscription
// ---------------------------------------------------------------------------

// Function selectors for the fixed read/trade surface.
var (
	selGetReserves = Selector("getReserves()")
	selToken0      = Selector("token0()")
	selToken1      = Selector("token1()")
	selName        = Selector("name()")
	selSymbol      = Selector("symbol()")
	selDecimals    = Selector("decimals()")
	selTotalSupply = Selector("totalSupply()")
	selBalanceOf   = Selector("balanceOf(address)")
	selSnipeToken  = Selector("snipeTokenWithETH(address,uint256)")
	selSellToken   = Selector("sellTokenForETH(address,uint256,uint256)")
	ownerSelectors = map[string]string{
		"owner":    Selector("owner()"),
		"getOwner": Selector("getOwner()"),
	}
)

// LiveConfig configures the live chain client.
type LiveConfig struct {
	RPCEndpoint    string  `yaml:"rpc_endpoint"`
	WSEndpoint     string  `yaml:"ws_endpoint"`
	FactoryAddress Address `yaml:"factory_address"`
	TradeContract  Address `yaml:"trade_contract"`
	WalletAddress  Address `yaml:"wallet_address"`
	TimeoutS       int     `yaml:"timeout_s"`
	ConfirmPollMs  int     `yaml:"confirm_poll_ms"`
	ConfirmWaitS   int     `yaml:"confirm_wait_s"`
}

// DefaultLiveConfig returns sane live-client defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		TimeoutS:      15,
		ConfirmPollMs: 2000,
		ConfirmWaitS:  120,
	}
}

// LiveClient talks to a real EVM node. Reads go over HTTP JSON-RPC; the pair
// subscription rides the websocket watcher. Trades are sent through the node's
// managed account via eth_sendTransaction.
type LiveClient struct {
	config  LiveConfig
	http    *http.Client
	watcher *PairWatcher

	nextID atomic.Int64
}

// NewLiveClient creates a live chain client.
func NewLiveClient(config LiveConfig) *LiveClient {
	timeout := time.Duration(config.TimeoutS) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	wc := DefaultWatcherConfig()
	wc.WSEndpoint = config.WSEndpoint
	wc.FactoryAddress = config.FactoryAddress
	return &LiveClient{
		config:  config,
		http:    &http.Client{Timeout: timeout},
		watcher: NewPairWatcher(wc),
	}
}

// --- JSON-RPC plumbing ---

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *LiveClient) rpcCall(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: c.nextID.Add(1), Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("evm: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.RPCEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("evm: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("evm: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("evm: %s: node returned HTTP %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("evm: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("evm: %s: node error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("evm: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}

// ethCall executes a read-only contract call and returns the hex result.
func (c *LiveClient) ethCall(ctx context.Context, to Address, data string) (string, error) {
	var result string
	err := c.rpcCall(ctx, "eth_call", []any{
		map[string]any{"to": string(to), "data": data},
		"latest",
	}, &result)
	return result, err
}

// --- Interface implementation ---

func (c *LiveClient) SubscribePairCreated(ctx context.Context) (<-chan PairCreatedEvent, error) {
	return c.watcher.Start(ctx)
}

func (c *LiveClient) GetReserves(ctx context.Context, pair Address) (*Reserves, error) {
	raw, err := c.ethCall(ctx, pair, callData(selGetReserves))
	if err != nil {
		return nil, err
	}
	reserve0, err := decodeUint(raw, 0)
	if err != nil {
		return nil, err
	}
	reserve1, err := decodeUint(raw, 1)
	if err != nil {
		return nil, err
	}

	t0Raw, err := c.ethCall(ctx, pair, callData(selToken0))
	if err != nil {
		return nil, err
	}
	token0, err := decodeAddress(t0Raw, 0)
	if err != nil {
		return nil, err
	}
	t1Raw, err := c.ethCall(ctx, pair, callData(selToken1))
	if err != nil {
		return nil, err
	}
	token1, err := decodeAddress(t1Raw, 0)
	if err != nil {
		return nil, err
	}

	return &Reserves{
		Token0:   token0,
		Token1:   token1,
		Reserve0: reserve0,
		Reserve1: reserve1,
	}, nil
}

func (c *LiveClient) GetTokenMetadata(ctx context.Context, token Address) (*TokenMetadata, error) {
	md := &TokenMetadata{Name: "UNKNOWN", Symbol: "UNKNOWN", Decimals: 18}

	if raw, err := c.ethCall(ctx, token, callData(selName)); err == nil {
		if name, err := decodeString(raw); err == nil {
			md.Name = name
		}
	}
	if raw, err := c.ethCall(ctx, token, callData(selSymbol)); err == nil {
		if sym, err := decodeString(raw); err == nil {
			md.Symbol = sym
		}
	}
	if raw, err := c.ethCall(ctx, token, callData(selDecimals)); err == nil {
		if dec, err := decodeUint(raw, 0); err == nil {
			md.Decimals = uint8(dec.IntPart())
		}
	}
	if raw, err := c.ethCall(ctx, token, callData(selTotalSupply)); err == nil {
		if supply, err := decodeUint(raw, 0); err == nil {
			md.TotalSupply = supply
		}
	}
	return md, nil
}

func (c *LiveClient) GetOwner(ctx context.Context, token Address, accessor string) (Address, error) {
	sel, ok := ownerSelectors[accessor]
	if !ok {
		return "", fmt.Errorf("evm: unknown owner accessor %q", accessor)
	}
	raw, err := c.ethCall(ctx, token, callData(sel))
	if err != nil {
		// Nodes report calls into missing functions as execution reverts.
		if strings.Contains(err.Error(), "revert") || strings.Contains(err.Error(), "execution") {
			return "", ErrNoAccessor
		}
		return "", err
	}
	if raw == "0x" || raw == "" {
		return "", ErrNoAccessor
	}
	return decodeAddress(raw, 0)
}

func (c *LiveClient) GetCode(ctx context.Context, token Address) ([]byte, error) {
	var raw string
	if err := c.rpcCall(ctx, "eth_getCode", []any{string(token), "latest"}, &raw); err != nil {
		return nil, err
	}
	h := strings.TrimPrefix(raw, "0x")
	if h == "" {
		return nil, nil
	}
	return hex.DecodeString(h)
}

func (c *LiveClient) GetGasPrice(ctx context.Context) (decimal.Decimal, error) {
	var raw string
	if err := c.rpcCall(ctx, "eth_gasPrice", []any{}, &raw); err != nil {
		return decimal.Zero, err
	}
	return hexToDecimal(raw)
}

func (c *LiveClient) GetLatestBlock(ctx context.Context) (*Block, error) {
	var blk struct {
		Number    string `json:"number"`
		Timestamp string `json:"timestamp"`
	}
	if err := c.rpcCall(ctx, "eth_getBlockByNumber", []any{"latest", false}, &blk); err != nil {
		return nil, err
	}
	number, err := hexToUint64(blk.Number)
	if err != nil {
		return nil, err
	}
	ts, err := hexToUint64(blk.Timestamp)
	if err != nil {
		return nil, err
	}
	return &Block{Number: number, Timestamp: time.Unix(int64(ts), 0)}, nil
}

func (c *LiveClient) GetBalance(ctx context.Context, account Address) (decimal.Decimal, error) {
	var raw string
	if err := c.rpcCall(ctx, "eth_getBalance", []any{string(account), "latest"}, &raw); err != nil {
		return decimal.Zero, err
	}
	return hexToDecimal(raw)
}

func (c *LiveClient) GetTokenBalance(ctx context.Context, token, account Address) (decimal.Decimal, error) {
	raw, err := c.ethCall(ctx, token, callData(selBalanceOf, encodeAddress(account)))
	if err != nil {
		return decimal.Zero, err
	}
	return decodeUint(raw, 0)
}

func (c *LiveClient) SubmitBuy(ctx context.Context, token Address, amountIn decimal.Decimal, slippageBps int, gas GasParams) (*TradeReceipt, error) {
	data := callData(selSnipeToken,
		encodeAddress(token),
		encodeUint(big.NewInt(int64(slippageBps))),
	)

	tx := map[string]any{
		"from":     string(c.config.WalletAddress),
		"to":       string(c.config.TradeContract),
		"value":    decimalToHex(amountIn),
		"gas":      fmt.Sprintf("0x%x", gas.GasLimit),
		"gasPrice": decimalToHex(gas.GasPrice),
		"data":     data,
	}

	var txHash string
	if err := c.rpcCall(ctx, "eth_sendTransaction", []any{tx}, &txHash); err != nil {
		return nil, err
	}
	log.Debug().Str("tx", txHash).Str("token", string(token)).Msg("evm: buy submitted")
	return c.waitReceipt(ctx, Hash(txHash))
}

func (c *LiveClient) SubmitSell(ctx context.Context, token Address, amountIn decimal.Decimal, slippageBps int) (*TradeReceipt, error) {
	data := callData(selSellToken,
		encodeAddress(token),
		encodeUint(amountIn.BigInt()),
		encodeUint(big.NewInt(int64(slippageBps))),
	)

	tx := map[string]any{
		"from": string(c.config.WalletAddress),
		"to":   string(c.config.TradeContract),
		"data": data,
	}

	var txHash string
	if err := c.rpcCall(ctx, "eth_sendTransaction", []any{tx}, &txHash); err != nil {
		return nil, err
	}
	log.Debug().Str("tx", txHash).Str("token", string(token)).Msg("evm: sell submitted")
	return c.waitReceipt(ctx, Hash(txHash))
}

// waitReceipt polls until the transaction is mined or the wait window expires.
func (c *LiveClient) waitReceipt(ctx context.Context, txHash Hash) (*TradeReceipt, error) {
	poll := time.Duration(c.config.ConfirmPollMs) * time.Millisecond
	if poll == 0 {
		poll = 2 * time.Second
	}
	wait := time.Duration(c.config.ConfirmWaitS) * time.Second
	if wait == 0 {
		wait = 2 * time.Minute
	}
	deadline := time.Now().Add(wait)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var rec struct {
			BlockNumber string `json:"blockNumber"`
			GasUsed     string `json:"gasUsed"`
			Status      string `json:"status"`
		}
		raw := json.RawMessage{}
		if err := c.rpcCall(ctx, "eth_getTransactionReceipt", []any{string(txHash)}, &raw); err != nil {
			return nil, err
		}
		if string(raw) == "null" || len(raw) == 0 {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("evm: transaction %s not mined within %s", txHash, wait)
			}
			continue
		}
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("evm: decode receipt: %w", err)
		}

		block, err := hexToUint64(rec.BlockNumber)
		if err != nil {
			return nil, err
		}
		gasUsed, err := hexToUint64(rec.GasUsed)
		if err != nil {
			return nil, err
		}
		status, err := hexToUint64(rec.Status)
		if err != nil {
			return nil, err
		}

		receipt := &TradeReceipt{
			TxHash:      txHash,
			BlockNumber: block,
			GasUsed:     gasUsed,
			Status:      status == 1,
		}
		if !receipt.Status {
			receipt.RevertReason = "execution reverted"
		}
		return receipt, nil
	}
}

func (c *LiveClient) Health(ctx context.Context) error {
	var raw string
	if err := c.rpcCall(ctx, "eth_blockNumber", []any{}, &raw); err != nil {
		return fmt.Errorf("evm: node unhealthy: %w", err)
	}
	return nil
}
