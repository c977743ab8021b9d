package evm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Chain Client Interface
// ---------------------------------------------------------------------------

// ErrNoAccessor is returned by GetOwner when the token contract does not
// implement the requested accessor. Callers probe accessors in order and treat
// exhaustion as "no owner function", not as a failure.
var ErrNoAccessor = errors.New("evm: contract has no such accessor")

// ChainClient is the interface for all blockchain interactions.
// Implementations: LiveClient (real JSON-RPC node), StubClient (testing).
type ChainClient interface {
	// SubscribePairCreated streams factory PairCreated events in arrival order.
	SubscribePairCreated(ctx context.Context) (<-chan PairCreatedEvent, error)

	// GetReserves reads a pair's pool reserves and token ordering.
	GetReserves(ctx context.Context, pair Address) (*Reserves, error)

	// GetTokenMetadata reads ERC-20 name/symbol/decimals/totalSupply.
	GetTokenMetadata(ctx context.Context, token Address) (*TokenMetadata, error)

	// GetOwner calls an owner-style accessor ("owner", "getOwner") on a token.
	// Returns ErrNoAccessor when the contract does not implement it.
	GetOwner(ctx context.Context, token Address, accessor string) (Address, error)

	// GetCode returns the deployed bytecode of a contract.
	GetCode(ctx context.Context, token Address) ([]byte, error)

	// GetGasPrice returns the current gas price in wei.
	GetGasPrice(ctx context.Context) (decimal.Decimal, error)

	// GetLatestBlock returns the chain head.
	GetLatestBlock(ctx context.Context) (*Block, error)

	// GetBalance returns the base-asset balance of an account in wei.
	GetBalance(ctx context.Context, account Address) (decimal.Decimal, error)

	// GetTokenBalance returns an account's ERC-20 balance in raw token units.
	GetTokenBalance(ctx context.Context, token, account Address) (decimal.Decimal, error)

	// SubmitBuy spends amountIn wei of the base asset on a token through the
	// trading contract and waits for confirmation.
	SubmitBuy(ctx context.Context, token Address, amountIn decimal.Decimal, slippageBps int, gas GasParams) (*TradeReceipt, error)

	// SubmitSell swaps amountIn raw token units back to the base asset and
	// waits for confirmation.
	SubmitSell(ctx context.Context, token Address, amountIn decimal.Decimal, slippageBps int) (*TradeReceipt, error)

	// Health returns the node endpoint health.
	Health(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// Stub Chain Client (for testing and development)
// ---------------------------------------------------------------------------

// StubClient is a mock chain client for testing.
type StubClient struct {
	mu            sync.RWMutex
	reserves      map[Address]*Reserves
	metadata      map[Address]*TokenMetadata
	owners        map[Address]map[string]Address // token -> accessor -> owner
	code          map[Address][]byte
	balances      map[Address]decimal.Decimal
	tokenBalances map[Address]map[Address]decimal.Decimal // token -> account -> balance
	gasPrice      decimal.Decimal
	block         Block
	pairCh        chan PairCreatedEvent

	buyReceipt  *TradeReceipt
	sellReceipt *TradeReceipt
	buyCalls    []StubTradeCall
	sellCalls   []StubTradeCall

	failNext    bool
	failMethods map[string]bool
}

// StubTradeCall records the arguments of a SubmitBuy/SubmitSell invocation.
type StubTradeCall struct {
	Token       Address
	AmountIn    decimal.Decimal
	SlippageBps int
	Gas         GasParams
}

// NewStubClient creates a stub chain client for testing.
func NewStubClient() *StubClient {
	return &StubClient{
		reserves:      make(map[Address]*Reserves),
		metadata:      make(map[Address]*TokenMetadata),
		owners:        make(map[Address]map[string]Address),
		code:          make(map[Address][]byte),
		balances:      make(map[Address]decimal.Decimal),
		tokenBalances: make(map[Address]map[Address]decimal.Decimal),
		gasPrice:      decimal.New(20, 9), // 20 gwei
		block:         Block{Number: 1, Timestamp: time.Now()},
		pairCh:        make(chan PairCreatedEvent, 100),
		failMethods:   make(map[string]bool),
	}
}

// SetReserves registers pool reserves for a pair.
func (s *StubClient) SetReserves(pair Address, r Reserves) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[pair] = &r
}

// SetMetadata registers token metadata.
func (s *StubClient) SetMetadata(token Address, m TokenMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[token] = &m
}

// SetOwner registers an owner accessor on a token. Tokens with no registered
// accessors behave like contracts without an owner function.
func (s *StubClient) SetOwner(token Address, accessor string, owner Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owners[token] == nil {
		s.owners[token] = make(map[string]Address)
	}
	s.owners[token][accessor] = owner
}

// SetCode registers deployed bytecode for a contract.
func (s *StubClient) SetCode(token Address, code []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code[token] = code
}

// SetGasPrice sets the stub gas price in gwei.
func (s *StubClient) SetGasPrice(gwei float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gasPrice = decimal.NewFromFloat(gwei).Mul(WeiPerGwei)
}

// SetBalance sets an account's base-asset balance in base units.
func (s *StubClient) SetBalance(account Address, units float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = decimal.NewFromFloat(units).Mul(WeiPerEth)
}

// SetTokenBalance sets an account's token balance in raw units.
func (s *StubClient) SetTokenBalance(token, account Address, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokenBalances[token] == nil {
		s.tokenBalances[token] = make(map[Address]decimal.Decimal)
	}
	s.tokenBalances[token][account] = amount
}

// SetBuyReceipt sets the receipt returned by the next SubmitBuy calls.
func (s *StubClient) SetBuyReceipt(r TradeReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyReceipt = &r
}

// SetSellReceipt sets the receipt returned by the next SubmitSell calls.
func (s *StubClient) SetSellReceipt(r TradeReceipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellReceipt = &r
}

// BuyCalls returns all recorded SubmitBuy invocations.
func (s *StubClient) BuyCalls() []StubTradeCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StubTradeCall, len(s.buyCalls))
	copy(out, s.buyCalls)
	return out
}

// SellCalls returns all recorded SubmitSell invocations.
func (s *StubClient) SellCalls() []StubTradeCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StubTradeCall, len(s.sellCalls))
	copy(out, s.sellCalls)
	return out
}

// EmitPair sends a pair-creation event on the subscription channel.
func (s *StubClient) EmitPair(ev PairCreatedEvent) {
	s.pairCh <- ev
}

// SetFailNext makes the next call (any method) fail.
func (s *StubClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// FailMethod makes every call to the named method fail until cleared.
func (s *StubClient) FailMethod(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failMethods[method] = true
}

// ClearFailures resets all failure injection.
func (s *StubClient) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = false
	s.failMethods = make(map[string]bool)
}

func (s *StubClient) shouldFail(method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMethods[method] {
		return true
	}
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

// --- Interface implementation ---

func (s *StubClient) SubscribePairCreated(ctx context.Context) (<-chan PairCreatedEvent, error) {
	if s.shouldFail("SubscribePairCreated") {
		return nil, fmt.Errorf("stub: simulated subscription failure")
	}
	out := make(chan PairCreatedEvent, 100)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.pairCh:
				if !ok {
					return
				}
				out <- ev
			}
		}
	}()
	return out, nil
}

func (s *StubClient) GetReserves(_ context.Context, pair Address) (*Reserves, error) {
	if s.shouldFail("GetReserves") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.reserves[pair]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, fmt.Errorf("stub: pair %s not found", pair)
}

func (s *StubClient) GetTokenMetadata(_ context.Context, token Address) (*TokenMetadata, error) {
	if s.shouldFail("GetTokenMetadata") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.metadata[token]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, fmt.Errorf("stub: token %s not found", token)
}

func (s *StubClient) GetOwner(_ context.Context, token Address, accessor string) (Address, error) {
	if s.shouldFail("GetOwner") {
		return "", fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if owner, ok := s.owners[token][accessor]; ok {
		return owner, nil
	}
	return "", ErrNoAccessor
}

func (s *StubClient) GetCode(_ context.Context, token Address) ([]byte, error) {
	if s.shouldFail("GetCode") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if code, ok := s.code[token]; ok {
		return code, nil
	}
	return nil, nil // no code deployed
}

func (s *StubClient) GetGasPrice(_ context.Context) (decimal.Decimal, error) {
	if s.shouldFail("GetGasPrice") {
		return decimal.Zero, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gasPrice, nil
}

func (s *StubClient) GetLatestBlock(_ context.Context) (*Block, error) {
	if s.shouldFail("GetLatestBlock") {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.block
	return &b, nil
}

func (s *StubClient) GetBalance(_ context.Context, account Address) (decimal.Decimal, error) {
	if s.shouldFail("GetBalance") {
		return decimal.Zero, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *StubClient) GetTokenBalance(_ context.Context, token, account Address) (decimal.Decimal, error) {
	if s.shouldFail("GetTokenBalance") {
		return decimal.Zero, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenBalances[token][account], nil
}

func (s *StubClient) SubmitBuy(_ context.Context, token Address, amountIn decimal.Decimal, slippageBps int, gas GasParams) (*TradeReceipt, error) {
	if s.shouldFail("SubmitBuy") {
		return nil, fmt.Errorf("stub: simulated submission failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyCalls = append(s.buyCalls, StubTradeCall{Token: token, AmountIn: amountIn, SlippageBps: slippageBps, Gas: gas})
	if s.buyReceipt != nil {
		cp := *s.buyReceipt
		return &cp, nil
	}
	return &TradeReceipt{
		TxHash:      Hash(fmt.Sprintf("0xstub-buy-%d", time.Now().UnixNano())),
		BlockNumber: s.block.Number,
		GasUsed:     gas.GasLimit / 2,
		Status:      true,
	}, nil
}

func (s *StubClient) SubmitSell(_ context.Context, token Address, amountIn decimal.Decimal, slippageBps int) (*TradeReceipt, error) {
	if s.shouldFail("SubmitSell") {
		return nil, fmt.Errorf("stub: simulated submission failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellCalls = append(s.sellCalls, StubTradeCall{Token: token, AmountIn: amountIn, SlippageBps: slippageBps})
	if s.sellReceipt != nil {
		cp := *s.sellReceipt
		return &cp, nil
	}
	return &TradeReceipt{
		TxHash:      Hash(fmt.Sprintf("0xstub-sell-%d", time.Now().UnixNano())),
		BlockNumber: s.block.Number,
		GasUsed:     120_000,
		Status:      true,
	}, nil
}

func (s *StubClient) Health(_ context.Context) error {
	if s.shouldFail("Health") {
		return fmt.Errorf("stub: simulated RPC failure")
	}
	return nil
}
