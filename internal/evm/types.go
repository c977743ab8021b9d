package evm

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Address is a 0x-prefixed 20-byte EVM address in hex.
type Address string

// Hash is a 0x-prefixed 32-byte transaction or block hash in hex.
type Hash string

// ZeroAddress is the null address; ownership set to it means renounced.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// Lower returns the address lowercased. Addresses compare case-insensitively
// because checksummed and plain hex forms refer to the same account.
func (a Address) Lower() Address {
	return Address(strings.ToLower(string(a)))
}

// Equal compares two addresses case-insensitively.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// IsZero reports whether the address is the null address.
func (a Address) IsZero() bool {
	return a.Equal(ZeroAddress)
}

// WeiPerEth converts between wei and base-asset units.
var WeiPerEth = decimal.New(1, 18)

// WeiPerGwei converts between wei and gwei.
var WeiPerGwei = decimal.New(1, 9)

// ---------------------------------------------------------------------------
// Event & read types
// ---------------------------------------------------------------------------

// PairCreatedEvent is emitted by the DEX factory when a new trading pair is
// deployed. Token0/Token1 are the pool sides in factory order.
type PairCreatedEvent struct {
	Token0      Address   `json:"token0"`
	Token1      Address   `json:"token1"`
	Pair        Address   `json:"pair"`
	BlockNumber uint64    `json:"block_number"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Reserves holds a pair's current pool state. Reserve amounts are raw wei-scale
// integers; callers convert the base-asset side with WeiPerEth.
type Reserves struct {
	Token0   Address         `json:"token0"`
	Token1   Address         `json:"token1"`
	Reserve0 decimal.Decimal `json:"reserve0"`
	Reserve1 decimal.Decimal `json:"reserve1"`
}

// TokenMetadata describes an ERC-20 token. Fields the token contract does not
// expose come back as the defaults ("UNKNOWN", 18, zero supply).
type TokenMetadata struct {
	Name        string          `json:"name"`
	Symbol      string          `json:"symbol"`
	Decimals    uint8           `json:"decimals"`
	TotalSupply decimal.Decimal `json:"total_supply"`
}

// Block is a minimal view of the chain head.
type Block struct {
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Transaction types
// ---------------------------------------------------------------------------

// GasParams control transaction pricing and the gas-limit ceiling.
type GasParams struct {
	GasPrice decimal.Decimal `json:"gas_price_wei"`
	GasLimit uint64          `json:"gas_limit"`
}

// TradeReceipt is the confirmed outcome of a submitted trade.
type TradeReceipt struct {
	TxHash       Hash   `json:"tx_hash"`
	BlockNumber  uint64 `json:"block_number"`
	GasUsed      uint64 `json:"gas_used"`
	Status       bool   `json:"status"` // false = reverted
	RevertReason string `json:"revert_reason,omitempty"`
}
