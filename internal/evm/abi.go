package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// ---------------------------------------------------------------------------
// Minimal ABI encoding — fixed call surface, no contract machinery
// Covers 4-byte selectors, 32-byte words, and the handful of return shapes
// the trading pipeline reads (addresses, uints, strings, reserve tuples).
// ---------------------------------------------------------------------------

// keccak256 hashes data with the Ethereum (legacy) Keccak variant.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector for a canonical signature,
// hex-encoded without 0x prefix.
func Selector(signature string) string {
	return hex.EncodeToString(keccak256([]byte(signature))[:4])
}

// EventTopic returns the 32-byte topic hash for a canonical event signature.
func EventTopic(signature string) Hash {
	return Hash("0x" + hex.EncodeToString(keccak256([]byte(signature))))
}

// PairCreatedTopic is the factory event the pipeline subscribes to.
var PairCreatedTopic = EventTopic("PairCreated(address,address,address,uint256)")

// encodeAddress left-pads an address to a 32-byte word.
func encodeAddress(a Address) string {
	h := strings.TrimPrefix(strings.ToLower(string(a)), "0x")
	return strings.Repeat("0", 64-len(h)) + h
}

// encodeUint left-pads an integer to a 32-byte word.
func encodeUint(v *big.Int) string {
	h := v.Text(16)
	return strings.Repeat("0", 64-len(h)) + h
}

// callData assembles selector + encoded words into 0x-prefixed calldata.
func callData(selector string, words ...string) string {
	return "0x" + selector + strings.Join(words, "")
}

// word extracts the i-th 32-byte word from 0x-prefixed return data.
func word(data string, i int) (string, error) {
	h := strings.TrimPrefix(data, "0x")
	if len(h) < (i+1)*64 {
		return "", fmt.Errorf("evm: return data too short for word %d", i)
	}
	return h[i*64 : (i+1)*64], nil
}

// decodeAddress reads an address from the i-th return word.
func decodeAddress(data string, i int) (Address, error) {
	w, err := word(data, i)
	if err != nil {
		return "", err
	}
	return Address("0x" + w[24:]), nil
}

// decodeUint reads an unsigned integer from the i-th return word.
func decodeUint(data string, i int) (decimal.Decimal, error) {
	w, err := word(data, i)
	if err != nil {
		return decimal.Zero, err
	}
	v, ok := new(big.Int).SetString(w, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("evm: bad uint word %q", w)
	}
	return decimal.NewFromBigInt(v, 0), nil
}

// decodeString reads a dynamically-encoded string return value.
func decodeString(data string) (string, error) {
	offset, err := decodeUint(data, 0)
	if err != nil {
		return "", err
	}
	h := strings.TrimPrefix(data, "0x")
	off := int(offset.IntPart()) * 2
	if len(h) < off+64 {
		return "", fmt.Errorf("evm: string return data too short")
	}
	length, ok := new(big.Int).SetString(h[off:off+64], 16)
	if !ok {
		return "", fmt.Errorf("evm: bad string length")
	}
	n := int(length.Int64()) * 2
	if len(h) < off+64+n {
		return "", fmt.Errorf("evm: string return data truncated")
	}
	raw, err := hex.DecodeString(h[off+64 : off+64+n])
	if err != nil {
		return "", fmt.Errorf("evm: decode string: %w", err)
	}
	return string(raw), nil
}

// hexToUint64 parses a 0x-prefixed quantity.
func hexToUint64(s string) (uint64, error) {
	h := strings.TrimPrefix(s, "0x")
	if h == "" {
		return 0, nil
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return 0, fmt.Errorf("evm: bad hex quantity %q", s)
	}
	return v.Uint64(), nil
}

// hexToDecimal parses a 0x-prefixed quantity into a decimal.
func hexToDecimal(s string) (decimal.Decimal, error) {
	h := strings.TrimPrefix(s, "0x")
	if h == "" {
		return decimal.Zero, nil
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("evm: bad hex quantity %q", s)
	}
	return decimal.NewFromBigInt(v, 0), nil
}

// decimalToHex renders a non-negative decimal integer as a 0x quantity.
func decimalToHex(d decimal.Decimal) string {
	return "0x" + d.BigInt().Text(16)
}
