package evm

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_Shape(t *testing.T) {
	sel := Selector("transfer(address,uint256)")
	assert.Len(t, sel, 8)

	// Distinct signatures produce distinct selectors.
	assert.NotEqual(t, sel, Selector("approve(address,uint256)"))
	// Deterministic.
	assert.Equal(t, sel, Selector("transfer(address,uint256)"))
}

func TestEventTopic_Shape(t *testing.T) {
	topic := string(PairCreatedTopic)
	assert.True(t, strings.HasPrefix(topic, "0x"))
	assert.Len(t, topic, 66)
}

func TestEncodeDecode_Address(t *testing.T) {
	addr := Address("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	word := encodeAddress(addr)
	assert.Len(t, word, 64)
	assert.True(t, strings.HasPrefix(word, strings.Repeat("0", 24)))

	decoded, err := decodeAddress("0x"+word, 0)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(addr))
}

func TestEncodeDecode_Uint(t *testing.T) {
	word := encodeUint(big.NewInt(300_000))
	assert.Len(t, word, 64)

	v, err := decodeUint("0x"+word, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(300_000), v.IntPart())
}

func TestDecode_SecondWord(t *testing.T) {
	data := "0x" + encodeUint(big.NewInt(7)) + encodeUint(big.NewInt(42))

	first, err := decodeUint(data, 0)
	require.NoError(t, err)
	second, err := decodeUint(data, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(7), first.IntPart())
	assert.Equal(t, int64(42), second.IntPart())
}

func TestDecode_TruncatedData(t *testing.T) {
	_, err := decodeUint("0x1234", 0)
	assert.Error(t, err)

	_, err = decodeAddress("0x"+encodeUint(big.NewInt(1)), 1)
	assert.Error(t, err)
}

func TestDecodeString(t *testing.T) {
	// offset=0x20, length=4, "PEPE" padded to a word.
	data := "0x" +
		encodeUint(big.NewInt(32)) +
		encodeUint(big.NewInt(4)) +
		"5045504500000000000000000000000000000000000000000000000000000000"

	s, err := decodeString(data)
	require.NoError(t, err)
	assert.Equal(t, "PEPE", s)
}

func TestHexQuantities(t *testing.T) {
	n, err := hexToUint64("0x64")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), n)

	n, err = hexToUint64("0x")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)

	d, err := hexToDecimal("0xde0b6b3a7640000") // 1e18
	require.NoError(t, err)
	assert.True(t, d.Equal(WeiPerEth))

	assert.Equal(t, "0xde0b6b3a7640000", decimalToHex(d))
}
