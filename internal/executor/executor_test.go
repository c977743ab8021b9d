package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrier-trading/harrier/internal/evm"
	"github.com/harrier-trading/harrier/internal/state"
)

const (
	testToken  = evm.Address("0x1111111111111111111111111111111111111111")
	testWallet = evm.Address("0x9999999999999999999999999999999999999999")
)

func newTestExecutor(dryRun bool) (*Executor, *evm.StubClient, *state.BotState) {
	client := evm.NewStubClient()
	st := state.New()
	cfg := DefaultConfig()
	cfg.WalletAddress = testWallet
	cfg.DryRun = dryRun
	cfg.SellDelay = 10 * time.Millisecond
	return New(cfg, client, st), client, st
}

func TestBuy_DryRunFabricatesSuccess(t *testing.T) {
	e, client, st := newTestExecutor(true)

	rec := e.Buy(context.Background(), testToken, decimal.NewFromFloat(0.1), 500)

	assert.Equal(t, state.TradeSuccess, rec.Status)
	assert.True(t, strings.HasPrefix(string(rec.TxHash), "DRYRUN-BUY-"))
	assert.Empty(t, client.BuyCalls())
	assert.Equal(t, int64(1), st.Stats().TotalTrades)
	assert.Equal(t, int64(1), st.Stats().SuccessfulTrades)
}

func TestBuy_LiveAppliesGasPremium(t *testing.T) {
	e, client, _ := newTestExecutor(false)
	client.SetGasPrice(20)

	rec := e.Buy(context.Background(), testToken, decimal.NewFromFloat(0.1), 500)

	require.Equal(t, state.TradeSuccess, rec.Status)
	calls := client.BuyCalls()
	require.Len(t, calls, 1)

	// 20 gwei + 10% premium = 22 gwei.
	expected := decimal.NewFromInt(22).Mul(evm.WeiPerGwei)
	assert.True(t, calls[0].Gas.GasPrice.Equal(expected), "got %s", calls[0].Gas.GasPrice)
	assert.Equal(t, uint64(300_000), calls[0].Gas.GasLimit)

	// Amount is converted to wei.
	assert.True(t, calls[0].AmountIn.Equal(decimal.NewFromFloat(0.1).Mul(evm.WeiPerEth)))
}

func TestBuy_GasPremiumCappedAtCeiling(t *testing.T) {
	e, client, _ := newTestExecutor(false)
	client.SetGasPrice(95) // 95 * 1.1 = 104.5 gwei, above the 100 ceiling

	rec := e.Buy(context.Background(), testToken, decimal.NewFromFloat(0.1), 500)

	require.Equal(t, state.TradeSuccess, rec.Status)
	calls := client.BuyCalls()
	require.Len(t, calls, 1)
	ceiling := decimal.NewFromInt(100).Mul(evm.WeiPerGwei)
	assert.True(t, calls[0].Gas.GasPrice.Equal(ceiling))
}

func TestBuy_SubmissionFailureRecordsFailed(t *testing.T) {
	e, client, st := newTestExecutor(false)
	client.FailMethod("SubmitBuy")

	rec := e.Buy(context.Background(), testToken, decimal.NewFromFloat(0.1), 500)

	assert.Equal(t, state.TradeFailed, rec.Status)
	assert.NotEmpty(t, rec.Reason)
	assert.Equal(t, int64(1), st.Stats().TotalTrades)
	assert.Equal(t, int64(0), st.Stats().SuccessfulTrades)

	// No automatic retry.
	assert.Empty(t, client.BuyCalls())
}

func TestBuy_RevertedReceiptRecordsFailed(t *testing.T) {
	e, client, st := newTestExecutor(false)
	client.SetBuyReceipt(evm.TradeReceipt{
		TxHash: "0xdead", BlockNumber: 10, Status: false, RevertReason: "INSUFFICIENT_OUTPUT_AMOUNT",
	})

	rec := e.Buy(context.Background(), testToken, decimal.NewFromFloat(0.1), 500)

	assert.Equal(t, state.TradeFailed, rec.Status)
	assert.Equal(t, "INSUFFICIENT_OUTPUT_AMOUNT", rec.Reason)
	assert.Equal(t, int64(0), st.Stats().SuccessfulTrades)
}

func TestSell_ZeroBalanceIsSilentNoOp(t *testing.T) {
	e, client, st := newTestExecutor(false)

	rec, err := e.Sell(context.Background(), testToken, 80, 800)

	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, client.SellCalls())
	assert.Equal(t, int64(0), st.Stats().TotalTrades)
}

func TestSell_PercentageOfHoldings(t *testing.T) {
	e, client, _ := newTestExecutor(false)
	client.SetTokenBalance(testToken, testWallet, decimal.NewFromInt(1000))

	rec, err := e.Sell(context.Background(), testToken, 80, 800)

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, state.TradeSuccess, rec.Status)

	calls := client.SellCalls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].AmountIn.Equal(decimal.NewFromInt(800)))
	assert.Equal(t, 800, calls[0].SlippageBps)
}

func TestScheduleSell_FiresAfterDelay(t *testing.T) {
	e, client, _ := newTestExecutor(false)
	client.SetTokenBalance(testToken, testWallet, decimal.NewFromInt(1000))

	done := make(chan SellResult, 1)
	e.SetSellResultCallback(func(res SellResult) { done <- res })

	e.ScheduleSell(testToken)

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		require.NotNil(t, res.Record)
		assert.Equal(t, state.TradeSuccess, res.Record.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled sell never fired")
	}
}

func TestScheduleSell_IdempotentAgainstLiquidatedPosition(t *testing.T) {
	e, client, st := newTestExecutor(false)
	// Position already emptied by the time the timer fires.
	client.SetTokenBalance(testToken, testWallet, decimal.Zero)

	done := make(chan SellResult, 1)
	e.SetSellResultCallback(func(res SellResult) { done <- res })

	e.ScheduleSell(testToken)

	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Nil(t, res.Record)
		assert.Empty(t, client.SellCalls())
		assert.Equal(t, int64(0), st.Stats().TotalTrades)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduled sell never fired")
	}
}

func TestScheduleSell_SkippedAfterShutdown(t *testing.T) {
	e, client, _ := newTestExecutor(false)
	client.SetTokenBalance(testToken, testWallet, decimal.NewFromInt(1000))

	fired := make(chan SellResult, 1)
	e.SetSellResultCallback(func(res SellResult) { fired <- res })

	e.Shutdown()
	e.ScheduleSell(testToken)

	select {
	case <-fired:
		t.Fatal("sell fired after shutdown")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, client.SellCalls())
}
