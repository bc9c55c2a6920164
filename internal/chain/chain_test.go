package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"triad-arena/server/internal/money"
)

func TestErrorClassification(t *testing.T) {
	tr := transientf("verify deposit", errors.New("rpc timeout"))
	perm := permanentf("transfer", "reverted")

	require.True(t, Transient(tr))
	require.False(t, Transient(perm))
	require.False(t, Transient(errors.New("plain")))

	var ce *Error
	require.True(t, errors.As(tr, &ce))
	require.Equal(t, "verify deposit", ce.Op)
}

func TestPackTransferCalldata(t *testing.T) {
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	data := packTransfer(to, big.NewInt(2_400_000))

	require.Len(t, data, 68)
	require.Equal(t, transferSelector, data[:4])
	require.Equal(t, common.LeftPadBytes(to.Bytes(), 32), data[4:36])
	require.Equal(t, big.NewInt(2_400_000), new(big.Int).SetBytes(data[36:]))
}

func TestMockGatewayDeposits(t *testing.T) {
	g := NewMockGateway("0xop", money.MustParse("10"))
	g.AddDeposit("0xgood", "0xplayer", "0xlobby1", money.MustParse("1"), 5)
	g.FailDeposit("0xslow", transientf("verify deposit", errors.New("not mined")))

	dep, err := g.VerifyDeposit(context.Background(), "0xgood", "0xlobby1")
	require.NoError(t, err)
	require.Equal(t, money.MustParse("1"), dep.Amount)
	require.Equal(t, uint64(5), dep.Confirmations)

	// The same transaction does not verify against another lobby's address.
	_, err = g.VerifyDeposit(context.Background(), "0xgood", "0xlobby2")
	require.Error(t, err)
	require.False(t, Transient(err))

	_, err = g.VerifyDeposit(context.Background(), "0xslow", "0xlobby1")
	require.True(t, Transient(err))

	_, err = g.VerifyDeposit(context.Background(), "0xunknown", "0xlobby1")
	require.Error(t, err)
	require.False(t, Transient(err))
}

func TestMockGatewayConfirmTransfer(t *testing.T) {
	g := NewMockGateway("0xop", money.MustParse("10"))

	txHash, err := g.Transfer(context.Background(), "0xwinner", money.MustParse("2.4"))
	require.NoError(t, err)
	require.NoError(t, g.ConfirmTransfer(context.Background(), txHash, 3))

	// Scripted outcomes take precedence over the recorded transfer.
	g.FailNextConfirm(transientf("confirm transfer", errors.New("shallow")))
	require.True(t, Transient(g.ConfirmTransfer(context.Background(), txHash, 3)))
	require.NoError(t, g.ConfirmTransfer(context.Background(), txHash, 3))

	err = g.ConfirmTransfer(context.Background(), "0xnever", 3)
	require.Error(t, err)
	require.False(t, Transient(err))
}

func TestMockGatewayTransferDebitsBalance(t *testing.T) {
	g := NewMockGateway("0xop", money.MustParse("3"))

	txHash, err := g.Transfer(context.Background(), "0xwinner", money.MustParse("2.4"))
	require.NoError(t, err)
	require.NotEmpty(t, txHash)

	balance, err := g.StablecoinBalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, money.MustParse("0.6"), balance)

	// Overdrawing is a permanent failure.
	_, err = g.Transfer(context.Background(), "0xwinner", money.MustParse("2.4"))
	require.Error(t, err)
	require.False(t, Transient(err))

	require.Len(t, g.Transfers(), 1)
	require.Equal(t, "0xwinner", g.Transfers()[0].To)
}

func TestMockGatewayQueuedFailure(t *testing.T) {
	g := NewMockGateway("0xop", money.MustParse("10"))
	g.FailNextTransfer(transientf("transfer", errors.New("nonce race")))

	_, err := g.Transfer(context.Background(), "0xwinner", money.MustParse("1"))
	require.True(t, Transient(err))

	// The queue drains; the next transfer goes through.
	_, err = g.Transfer(context.Background(), "0xwinner", money.MustParse("1"))
	require.NoError(t, err)
}
