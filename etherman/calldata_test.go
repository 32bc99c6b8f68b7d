package etherman

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testToken   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSpender = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestApproveCall(t *testing.T) {
	call, err := ApproveCall(testToken, testSpender, big.NewInt(1000))
	require.NoError(t, err)

	assert.Equal(t, testToken, call.To)
	assert.Equal(t, big.NewInt(0), call.Value)
	// approve(address,uint256) selector
	assert.Equal(t, []byte{0x09, 0x5e, 0xa7, 0xb3}, call.Data[:4])
	assert.Len(t, call.Data, 4+64)
}

func TestTransferCall(t *testing.T) {
	call, err := TransferCall(testToken, testSpender, big.NewInt(500))
	require.NoError(t, err)

	assert.Equal(t, testToken, call.To)
	// transfer(address,uint256) selector
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, call.Data[:4])
}

func TestBalanceOfRoundTrip(t *testing.T) {
	data, err := BalanceOfCallData(testSpender)
	require.NoError(t, err)
	// balanceOf(address) selector
	assert.Equal(t, []byte{0x70, 0xa0, 0x82, 0x31}, data[:4])

	ret := make([]byte, 32)
	big.NewInt(123456789).FillBytes(ret)
	balance, err := UnpackBalanceOf(ret)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(123456789), balance)
}

func TestNativeTransferCall(t *testing.T) {
	amount := big.NewInt(777)
	call := NativeTransferCall(testSpender, amount)
	assert.Equal(t, testSpender, call.To)
	assert.Nil(t, call.Data)
	assert.Equal(t, amount, call.Value)

	// the call holds its own copy of the amount
	amount.SetInt64(1)
	assert.Equal(t, big.NewInt(777), call.Value)
}

func TestChainActionBatchCloneCalls(t *testing.T) {
	batch := ChainActionBatch{
		ChainID: 1,
		Calls: []Call{
			{To: testToken, Data: []byte{0x01, 0x02}, Value: big.NewInt(5)},
		},
	}

	clone := batch.CloneCalls()
	clone[0].Data[0] = 0xff
	clone[0].Value.SetInt64(99)

	assert.Equal(t, byte(0x01), batch.Calls[0].Data[0])
	assert.Equal(t, big.NewInt(5), batch.Calls[0].Value)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, ChainActionBatch{ChainID: 1}.IsEmpty())
	assert.False(t, ChainActionBatch{ChainID: 1, Calls: []Call{{}}}.IsEmpty())
}
