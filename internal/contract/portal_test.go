package contract

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDeposit(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	data, err := EncodeDeposit(DepositParams{
		To:       to,
		Value:    big.NewInt(42),
		GasLimit: 100000,
		Data:     []byte{0xde, 0xad},
	})
	require.NoError(t, err)

	selector := crypto.Keccak256([]byte("depositTransaction(address,uint256,uint64,bool,bytes)"))[:4]
	assert.Equal(t, selector, data[:4])

	args, err := portalABI.Methods[methodDeposit].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, args, 5)
	assert.Equal(t, to, args[0])
	assert.Equal(t, big.NewInt(42), args[1])
	assert.Equal(t, uint64(100000), args[2])
	assert.Equal(t, false, args[3])
	assert.Equal(t, []byte{0xde, 0xad}, args[4])
}

func TestEncodeDepositDefaults(t *testing.T) {
	data, err := EncodeDeposit(DepositParams{To: common.Address{}})
	require.NoError(t, err)

	args, err := portalABI.Methods[methodDeposit].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, 0, args[1].(*big.Int).Sign())
	assert.Empty(t, args[4])
}

func TestDecodeDepositEvents(t *testing.T) {
	portal := common.HexToAddress("0x0d83dab629f0e0F9d36c0Cbc89B69a489f0751bD")
	from := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	to := common.HexToAddress("0x00000000000000000000000000000000000000ab")

	ev := portalABI.Events[eventDeposit]
	payload, err := ev.Inputs.NonIndexed().Pack([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	good := &types.Log{
		Address: portal,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
			common.BigToHash(big.NewInt(0)),
		},
		Data:   payload,
		TxHash: common.HexToHash("0xaa"),
		Index:  3,
	}
	otherContract := *good
	otherContract.Address = common.HexToAddress("0x01")
	otherEvent := *good
	otherEvent.Topics = []common.Hash{common.HexToHash("0x1234"), {}, {}, {}}

	events := DecodeDepositEvents(portal, []*types.Log{&otherContract, good, &otherEvent, nil})
	require.Len(t, events, 1)
	assert.Equal(t, from, events[0].From)
	assert.Equal(t, to, events[0].To)
	assert.Equal(t, int64(0), events[0].Version.Int64())
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, events[0].OpaqueData)
	assert.Equal(t, uint(3), events[0].LogIndex)
}
