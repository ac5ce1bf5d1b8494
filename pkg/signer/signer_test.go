package signer

import (
	"math/big"
	"testing"

	"bridge-relay/pkg/config"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat / Anvil 默认账户 #0
const (
	testMnemonic = "test test test test test test test test test test test junk"
	testKey      = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestFromHex(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = FromHex("0x1234")
	assert.Error(t, err)
}

func TestFromMnemonicMatchesHardhat(t *testing.T) {
	s, err := FromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	// 第二个账户地址不同
	s1, err := FromMnemonic(testMnemonic, "m/44'/60'/0'/0/1")
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), s1.Address())
}

func TestFromMnemonicErrors(t *testing.T) {
	_, err := FromMnemonic("not a valid mnemonic", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	_, err = FromMnemonic(testMnemonic, "44'/60'")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = FromMnemonic(testMnemonic, "m/44'/abc")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestFromKeystore(t *testing.T) {
	priv, err := crypto.HexToECDSA(testKey[2:])
	require.NoError(t, err)

	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.ImportECDSA(priv, "secret")
	require.NoError(t, err)

	s, err := FromKeystore(acct.URL.Path, "secret")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	_, err = FromKeystore(acct.URL.Path, "wrong")
	assert.Error(t, err)
}

func TestLoadPriority(t *testing.T) {
	_, err := Load(config.SignerConfig{})
	assert.ErrorIs(t, err, ErrNoKeySource)

	s, err := Load(config.SignerConfig{PrivateKey: testKey, Mnemonic: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())

	s, err = Load(config.SignerConfig{Mnemonic: testMnemonic, DerivationPath: DefaultDerivationPath})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testAddress), s.Address())
}

func TestSignMessageRecoverable(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)

	msg := []byte("hello from L2")
	sig, err := s.SignMessage(msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	// 还原为 0/1 再恢复公钥
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(msg), raw)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSignTx(t *testing.T) {
	s, err := FromHex(testKey)
	require.NoError(t, err)

	chainID := big.NewInt(11155111)
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, To: &common.Address{}, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(10)})
	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), from)
}
