package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"bridge-relay/pkg/config"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoKeySource = errors.New("未找到可用的私钥源 (Keystore / PrivateKey / Mnemonic)")

// Signer L1 签名账户
// 身份认证流程不在本服务内，这里只负责把配置好的账户加载进内存
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load 按优先级加载: keystore > private_key > mnemonic
func Load(cfg config.SignerConfig) (*Signer, error) {
	switch {
	case cfg.KeystorePath != "":
		return FromKeystore(cfg.KeystorePath, cfg.Password)
	case cfg.PrivateKey != "":
		return FromHex(cfg.PrivateKey)
	case cfg.Mnemonic != "":
		return FromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
	default:
		return nil, ErrNoKeySource
	}
}

// FromKeystore 解密以太坊 V3 Keystore 文件
func FromKeystore(path, password string) (*Signer, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取 Keystore 失败: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("解密 Keystore 失败 (密码错误?): %w", err)
	}
	return New(key.PrivateKey), nil
}

// FromHex 从十六进制私钥加载，允许 0x 前缀
func FromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("私钥格式错误: %w", err)
	}
	return New(key), nil
}

func New(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// Address 返回签名账户地址
func (s *Signer) Address() common.Address {
	return s.address
}

// SignTx 对交易签名 (EIP-155 / EIP-1559 由 LatestSigner 自动选择)
func (s *Signer) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// SignMessage EIP-191 personal_sign 签名，返回 65 字节 [R || S || V]，V 为 27/28
func (s *Signer) SignMessage(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
