package signer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"
)

// DefaultDerivationPath 以太坊 BIP-44 第一个账户
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var (
	ErrInvalidMnemonic = errors.New("无效的助记词")
	ErrInvalidPath     = errors.New("无效的派生路径")
)

// FromMnemonic BIP-39 助记词 -> BIP-32 派生 -> secp256k1 私钥
func FromMnemonic(mnemonic, path string) (*Signer, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	if path == "" {
		path = DefaultDerivationPath
	}

	indexes, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	// 1. 生成 Seed (不使用 passphrase)
	seed := bip39.NewSeed(mnemonic, "")

	// 2. Master Key，网络参数只影响序列化前缀，不影响派生出的私钥
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	// 3. 逐级派生
	for _, idx := range indexes {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("派生子密钥失败: %w", err)
		}
	}

	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return New(priv.ToECDSA()), nil
}

// parsePath 支持格式: m/44'/60'/0'/0/0 或 m/44h/60h/0h/0/0
func parsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "m/") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}

	segments := strings.Split(path[2:], "/")
	out := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		hardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			hardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: 路径段 '%s': %v", ErrInvalidPath, segment, err)
		}

		index := uint32(val)
		if hardened {
			index += hdkeychain.HardenedKeyStart
		}
		out = append(out, index)
	}
	return out, nil
}
