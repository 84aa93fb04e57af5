package bip32

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// BTCKeychain 实现了 ExtendedKey 接口，封装了 hdkeychain.ExtendedKey
type BTCKeychain struct {
	key *hdkeychain.ExtendedKey
}

func (k *BTCKeychain) String() string {
	return k.key.String()
}

func (k *BTCKeychain) ECPubKey() (*btcec.PublicKey, error) {
	return k.key.ECPubKey()
}

func (k *BTCKeychain) Derive(index uint32) (ExtendedKey, error) {
	if !k.key.IsPrivate() && index >= hdkeychain.HardenedKeyStart {
		return nil, ErrHardenedFromPub
	}
	childKey, err := k.key.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("派生子密钥失败: %w", err)
	}
	return &BTCKeychain{key: childKey}, nil
}

func (k *BTCKeychain) DerivePath(path string) (ExtendedKey, error) {
	indexes, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	var current ExtendedKey = k
	for _, index := range indexes {
		current, err = current.Derive(index)
		if err != nil {
			return nil, err
		}
	}
	return current, nil
}

func (k *BTCKeychain) IsPrivate() bool {
	return k.key.IsPrivate()
}

func (k *BTCKeychain) Neuter() (ExtendedKey, error) {
	neuterKey, err := k.key.Neuter()
	if err != nil {
		return nil, fmt.Errorf("转换公钥失败: %w", err)
	}
	return &BTCKeychain{key: neuterKey}, nil
}

// Wallet 实现 HDWallet 接口
type Wallet struct {
	masterKey *BTCKeychain
}

// NewMasterKeyFromSeed 使用 BIP-39 种子生成主密钥
// network 只影响扩展密钥的序列化前缀 (xprv/tprv)，默认为 chaincfg.MainNetParams
func NewMasterKeyFromSeed(seed []byte, network *chaincfg.Params) (*Wallet, error) {
	if len(seed) < hdkeychain.MinSeedBytes || len(seed) > hdkeychain.MaxSeedBytes {
		return nil, ErrInvalidSeed
	}
	if network == nil {
		network = &chaincfg.MainNetParams
	}

	masterKey, err := hdkeychain.NewMaster(seed, network)
	if err != nil {
		return nil, fmt.Errorf("生成主密钥失败: %w", err)
	}

	return &Wallet{masterKey: &BTCKeychain{key: masterKey}}, nil
}

// KeyFromString 解析 Base58 编码的扩展密钥 (通常是数据库里存的 xpub)
func KeyFromString(s string) (ExtendedKey, error) {
	key, err := hdkeychain.NewKeyFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("解析扩展密钥失败: %w", err)
	}
	return &BTCKeychain{key: key}, nil
}

func (w *Wallet) MasterKey() ExtendedKey {
	return w.masterKey
}

// DerivePath 解析路径并派生密钥
// 支持格式: m/44'/0'/0'/0/0 或 m/44h/0h/0h/0/0
func (w *Wallet) DerivePath(path string) (ExtendedKey, error) {
	return w.masterKey.DerivePath(path)
}

// ParsePath 把路径字符串解析为索引序列，硬化索引已加上 HardenedKeyStart
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "m")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil, nil
	}

	segments := strings.Split(path, "/")
	indexes := make([]uint32, 0, len(segments))
	for _, segment := range segments {
		isHardened := false
		if strings.HasSuffix(segment, "'") || strings.HasSuffix(segment, "h") {
			isHardened = true
			segment = segment[:len(segment)-1]
		}

		val, err := strconv.ParseUint(segment, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: 路径段 '%s': %v", ErrInvalidPath, segment, err)
		}
		index := uint32(val)
		if isHardened {
			if index >= hdkeychain.HardenedKeyStart {
				return nil, fmt.Errorf("%w: 硬化索引越界 '%s'", ErrInvalidPath, segment)
			}
			index += hdkeychain.HardenedKeyStart
		}
		indexes = append(indexes, index)
	}
	return indexes, nil
}

// CoinType 返回路径中 coin_type 段 (第二段) 的值，不存在时 ok=false
func CoinType(path string) (coin uint32, ok bool) {
	indexes, err := ParsePath(path)
	if err != nil || len(indexes) < 2 {
		return 0, false
	}
	coin = indexes[1]
	if coin >= hdkeychain.HardenedKeyStart {
		coin -= hdkeychain.HardenedKeyStart
	}
	return coin, true
}

// IsInvalidPath 判断错误是否由路径格式引起
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}
