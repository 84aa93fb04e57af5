// Package vault 管理加密保存的主密钥 (MasterSecret)。
// 对外只暴露 masterKeyId，种子只在 Unlock 后短暂存在于内存中。
package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"go.uber.org/zap"
	"lukechampine.com/blake3"

	"custody-wallet/pkg/bip32"
	"custody-wallet/pkg/bip39"
	"custody-wallet/pkg/logger"
)

var ErrWeakPassword = errors.New("密码长度至少 8 位")

const minPasswordLen = 8

// Seed 解锁后的 BIP-39 种子，用完必须调用 Wipe
type Seed struct {
	b []byte
}

func (s *Seed) Bytes() []byte { return s.b }

// Wipe 清零种子内存
func (s *Seed) Wipe() {
	if s == nil {
		return
	}
	wipe(s.b)
	s.b = nil
}

type Vault struct {
	store    BlobStore
	mnemonic *bip39.MnemonicService
	scryptN  int
}

type Option func(*Vault)

// WithScryptN 调整 scrypt 成本，测试中使用 LightScryptN
func WithScryptN(n int) Option {
	return func(v *Vault) { v.scryptN = n }
}

func New(store BlobStore, opts ...Option) *Vault {
	v := &Vault{
		store:    store,
		mnemonic: bip39.NewMnemonicService(),
		scryptN:  StandardScryptN,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Create 生成新的主密钥，返回 masterKeyId 和助记词。
// 助记词只在这一刻交给调用方，用于抄写确认，之后不再能取回。
func (v *Vault) Create(ctx context.Context, password string, entropyBits int) (string, string, error) {
	mnemonic, err := v.mnemonic.GenerateMnemonic(entropyBits)
	if err != nil {
		return "", "", err
	}
	id, err := v.Import(ctx, mnemonic, password)
	if err != nil {
		return "", "", err
	}
	return id, mnemonic, nil
}

// Import 用已有的助记词恢复主密钥
func (v *Vault) Import(ctx context.Context, mnemonic, password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}
	if !v.mnemonic.ValidateMnemonic(mnemonic) {
		return "", errors.New("助记词无效")
	}
	normalized := bip39.Normalize(mnemonic)

	seed := &Seed{b: v.mnemonic.MnemonicToSeed(normalized, "")}
	defer seed.Wipe()

	id, err := Fingerprint(seed.Bytes())
	if err != nil {
		return "", err
	}

	env, err := seal([]byte(normalized), password, id, v.scryptN)
	if err != nil {
		return "", err
	}
	data, err := env.marshal()
	if err != nil {
		return "", err
	}
	if err := v.store.Put(ctx, id, data); err != nil {
		return "", err
	}

	logger.Info("主密钥已保存", zap.String("master_key_id", id))
	return id, nil
}

// Unlock 解密主密钥并返回种子，调用方负责 Wipe
func (v *Vault) Unlock(ctx context.Context, masterKeyID, password string) (*Seed, error) {
	data, err := v.store.Get(ctx, masterKeyID)
	if err != nil {
		return nil, err
	}
	env, err := unmarshalEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.MasterKeyID != masterKeyID {
		return nil, fmt.Errorf("密钥文件 id 不匹配: %s", env.MasterKeyID)
	}

	phrase, err := env.open(password)
	if err != nil {
		return nil, err
	}
	defer wipe(phrase)

	seed := &Seed{b: v.mnemonic.MnemonicToSeed(string(phrase), "")}

	// 防止密钥文件被替换成别的种子
	id, err := Fingerprint(seed.Bytes())
	if err != nil {
		seed.Wipe()
		return nil, err
	}
	if id != masterKeyID {
		seed.Wipe()
		return nil, fmt.Errorf("主密钥指纹不匹配")
	}
	return seed, nil
}

// Fingerprint masterKeyId = hex(blake3(主公钥 xpub))，不可逆推出种子
func Fingerprint(seed []byte) (string, error) {
	wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	pub, err := wallet.MasterKey().Neuter()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256([]byte(pub.String()))
	return hex.EncodeToString(sum[:]), nil
}
