// Package hd 负责从种子派生每个 (chain, network, asset) 的账户级扩展公钥 (WalletRoot)，
// 以及只凭扩展公钥派生具体地址。
package hd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"

	"custody-wallet/pkg/address"
	"custody-wallet/pkg/bip32"
	"custody-wallet/pkg/chain"
)

// ExternalChain BIP-44 外部链 (收款地址)
const ExternalChain = 0

// DerivationError 种子或路径不合法，属于致命错误，不重试
type DerivationError struct {
	Key chain.Key
	Op  string
	Err error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("派生失败 [%s] %s: %v", e.Key, e.Op, e.Err)
}

func (e *DerivationError) Unwrap() error { return e.Err }

// IsDerivationError 判断是否为派生错误
func IsDerivationError(err error) bool {
	var de *DerivationError
	return errors.As(err, &de)
}

// Root 账户级扩展公钥，不含任何私钥材料
type Root struct {
	Key                chain.Key
	ExtendedPublicKey  string
	DerivationPath     string // 账户路径，例如 m/44'/60'/0'
	DerivationTemplate string // 地址路径模板，例如 m/44'/60'/0'/0/{index}
	AddressType        string
	Strategy           chain.Strategy
}

// Address 一个具体的派生地址
type Address struct {
	Value          string
	DerivationPath string
	Index          uint32
}

// Engine HD 派生引擎，无状态，可并发使用
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Strategy 返回该链的地址分配策略 (按 index 派生或共享地址 + tag)
func (e *Engine) Strategy(id chain.ID) (chain.Strategy, error) {
	spec, ok := chain.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("不支持的链: %s", id)
	}
	return spec.Strategy, nil
}

// DeriveRoot 使用种子派生该组合的账户级扩展公钥
// 同一种子和路径永远得到同一个扩展公钥
func (e *Engine) DeriveRoot(seed []byte, key chain.Key) (*Root, error) {
	spec, ok := chain.Lookup(key.Chain)
	if !ok {
		return nil, &DerivationError{Key: key, Op: "lookup", Err: fmt.Errorf("不支持的链: %s", key.Chain)}
	}

	wallet, err := bip32.NewMasterKeyFromSeed(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, &DerivationError{Key: key, Op: "master", Err: err}
	}
	account, err := wallet.DerivePath(spec.AccountPath)
	if err != nil {
		return nil, &DerivationError{Key: key, Op: "account", Err: err}
	}
	pub, err := account.Neuter()
	if err != nil {
		return nil, &DerivationError{Key: key, Op: "neuter", Err: err}
	}

	return &Root{
		Key:                key,
		ExtendedPublicKey:  pub.String(),
		DerivationPath:     spec.AccountPath,
		DerivationTemplate: Template(spec.AccountPath),
		AddressType:        spec.AddressType,
		Strategy:           spec.Strategy,
	}, nil
}

// DeriveAddress 只用扩展公钥派生第 index 个收款地址
func (e *Engine) DeriveAddress(root *Root, index uint32) (*Address, error) {
	xpub, err := bip32.KeyFromString(root.ExtendedPublicKey)
	if err != nil {
		return nil, &DerivationError{Key: root.Key, Op: "parse xpub", Err: err}
	}
	if xpub.IsPrivate() {
		// 数据库里只允许存 xpub
		return nil, &DerivationError{Key: root.Key, Op: "parse xpub", Err: errors.New("WalletRoot 不能持有私钥")}
	}

	child, err := xpub.DerivePath(fmt.Sprintf("%d/%d", ExternalChain, index))
	if err != nil {
		return nil, &DerivationError{Key: root.Key, Op: "derive", Err: err}
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return nil, &DerivationError{Key: root.Key, Op: "pubkey", Err: err}
	}

	gen, err := address.ForChain(root.Key.Chain, root.Key.Network)
	if err != nil {
		return nil, &DerivationError{Key: root.Key, Op: "encode", Err: err}
	}
	value, err := gen.PubKeyToAddress(pub)
	if err != nil {
		return nil, &DerivationError{Key: root.Key, Op: "encode", Err: err}
	}

	return &Address{
		Value:          value,
		DerivationPath: Expand(root.DerivationTemplate, index),
		Index:          index,
	}, nil
}

// SharedAddress 共享地址链 (destination tag) 的唯一收款地址，固定为 index 0
func (e *Engine) SharedAddress(root *Root) (*Address, error) {
	if root.Strategy != chain.TagDerived {
		return nil, &DerivationError{Key: root.Key, Op: "shared", Err: errors.New("该链不使用共享地址")}
	}
	return e.DeriveAddress(root, 0)
}

// Template 账户路径 -> 地址路径模板
func Template(accountPath string) string {
	return fmt.Sprintf("%s/%d/{index}", strings.TrimSuffix(accountPath, "/"), ExternalChain)
}

// Expand 用 index 填充路径模板
func Expand(template string, index uint32) string {
	return strings.ReplaceAll(template, "{index}", strconv.FormatUint(uint64(index), 10))
}

// AccountPath 地址路径模板 -> 账户路径
func AccountPath(template string) string {
	return strings.TrimSuffix(template, fmt.Sprintf("/%d/{index}", ExternalChain))
}
