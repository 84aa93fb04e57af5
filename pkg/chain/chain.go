// Package chain 定义支持的链、每条链固定的派生路径和地址分配策略，
// 以及 (chain, network, asset) 组合键的规范化。
package chain

import (
	"fmt"
	"strings"
)

// ID 链标识
type ID string

const (
	EVM     ID = "evm"  // 账户模型链 A (以太坊及兼容链)
	Tron    ID = "tron" // 账户模型链 (TRON)
	BTC     ID = "btc"  // UTXO 链 (SegWit)
	XRP     ID = "xrp"  // 账本型账户链 B，使用 destination tag
	Unknown ID = "unknown"
)

// Strategy 地址分配策略
type Strategy int

const (
	// IndexDerived 每个用户按 index 派生独立地址
	IndexDerived Strategy = iota
	// TagDerived 所有用户共享一个地址，用 destination tag 区分
	TagDerived
)

func (s Strategy) String() string {
	switch s {
	case IndexDerived:
		return "index"
	case TagDerived:
		return "tag"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Spec 单条链的固定参数
type Spec struct {
	ID          ID
	CoinType    uint32
	Purpose     uint32
	AccountPath string // 账户级派生路径，必须与历史数据保持一致
	AddressType string
	BaseAsset   string
	Strategy    Strategy
	Aliases     []string // 与 mainnet 等价的网络别名
}

// 注意: 路径一旦上线就不能再修改，否则已分配地址将无法复现
var specs = map[ID]Spec{
	EVM: {
		ID: EVM, CoinType: 60, Purpose: 44, AccountPath: "m/44'/60'/0'",
		AddressType: "eip55", BaseAsset: "ETH", Strategy: IndexDerived,
		Aliases: []string{"ethereum", "eth", "erc20", "evm"},
	},
	Tron: {
		ID: Tron, CoinType: 195, Purpose: 44, AccountPath: "m/44'/195'/0'",
		AddressType: "tron-base58", BaseAsset: "TRX", Strategy: IndexDerived,
		Aliases: []string{"tron", "trx", "trc20"},
	},
	BTC: {
		ID: BTC, CoinType: 0, Purpose: 84, AccountPath: "m/84'/0'/0'",
		AddressType: "p2wpkh", BaseAsset: "BTC", Strategy: IndexDerived,
		Aliases: []string{"bitcoin", "btc", "segwit"},
	},
	XRP: {
		ID: XRP, CoinType: 144, Purpose: 44, AccountPath: "m/44'/144'/0'",
		AddressType: "ripple-base58", BaseAsset: "XRP", Strategy: TagDerived,
		Aliases: []string{"xrpl", "ripple", "xrp"},
	},
}

// tokenBases 同链代币复用基础资产地址
var tokenBases = map[ID][]string{
	EVM:  {"USDT", "USDC", "DAI"},
	Tron: {"USDT", "USDC"},
}

// Lookup 返回链参数
func Lookup(id ID) (Spec, bool) {
	s, ok := specs[id]
	return s, ok
}

// All 返回所有支持的链
func All() []Spec {
	out := make([]Spec, 0, len(specs))
	for _, id := range []ID{EVM, Tron, BTC, XRP} {
		out = append(out, specs[id])
	}
	return out
}

// Parse 解析链名称，不认识的返回 Unknown
func Parse(s string) ID {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := specs[id]; ok {
		return id
	}
	for _, spec := range specs {
		for _, alias := range spec.Aliases {
			if alias == string(id) {
				return spec.ID
			}
		}
	}
	return Unknown
}

// Tokens 该链支持的代币
func Tokens(id ID) []string {
	return append([]string(nil), tokenBases[id]...)
}

// IsToken 判断资产是否是搭载在该链基础资产上的代币
func IsToken(id ID, asset string) bool {
	asset = NormalizeAsset(asset)
	for _, t := range tokenBases[id] {
		if t == asset {
			return true
		}
	}
	return false
}

// NormalizeAsset 资产符号统一大写
func NormalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}

// NormalizeNetwork 把网络名规范化: 小写并把链别名折叠成 mainnet
func NormalizeNetwork(id ID, network string) string {
	n := strings.ToLower(strings.TrimSpace(network))
	if n == "" || n == "main" {
		return "mainnet"
	}
	if spec, ok := specs[id]; ok {
		for _, alias := range spec.Aliases {
			if n == alias {
				return "mainnet"
			}
		}
	}
	return n
}

// NetworksCompatible 比较两个网络名是否指向同一网络
// 通用的 "mainnet" 与该链的所有主网别名兼容
func NetworksCompatible(id ID, a, b string) bool {
	return NormalizeNetwork(id, a) == NormalizeNetwork(id, b)
}

// Key 组合键 (chain, network, asset)
type Key struct {
	Chain   ID
	Network string
	Asset   string
}

// NewKey 构造规范化后的组合键
func NewKey(chainName, network, asset string) Key {
	id := Parse(chainName)
	return Key{
		Chain:   id,
		Network: NormalizeNetwork(id, network),
		Asset:   NormalizeAsset(asset),
	}
}

// Base 返回同链的基础资产组合键
func (k Key) Base() Key {
	spec, ok := specs[k.Chain]
	if !ok {
		return k
	}
	return Key{Chain: k.Chain, Network: k.Network, Asset: spec.BaseAsset}
}

// IsToken 是否是代币组合
func (k Key) IsToken() bool {
	return IsToken(k.Chain, k.Asset)
}

// Validate 检查组合键是否可分配
func (k Key) Validate() error {
	if k.Chain == Unknown || k.Chain == "" {
		return fmt.Errorf("不支持的链: %q", k.Chain)
	}
	if k.Asset == "" {
		return fmt.Errorf("资产不能为空")
	}
	spec := specs[k.Chain]
	if k.Asset != spec.BaseAsset && !k.IsToken() {
		return fmt.Errorf("链 %s 不支持资产 %s", k.Chain, k.Asset)
	}
	return nil
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Chain, k.Network, k.Asset)
}
