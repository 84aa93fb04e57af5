// Package classifier 根据地址字符串、网络名和派生路径推断所属链。
// 规则按可信度排序逐条匹配，都不命中时返回 chain.Unknown，不做猜测。
package classifier

import (
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"

	"custody-wallet/pkg/address"
	"custody-wallet/pkg/bip32"
	"custody-wallet/pkg/chain"
)

// Source 证据来源，按可信度从高到低
type Source int

const (
	FromNetwork Source = iota
	FromAddress
	FromDerivationPath
)

func (s Source) String() string {
	switch s {
	case FromNetwork:
		return "network"
	case FromAddress:
		return "address"
	case FromDerivationPath:
		return "derivation_path"
	default:
		return "none"
	}
}

// Input 待分类的原始数据
type Input struct {
	Address        string
	Network        string
	DerivationPath string
}

// Rule 一条 (谓词, 链) 规则
type Rule struct {
	Name   string
	Source Source
	Chain  chain.ID
	Match  func(in Input) bool
}

// Result 分类结果，Rule 为命中的规则名
type Result struct {
	Chain  chain.ID
	Source Source
	Rule   string
}

type Classifier struct {
	rules []Rule
}

// New 使用给定规则表，rules 为空时使用 DefaultRules
func New(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	sorted := make([]Rule, 0, len(rules))
	// 稳定地按 Source 分组，同组内保持声明顺序
	for _, src := range []Source{FromNetwork, FromAddress, FromDerivationPath} {
		for _, r := range rules {
			if r.Source == src {
				sorted = append(sorted, r)
			}
		}
	}
	return &Classifier{rules: sorted}
}

// Classify 返回第一条命中规则的链
func (c *Classifier) Classify(addr, network, derivationPath string) chain.ID {
	return c.Explain(Input{Address: addr, Network: network, DerivationPath: derivationPath}).Chain
}

// Explain 与 Classify 相同，额外返回命中的规则，供对账任务记录
func (c *Classifier) Explain(in Input) Result {
	in.Address = strings.TrimSpace(in.Address)
	in.Network = strings.ToLower(strings.TrimSpace(in.Network))
	in.DerivationPath = strings.TrimSpace(in.DerivationPath)

	for _, r := range c.rules {
		if r.Match(in) {
			return Result{Chain: r.Chain, Source: r.Source, Rule: r.Name}
		}
	}
	return Result{Chain: chain.Unknown, Source: -1}
}

// DefaultRules 默认规则表，新增链只需追加条目
func DefaultRules() []Rule {
	rules := []Rule{
		// 1. 网络名子串
		networkRule("erc20", chain.EVM),
		networkRule("ethereum", chain.EVM),
		networkRule("trc20", chain.Tron),
		networkRule("tron", chain.Tron),
		networkRule("bitcoin", chain.BTC),
		networkRule("xrpl", chain.XRP),
		networkRule("ripple", chain.XRP),
		networkRule("xrp", chain.XRP),
		networkRule("btc", chain.BTC),
		networkRule("eth", chain.EVM),
		networkRule("evm", chain.EVM),

		// 2. 地址格式
		{Name: "hex-0x40", Source: FromAddress, Chain: chain.EVM, Match: func(in Input) bool { return isEVMAddress(in.Address) }},
		{Name: "base58check-0x41", Source: FromAddress, Chain: chain.Tron, Match: func(in Input) bool { return isTronAddress(in.Address) }},
		{Name: "ripple-base58", Source: FromAddress, Chain: chain.XRP, Match: func(in Input) bool { return isXRPAddress(in.Address) }},
		{Name: "bech32-segwit", Source: FromAddress, Chain: chain.BTC, Match: func(in Input) bool { return isBTCSegwit(in.Address) }},
		{Name: "base58check-btc", Source: FromAddress, Chain: chain.BTC, Match: func(in Input) bool { return isBTCLegacy(in.Address) }},
	}

	// 3. 派生路径的 coin_type 段
	for _, spec := range chain.All() {
		rules = append(rules, coinTypeRule(spec.CoinType, spec.ID))
	}
	return rules
}

func networkRule(substr string, id chain.ID) Rule {
	return Rule{
		Name:   "network:" + substr,
		Source: FromNetwork,
		Chain:  id,
		Match:  func(in Input) bool { return in.Network != "" && strings.Contains(in.Network, substr) },
	}
}

func coinTypeRule(coin uint32, id chain.ID) Rule {
	return Rule{
		Name:   "coin_type",
		Source: FromDerivationPath,
		Chain:  id,
		Match: func(in Input) bool {
			if in.DerivationPath == "" {
				return false
			}
			got, ok := bip32.CoinType(in.DerivationPath)
			return ok && got == coin
		},
	}
}

func isEVMAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") || !common.IsHexAddress(s) {
		return false
	}
	body := s[2:]
	// 全小写或全大写不带校验和，混合大小写必须是正确的 EIP-55
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(s).Hex() == s
}

func isTronAddress(s string) bool {
	if !strings.HasPrefix(s, "T") || len(s) != 34 {
		return false
	}
	payload, version, err := base58.CheckDecode(s)
	return err == nil && version == address.TronAddressVersion && len(payload) == 20
}

func isXRPAddress(s string) bool {
	if len(s) < 25 || len(s) > 35 {
		return false
	}
	_, err := address.DecodeXRPAddress(s)
	return err == nil
}

func isBTCSegwit(s string) bool {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "bc1") && !strings.HasPrefix(lower, "tb1") {
		return false
	}
	return decodesAsBTC(s)
}

func isBTCLegacy(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '1', '3', 'm', 'n', '2':
		return decodesAsBTC(s)
	default:
		return false
	}
}

func decodesAsBTC(s string) bool {
	for _, params := range []*chaincfg.Params{&chaincfg.MainNetParams, &chaincfg.TestNet3Params} {
		addr, err := btcutil.DecodeAddress(s, params)
		if err == nil && addr.IsForNet(params) {
			return true
		}
	}
	return false
}
