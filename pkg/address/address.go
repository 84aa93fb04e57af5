package address

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"

	"custody-wallet/pkg/chain"
)

// Generator 把公钥编码为某条链的地址字符串
type Generator interface {
	PubKeyToAddress(pub *btcec.PublicKey) (string, error)
}

// ForChain 按链和网络返回对应的地址生成器
func ForChain(id chain.ID, network string) (Generator, error) {
	switch id {
	case chain.EVM:
		return NewETHGenerator(), nil
	case chain.Tron:
		return NewTronGenerator(), nil
	case chain.BTC:
		params := &chaincfg.MainNetParams
		if chain.NormalizeNetwork(id, network) != "mainnet" {
			params = &chaincfg.TestNet3Params
		}
		return NewBTCGenerator(params), nil
	case chain.XRP:
		return NewXRPGenerator(), nil
	default:
		return nil, fmt.Errorf("不支持的链: %s", id)
	}
}
