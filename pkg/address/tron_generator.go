package address

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// TronAddressVersion TRON 主网地址前缀字节，编码后以 'T' 开头
const TronAddressVersion = 0x41

// TronGenerator TRON 地址生成器
type TronGenerator struct{}

func NewTronGenerator() *TronGenerator {
	return &TronGenerator{}
}

// PubKeyToAddress 与 EVM 相同的 20 字节账户标识，加 0x41 前缀后做 Base58Check
func (g *TronGenerator) PubKeyToAddress(pub *btcec.PublicKey) (string, error) {
	return base58.CheckEncode(accountID(pub), TronAddressVersion), nil
}
