package address

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ETHGenerator 以太坊 (EVM) 地址生成器
type ETHGenerator struct{}

func NewETHGenerator() *ETHGenerator {
	return &ETHGenerator{}
}

// PubKeyToAddress 非压缩公钥去掉 0x04 前缀 -> Keccak-256 -> 取后 20 字节 -> EIP-55
func (g *ETHGenerator) PubKeyToAddress(pub *btcec.PublicKey) (string, error) {
	return common.BytesToAddress(accountID(pub)).Hex(), nil
}

// accountID 返回 EVM 风格的 20 字节账户标识，TRON 也使用同一算法
func accountID(pub *btcec.PublicKey) []byte {
	hash := crypto.Keccak256(pub.SerializeUncompressed()[1:])
	return hash[12:]
}
