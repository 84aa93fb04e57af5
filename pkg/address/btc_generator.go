package address

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// BTCGenerator 比特币 SegWit (P2WPKH, BIP-84) 地址生成器
type BTCGenerator struct {
	network *chaincfg.Params
}

func NewBTCGenerator(network *chaincfg.Params) *BTCGenerator {
	return &BTCGenerator{network: network}
}

// PubKeyToAddress 压缩公钥 -> HASH160 -> bech32 (bc1q.../tb1q...)
func (g *BTCGenerator) PubKeyToAddress(pub *btcec.PublicKey) (string, error) {
	hash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(hash, g.network)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
