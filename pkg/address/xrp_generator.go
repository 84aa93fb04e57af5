package address

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	bitcoinAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	rippleAlphabet  = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"
)

var (
	toRipple  = strings.NewReplacer(pairs(bitcoinAlphabet, rippleAlphabet)...)
	toBitcoin = strings.NewReplacer(pairs(rippleAlphabet, bitcoinAlphabet)...)
)

func pairs(from, to string) []string {
	out := make([]string, 0, len(from)*2)
	for i := 0; i < len(from); i++ {
		out = append(out, from[i:i+1], to[i:i+1])
	}
	return out
}

// XRPGenerator XRP Ledger 账户地址生成器
// Base58Check 的校验和算法与比特币一致，只是字母表不同，所以先按比特币编码再逐字符映射
type XRPGenerator struct{}

func NewXRPGenerator() *XRPGenerator {
	return &XRPGenerator{}
}

// PubKeyToAddress 压缩公钥 -> HASH160 (AccountID) -> 版本 0x00 Base58Check (ripple 字母表)
func (g *XRPGenerator) PubKeyToAddress(pub *btcec.PublicKey) (string, error) {
	return EncodeXRPAccountID(btcutil.Hash160(pub.SerializeCompressed())), nil
}

// EncodeXRPAccountID 把 20 字节 AccountID 编码成 r 开头的地址
func EncodeXRPAccountID(accountID []byte) string {
	return toRipple.Replace(base58.CheckEncode(accountID, 0x00))
}

// DecodeXRPAddress 校验 XRP 地址并返回 20 字节 AccountID
func DecodeXRPAddress(addr string) ([]byte, error) {
	if !strings.HasPrefix(addr, "r") {
		return nil, errors.New("XRP 地址必须以 r 开头")
	}
	for _, c := range addr {
		if !strings.ContainsRune(rippleAlphabet, c) {
			return nil, errors.New("XRP 地址包含非法字符")
		}
	}
	payload, version, err := base58.CheckDecode(toBitcoin.Replace(addr))
	if err != nil {
		return nil, err
	}
	if version != 0x00 || len(payload) != 20 {
		return nil, errors.New("XRP 地址版本或长度不正确")
	}
	return payload, nil
}
