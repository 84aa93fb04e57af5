// Package backup 把助记词的熵切分为 Shamir 份额，用于多人分开保管纸质备份。
package backup

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/shamir"

	"custody-wallet/pkg/bip39"
)

var ErrInvalidThreshold = errors.New("门限必须满足 2 <= threshold <= parts <= 255")

// Split 将助记词切分为 parts 份，任意 threshold 份可以恢复
// 切分的是熵而不是单词，每份都是 hex 字符串，首字节之外与熵等长
func Split(mnemonic string, parts, threshold int) ([]string, error) {
	if threshold < 2 || threshold > parts || parts > 255 {
		return nil, ErrInvalidThreshold
	}
	entropy, err := bip39.NewMnemonicService().EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	defer wipe(entropy)

	raw, err := shamir.Split(entropy, parts, threshold)
	if err != nil {
		return nil, fmt.Errorf("切分失败: %w", err)
	}

	shares := make([]string, len(raw))
	for i, share := range raw {
		shares[i] = hex.EncodeToString(share)
		wipe(share)
	}
	return shares, nil
}

// Recover 从至少 threshold 份中恢复助记词
// 份额不足时 shamir 不会报错而是得到错误的熵，此时 BIP-39 checksum 大概率不通过
func Recover(shares []string) (string, error) {
	raw := make([][]byte, 0, len(shares))
	for _, s := range shares {
		b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
		if err != nil {
			return "", fmt.Errorf("份额不是合法的 hex: %w", err)
		}
		raw = append(raw, b)
	}

	entropy, err := shamir.Combine(raw)
	if err != nil {
		return "", fmt.Errorf("合并份额失败: %w", err)
	}
	defer wipe(entropy)

	mnemonic, err := bip39.NewMnemonicService().MnemonicFromEntropy(entropy)
	if err != nil {
		return "", err
	}
	if !bip39.NewMnemonicService().ValidateMnemonic(mnemonic) {
		return "", errors.New("恢复出的助记词无效")
	}
	return mnemonic, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
