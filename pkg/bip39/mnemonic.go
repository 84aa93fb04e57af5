package bip39

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicService 提供助记词相关的功能
type MnemonicService struct{}

// NewMnemonicService 创建一个新的助记词服务实例
func NewMnemonicService() *MnemonicService {
	return &MnemonicService{}
}

// GenerateMnemonic 生成一个新的随机助记词 (BIP-39)。
// bitSize: 熵的位数，128 (12 个单词) 到 256 (24 个单词)，必须是 32 的倍数。
func (s *MnemonicService) GenerateMnemonic(bitSize int) (string, error) {
	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", fmt.Errorf("生成熵失败: %w", err)
	}
	return s.MnemonicFromEntropy(entropy)
}

// MnemonicFromEntropy 由外部提供的熵生成助记词 (例如用户额外输入的随机数据混合后的熵)
func (s *MnemonicService) MnemonicFromEntropy(entropy []byte) (string, error) {
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("生成助记词失败: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic 验证助记词是否有效 (单词表 + 校验和)。
func (s *MnemonicService) ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(Normalize(mnemonic))
}

// MnemonicToSeed 将助记词转换为种子 (BIP-39 Seed)。
// password: 可选的密码 (Passphrase)，即 "第25个单词"，不需要时传空字符串。
func (s *MnemonicService) MnemonicToSeed(mnemonic string, password string) []byte {
	return bip39.NewSeed(Normalize(mnemonic), password)
}

// Words 把助记词拆分为单词列表
func Words(mnemonic string) []string {
	return strings.Fields(mnemonic)
}

// Normalize 合并多余空白并转为小写
func Normalize(mnemonic string) string {
	return strings.ToLower(strings.Join(Words(mnemonic), " "))
}

// EntropyFromMnemonic 还原助记词对应的熵 (会校验 checksum)
func (s *MnemonicService) EntropyFromMnemonic(mnemonic string) ([]byte, error) {
	entropy, err := bip39.EntropyFromMnemonic(Normalize(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("解析助记词失败: %w", err)
	}
	return entropy, nil
}
