package cmd

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"custody-wallet/pkg/config"
	"custody-wallet/pkg/logger"
	"custody-wallet/pkg/vault"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "wallet-cli",
	Short: "托管钱包运维工具",
	Long: `托管钱包的运维命令行工具。
创建并确认主密钥、导出各链的 WalletRoot、识别地址所属链、跟踪某个组合的充值进度。`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.Init()
		logger.Init(config.Global.App.Env)
	},
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// openVault 按配置打开主密钥存储
func openVault(cmd *cobra.Command) (*vault.Vault, error) {
	w := config.Global.Wallet
	store, err := vault.OpenStore(cmd.Context(), w.VaultBackend, w.KeystorePath, w.S3())
	if err != nil {
		return nil, err
	}
	return vault.New(store), nil
}

// readPassword 优先使用 WALLET_PASSWORD，否则从终端读取 (不回显)
func readPassword(prompt string) (string, error) {
	if pw := config.Global.Wallet.Password; pw != "" {
		return pw, nil
	}
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("读取密码失败: %w", err)
	}
	return string(b), nil
}
