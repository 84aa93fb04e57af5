package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"custody-wallet/internal/hd"
	"custody-wallet/internal/model"
	"custody-wallet/internal/repository"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/config"
	"custody-wallet/pkg/database"
)

var rootsCmd = &cobra.Command{
	Use:   "roots",
	Short: "解锁主密钥并导出各链的 WalletRoot (账户级 xpub)",
	Long: `解锁主密钥，为每条支持的链派生账户级扩展公钥。
默认只打印；加上 --save 时写入 wallet_roots 表，已存在的组合保持不变。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		masterKeyID, _ := cmd.Flags().GetString("master-key-id")
		network, _ := cmd.Flags().GetString("network")
		save, _ := cmd.Flags().GetBool("save")
		if masterKeyID == "" {
			masterKeyID = config.Global.Wallet.MasterKeyID
		}
		if masterKeyID == "" {
			return fmt.Errorf("需要 --master-key-id")
		}

		v, err := openVault(cmd)
		if err != nil {
			return err
		}
		password, err := readPassword("输入密码: ")
		if err != nil {
			return err
		}
		seed, err := v.Unlock(cmd.Context(), masterKeyID, password)
		if err != nil {
			return err
		}
		defer seed.Wipe()

		roots, err := deriveRoots(hd.NewEngine(), seed.Bytes(), network, masterKeyID)
		if err != nil {
			return err
		}

		var store *repository.AddressStore
		if save {
			db, err := database.ConnectPostgres(config.Global.DB.DSN(), config.Global.App.Env)
			if err != nil {
				return err
			}
			store = repository.NewAddressStore(db)
		}

		for i := range roots {
			r := &roots[i]
			fmt.Printf("%-6s %-10s %-6s %s\n", r.Chain, r.Network, r.Asset, r.Xpub)
			fmt.Printf("       路径模板: %s  类型: %s\n", r.DerivationTemplate, r.AddressType)
			if store == nil {
				continue
			}
			created, err := store.SaveRoot(cmd.Context(), r)
			if err != nil {
				return fmt.Errorf("保存 %s/%s 失败: %w", r.Chain, r.Asset, err)
			}
			if !created {
				fmt.Println("       已存在，跳过")
			}
		}
		return nil
	},
}

// deriveRoots 为每条链的基础资产派生一个 WalletRoot，代币共用基础资产的 root
func deriveRoots(engine *hd.Engine, seed []byte, network, masterKeyID string) ([]model.WalletRoot, error) {
	specs := chain.All()
	out := make([]model.WalletRoot, 0, len(specs))
	for _, spec := range specs {
		key := chain.NewKey(string(spec.ID), network, spec.BaseAsset)
		root, err := engine.DeriveRoot(seed, key)
		if err != nil {
			return nil, err
		}
		out = append(out, model.WalletRoot{
			Chain:              string(key.Chain),
			Network:            key.Network,
			Asset:              key.Asset,
			Xpub:               root.ExtendedPublicKey,
			DerivationTemplate: root.DerivationTemplate,
			AddressType:        root.AddressType,
			MasterKeyID:        masterKeyID,
			Active:             true,
		})
	}
	return out, nil
}

func init() {
	rootCmd.AddCommand(rootsCmd)
	rootsCmd.Flags().String("master-key-id", "", "主密钥 ID (默认取 wallet.master_key_id)")
	rootsCmd.Flags().String("network", "mainnet", "网络")
	rootsCmd.Flags().Bool("save", false, "写入数据库")
}
