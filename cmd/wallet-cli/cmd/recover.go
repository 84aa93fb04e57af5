package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"custody-wallet/pkg/backup"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [share...]",
	Short: "用 Shamir 份额恢复助记词并重新导入 vault",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := backup.Recover(args)
		if err != nil {
			return err
		}

		v, err := openVault(cmd)
		if err != nil {
			return err
		}
		password, err := readPassword("输入新密码: ")
		if err != nil {
			return err
		}
		confirm, err := readPassword("确认密码: ")
		if err != nil {
			return err
		}
		if password != confirm {
			return errors.New("两次输入的密码不一致")
		}

		id, err := v.Import(cmd.Context(), mnemonic, password)
		if err != nil {
			return err
		}
		fmt.Printf("✅ 已恢复，Master Key ID: %s\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recoverCmd)
}
