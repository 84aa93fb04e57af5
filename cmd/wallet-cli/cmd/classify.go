package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"custody-wallet/internal/classifier"
	"custody-wallet/pkg/chain"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [address]",
	Short: "识别地址所属的链",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		network, _ := cmd.Flags().GetString("network")
		path, _ := cmd.Flags().GetString("path")

		res := classifier.New().Explain(classifier.Input{
			Address:        args[0],
			Network:        network,
			DerivationPath: path,
		})
		if res.Chain == chain.Unknown {
			fmt.Println("无法识别")
			return
		}
		fmt.Printf("链: %s (规则: %s, 依据: %s)\n", res.Chain, res.Rule, res.Source)
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().String("network", "", "网络提示，例如 bsc / tron-mainnet")
	classifyCmd.Flags().String("path", "", "派生路径提示，例如 m/44'/195'/0'/0/0")
}
