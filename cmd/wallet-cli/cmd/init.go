package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"custody-wallet/internal/verifier"
	"custody-wallet/pkg/backup"
	"custody-wallet/pkg/bip39"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "创建主密钥 (生成助记词、加密保存并确认已抄写)",
	Long: `生成新的 BIP-39 助记词并用密码加密保存到 vault。
助记词只显示一次，随后随机挖空若干位置，要求补全以确认已正确抄写。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		words, _ := cmd.Flags().GetInt("words")
		maxAttempts, _ := cmd.Flags().GetInt("attempts")
		parts, _ := cmd.Flags().GetInt("shares")
		threshold, _ := cmd.Flags().GetInt("threshold")
		if words%3 != 0 || words < 12 || words > 24 {
			return fmt.Errorf("words 必须是 12/15/18/21/24")
		}

		v, err := openVault(cmd)
		if err != nil {
			return err
		}

		// 1. 输入密码
		password, err := readPassword("输入密码: ")
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

		// 2. 生成并加密保存
		id, mnemonic, err := v.Create(cmd.Context(), password, words/3*32)
		if err != nil {
			return err
		}

		in := bufio.NewReader(os.Stdin)
		fmt.Println("---------------------------------------------------")
		fmt.Println("助记词 (请按顺序抄写在纸上并安全保管):")
		for i, w := range bip39.Words(mnemonic) {
			fmt.Printf("%2d. %s\n", i+1, w)
		}
		fmt.Println("---------------------------------------------------")
		if parts > 0 {
			shares, err := backup.Split(mnemonic, parts, threshold)
			if err != nil {
				return err
			}
			fmt.Printf("Shamir 备份份额 (任意 %d 份可恢复，请分开保管):\n", threshold)
			for i, s := range shares {
				fmt.Printf("  [%d] %s\n", i+1, s)
			}
			fmt.Println("---------------------------------------------------")
		}
		fmt.Print("抄写完成后按回车继续...")
		_, _ = in.ReadString('\n')
		// 清屏，避免助记词留在终端上
		fmt.Print("\033[2J\033[H")

		// 3. 抄写确认
		ch, err := verifier.NewChallenge(mnemonic)
		mnemonic = ""
		if err != nil {
			return err
		}
		defer ch.Complete()

		ok, err := runChallenge(ch, in, os.Stdout, maxAttempts)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Printf("\n⚠️  未能确认助记词。主密钥已保存 (ID: %s)，但请确认纸上的助记词无误后再使用。\n", id)
			return nil
		}

		fmt.Printf("\n✅ 主密钥已创建并确认！\n")
		fmt.Printf("Master Key ID: %s\n", id)
		fmt.Println("下一步: wallet-cli roots --master-key-id <ID> --save")
		return nil
	},
}

// runChallenge 交互式补全挖空位置，位置从 1 开始展示
func runChallenge(ch *verifier.Challenge, in *bufio.Reader, out io.Writer, maxAttempts int) (bool, error) {
	masked, err := ch.Masked()
	if err != nil {
		return false, err
	}
	positions := ch.Positions()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprintln(out, "请补全空缺的单词:")
		for i, w := range masked {
			if w == "" {
				w = "______"
			}
			fmt.Fprintf(out, "%2d. %s\n", i+1, w)
		}

		answers := make(map[int]string, len(positions))
		for _, p := range positions {
			fmt.Fprintf(out, "第 %d 个单词: ", p+1)
			line, err := in.ReadString('\n')
			if err != nil && line == "" {
				return false, err
			}
			answers[p] = strings.TrimSpace(line)
		}

		res, err := ch.Verify(answers)
		if err != nil {
			return false, err
		}
		if res.OK {
			return true, nil
		}
		wrong := make([]string, len(res.Wrong))
		for i, p := range res.Wrong {
			wrong[i] = fmt.Sprint(p + 1)
		}
		fmt.Fprintf(out, "以下位置不正确: %s (第 %d/%d 次)\n\n", strings.Join(wrong, ", "), attempt, maxAttempts)
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Int("words", 24, "助记词单词数 (12/15/18/21/24)")
	initCmd.Flags().Int("attempts", 5, "确认助记词的最大尝试次数")
	initCmd.Flags().Int("shares", 0, "额外输出 Shamir 备份份额的数量，0 表示不输出")
	initCmd.Flags().Int("threshold", 2, "恢复所需的最少份额数")
}
