package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/spf13/cobra"

	"custody-wallet/internal/notify"
	"custody-wallet/internal/service/mq"
	"custody-wallet/internal/tracker"
	"custody-wallet/pkg/chain"
	"custody-wallet/pkg/config"
	"custody-wallet/pkg/database"
)

var watchCmd = &cobra.Command{
	Use:   "watch [chain] [asset]",
	Short: "分配充值地址并跟踪到账进度",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetUint64("user")
		network, _ := cmd.Flags().GetString("network")
		publish, _ := cmd.Flags().GetBool("publish")

		key := chain.NewKey(args[0], network, args[1])
		if err := key.Validate(); err != nil {
			return err
		}

		cfg := config.Global.Tracker
		streamURL, err := withUser(cfg.WSURL, userID)
		if err != nil {
			return err
		}

		var notifier notify.Notifier = notify.LogNotifier{}
		if publish {
			rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
			if err != nil {
				return err
			}
			defer rdb.Close()
			notifier = notify.Multi{notifier, notify.NewMQNotifier(mq.NewRedisProducer(rdb))}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t := tracker.New(userID, tracker.NewAPIClient(cfg.APIURL, userID, 10*time.Second), notifier, nil,
			tracker.StreamConfig{URL: streamURL, MinBackoff: cfg.MinBackoff, MaxBackoff: cfg.MaxBackoff},
			clock.NewDefaultClock())

		sess := t.Select(key)
		go func() {
			addr, err := sess.Address.Wait(ctx)
			if err != nil {
				fmt.Printf("❌ 分配地址失败: %v\n", err)
				return
			}
			fmt.Printf("充值地址: %s\n", addr.Address)
			if addr.DestinationTag != nil {
				fmt.Printf("Tag: %d\n", *addr.DestinationTag)
			}
			fmt.Println("等待到账中，Ctrl+C 退出...")
		}()

		if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		fmt.Printf("最终状态: %s\n", sess.State())
		return nil
	},
}

// withUser 在推送地址上附加 user_id 参数
func withUser(raw string, userID uint64) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("ws_url 不合法: %w", err)
	}
	q := u.Query()
	q.Set("user_id", strconv.FormatUint(userID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Uint64("user", 1, "用户 ID")
	watchCmd.Flags().String("network", "mainnet", "网络")
	watchCmd.Flags().Bool("publish", false, "同时把通知发布到 redis stream")
}
