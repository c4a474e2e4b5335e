package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/behflow/behflow/internal/logging"
	"github.com/behflow/behflow/internal/scheduler"
	"github.com/behflow/behflow/internal/storage"
)

// startCmd 代表 start 命令
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "启动 Behflow 后台服务",
	Long: `启动 Behflow 后台作业服务。
这将初始化数据库，并启动每日任务改期和审计记录清理作业。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 上下文用于优雅退出
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		defer logger.Sync()

		// 2. 初始化存储
		fmt.Println("正在初始化存储...")
		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		// 3. 初始化作业管理器
		fmt.Println("正在初始化作业管理器...")
		mgr, err := scheduler.NewManager(cfg.Scheduler, store, logger)
		if err != nil {
			return fmt.Errorf("创建作业管理器失败: %w", err)
		}

		// 4. 启动管理器
		fmt.Println("正在启动后台作业...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("启动管理器失败: %w", err)
		}

		// 5. 等待信号
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		fmt.Println("Behflow 已启动。按 Ctrl+C 停止。")

		select {
		case sig := <-sigChan:
			fmt.Printf("收到信号: %s, 正在关闭...\n", sig)
		case <-ctx.Done():
			fmt.Println("上下文已取消, 正在关闭...")
		}

		// 6. 优雅停止
		mgr.Stop()
		if err := mgr.Wait(); err != nil {
			return fmt.Errorf("管理器停止时发生错误: %w", err)
		}

		fmt.Println("关闭完成。")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
