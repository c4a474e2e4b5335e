package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/behflow/behflow/internal/agent"
	"github.com/behflow/behflow/internal/logging"
	"github.com/behflow/behflow/internal/storage"
	"github.com/behflow/behflow/internal/tui"
	"github.com/behflow/behflow/internal/ui"
)

var (
	chatUser        string
	chatUITyp       string
	chatSaveSession bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "进入交互式对话模式",
	Long: `进入一个控制台 REPL，用自然语言管理自己的任务。
在必要时，助手会调用内置工具来查询或修改任务。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		logger, err := logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		defer logger.Sync()

		store, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("打开存储失败: %w", err)
		}
		defer store.Close()

		ag, err := agent.New(ctx, cfg.Agent, store, logger)
		if err != nil {
			return fmt.Errorf("初始化助手失败: %w", err)
		}

		opts := ui.ChatOptions{ExternalUserID: chatUser}

		// 按需把对话落库到一个新的会话
		if chatSaveSession {
			user, err := store.GetOrCreateUserByExternalID(ctx, chatUser)
			if err != nil {
				return fmt.Errorf("解析用户失败: %w", err)
			}
			session, err := store.CreateChatSession(ctx, user.UserID, "")
			if err != nil {
				return fmt.Errorf("创建会话失败: %w", err)
			}
			opts.OnExchange = func(userMessage, assistantReply string) {
				if err := store.AppendChatMessage(ctx, session.SessionID, "user", userMessage); err != nil {
					logger.Warn("保存用户消息失败", zap.Error(err))
				}
				if err := store.AppendChatMessage(ctx, session.SessionID, "assistant", assistantReply); err != nil {
					logger.Warn("保存助手消息失败", zap.Error(err))
				}
			}
		}

		var uiImpl ui.ChatUI
		switch chatUITyp {
		case "console", "":
			uiImpl = &ui.ConsoleChatUI{In: os.Stdin, Out: os.Stdout}
		case "tui":
			uiImpl = &tui.ChatUI{}
		default:
			return fmt.Errorf("未知 ui 类型: %s (支持: console, tui)", chatUITyp)
		}

		return uiImpl.Run(ctx, ag, opts)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatUser, "user", "local", "外部用户标识")
	chatCmd.Flags().StringVar(&chatUITyp, "ui", "console", "交互界面类型: console/tui")
	chatCmd.Flags().BoolVar(&chatSaveSession, "save-session", false, "把本次对话保存到数据库")
}
