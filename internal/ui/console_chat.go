package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
)

type ConsoleChatUI struct {
	In  io.Reader
	Out io.Writer
}

func (u *ConsoleChatUI) Run(ctx context.Context, backend ChatBackend, opts ChatOptions) error {
	in := u.In
	if in == nil {
		return fmt.Errorf("console ui: In is nil")
	}
	out := u.Out
	if out == nil {
		return fmt.Errorf("console ui: Out is nil")
	}
	if opts.ExternalUserID == "" {
		return fmt.Errorf("console ui: external user id is required")
	}

	reader := bufio.NewReader(in)

	// 会话内的历史消息由 UI 持有，每轮原样传给后端
	var history []*schema.Message

	fmt.Fprintln(out, "进入 Behflow 对话模式。输入 exit/quit 退出。")
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "已退出。")
			return nil
		default:
		}

		fmt.Fprint(out, "你: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Fprintln(out, "\n已退出。")
				return nil
			}
			return fmt.Errorf("读取输入失败: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			fmt.Fprintln(out, "已退出。")
			return nil
		}

		reply, err := backend.InvokeWithHistory(ctx, line, opts.ExternalUserID, history)
		if err != nil {
			// 后端保证 reply 总是可展示的文本，出错时展示并继续对话
			fmt.Fprintf(out, "助手: %s\n\n", reply)
			continue
		}

		if strings.TrimSpace(reply) == "" {
			fmt.Fprintln(out, "助手: (无文本输出)")
		} else {
			fmt.Fprintf(out, "助手: %s\n", reply)
		}
		fmt.Fprintln(out)

		history = append(history,
			schema.UserMessage(line),
			schema.AssistantMessage(reply, nil))

		if opts.OnExchange != nil {
			opts.OnExchange(line, reply)
		}
	}
}
