package chat

import (
	"context"
	"log"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/yuunagi/deskmate/internal/model"
)

const titleSystemPrompt = "你是一个专业的标题生成器。为用户输入概括一个简短的标题，直接输出标题本身，不要输出任何其他内容。"

// titleInput 提取用于生成标题的文本
// 输入过长时只保留首尾各 20 个字符
func titleInput(parts []model.ContentPart) string {
	text := ""
	for _, p := range parts {
		if p.Type == model.PartTypeText {
			text = p.Text
		}
	}

	runes := []rune(text)
	if len(runes) < 40 {
		return text
	}
	return string(runes[:20]) + "\n...\n" + string(runes[len(runes)-20:])
}

// cleanTitle 清理模型输出中的围栏和引号
func cleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = strings.TrimPrefix(title, "```标题")
	title = strings.TrimPrefix(title, "```")
	title = strings.TrimSuffix(title, "```")
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		// 只取第一行非空内容
		for _, line := range strings.Split(title, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				title = s
				break
			}
		}
	}
	title = strings.Trim(title, "\"“”「」 \t")
	return strings.TrimSpace(title)
}

// generateTitle 异步生成会话标题并更新标题索引
// 尽力而为：失败只记日志，不影响主流式路径；
// 成功时把标题帧写入同一条事件流，完成后关闭 done
func (m *Manager) generateTitle(id int64, parts []model.ContentPart, out chan<- StreamEvent, done chan<- struct{}) {
	defer close(done)

	input := titleInput(parts)
	if input == "" {
		return
	}

	m.cfgMu.RLock()
	assist := m.assistModel
	m.cfgMu.RUnlock()

	resp, err := m.streamer.Generate(context.Background(), assist, []*schema.Message{
		schema.SystemMessage(titleSystemPrompt),
		schema.UserMessage(input),
	})
	if err != nil {
		log.Printf("failed to generate title for chat %d: %v", id, err)
		return
	}

	title := cleanTitle(resp.Content)
	if title == "" {
		return
	}
	if err := m.store.SetTitle(id, title); err != nil {
		log.Printf("failed to store title for chat %d: %v", id, err)
		return
	}
	out <- StreamEvent{Type: EventTitle, Data: title}
}
