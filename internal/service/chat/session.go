// Package chat 提供流式会话、会话管理器和闲置看门狗
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/yuunagi/deskmate/internal/model"
)

// Streamer 对指定模型发起补全调用
// 由 llm.Pool 实现，测试中用 mock 替换
type Streamer interface {
	Stream(ctx context.Context, model string, messages []*schema.Message) (*schema.StreamReader[*schema.Message], error)
	Generate(ctx context.Context, model string, messages []*schema.Message) (*schema.Message, error)
}

// Session 一个会话：消息日志加一次未完成的交互
// 轮次生命周期：BeginTurn → AppendPart* → FinalizeTurn → Run，
// 同一时刻最多一轮在途
type Session struct {
	id           int64
	streamer     Streamer
	systemPrompt string

	mu            sync.Mutex
	model         string
	visionModel   string
	containsImage bool
	pending       bool
	messages      []model.Message

	// 整轮互斥，由 Manager 的驱动协程持有，保证同一会话的并发
	// generate 串行完成
	exchangeMu sync.Mutex

	// 在途请求计数，由 Manager 的锁保护，看门狗据此跳过驱逐
	inflight int
}

// NewSession 创建会话
// history 中出现过图片时立刻切换到视觉模型，且此后保持
func NewSession(id int64, mainModel, visionModel string, history []model.Message, streamer Streamer, systemPrompt string) *Session {
	s := &Session{
		id:           id,
		streamer:     streamer,
		systemPrompt: systemPrompt,
		model:        mainModel,
		visionModel:  visionModel,
		messages:     history,
	}
	if model.ContainsImage(history) {
		s.containsImage = true
		s.model = visionModel
	}
	return s
}

// ID 会话 id
func (s *Session) ID() int64 {
	return s.id
}

// Model 当前生效的模型
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Messages 消息日志快照
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// BeginTurn 开启新轮次，追加一条空的用户消息
func (s *Session) BeginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending {
		return ErrTurnInProgress
	}
	s.pending = true
	s.messages = append(s.messages, model.UserMessage())
	return nil
}

// AppendPart 向当前轮次追加一个内容分段
// 首次出现图片时切换到视觉模型，切换后不再回退
func (s *Session) AppendPart(part model.ContentPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return ErrNoPendingTurn
	}
	last := &s.messages[len(s.messages)-1]
	last.Parts = append(last.Parts, part)

	if !s.containsImage && part.Type == model.PartTypeImageURL {
		s.containsImage = true
		s.model = s.visionModel
	}
	return nil
}

// FinalizeTurn 整理当前轮次：图片分段保序在前，
// 所有文本分段按追加顺序合并为末尾单个文本块
func (s *Session) FinalizeTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return ErrNoPendingTurn
	}
	last := &s.messages[len(s.messages)-1]

	var texts []string
	images := make([]model.ContentPart, 0, len(last.Parts))
	for _, p := range last.Parts {
		if p.Type == model.PartTypeText {
			texts = append(texts, p.Text)
		} else {
			images = append(images, p)
		}
	}
	last.Parts = append(images, model.TextPart(strings.Join(texts, "\n")))
	return nil
}

// Run 发起流式补全并把事件写入 out
// 流结束后把完整回答作为助手消息追加到日志（只追加一次）；
// 传输失败时保留已累积的部分回答并返回错误
func (s *Session) Run(ctx context.Context, out chan<- StreamEvent) error {
	s.mu.Lock()
	if !s.pending {
		s.mu.Unlock()
		return ErrNoPendingTurn
	}
	modelName := s.model
	msgs := make([]*schema.Message, 0, len(s.messages)+1)
	if s.systemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(s.systemPrompt))
	}
	msgs = append(msgs, model.ToSchemaMessages(s.messages)...)
	s.mu.Unlock()

	var full strings.Builder
	runErr := s.stream(ctx, modelName, msgs, &full, out)

	// 无论流是否中断，已累积的内容都落入日志，轮次就此结束
	s.mu.Lock()
	s.messages = append(s.messages, model.AssistantMessage(full.String()))
	s.pending = false
	s.mu.Unlock()

	return runErr
}

func (s *Session) stream(ctx context.Context, modelName string, msgs []*schema.Message, full *strings.Builder, out chan<- StreamEvent) error {
	sr, err := s.streamer.Stream(ctx, modelName, msgs)
	if err != nil {
		return fmt.Errorf("stream transport: %w", err)
	}
	defer sr.Close()

	thinking := false
	answering := false
	for {
		chunk, err := sr.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stream transport: %w", err)
		}

		if chunk.ReasoningContent != "" {
			if !thinking {
				thinking = true
				out <- StreamEvent{Type: EventThinkingStart}
			}
			out <- StreamEvent{Type: EventThinking, Data: chunk.ReasoningContent}
		} else if chunk.Content != "" {
			if thinking && !answering {
				answering = true
				out <- StreamEvent{Type: EventAnswerStart}
			}
			full.WriteString(chunk.Content)
			out <- StreamEvent{Type: EventAnswer, Data: chunk.Content}
		}
	}
}
