package chat

// EventType 流式事件类型
type EventType string

const (
	// EventMeta 新会话的元信息帧（携带 id）
	EventMeta EventType = "meta"
	// EventThinkingStart 思考开始
	EventThinkingStart EventType = "thinking_start"
	// EventThinking 思考增量
	EventThinking EventType = "thinking"
	// EventAnswerStart 回答开始（仅在出现过思考内容后发出）
	EventAnswerStart EventType = "answer_start"
	// EventAnswer 回答增量
	EventAnswer EventType = "answer"
	// EventTitle 标题生成完成
	EventTitle EventType = "title"
	// EventError 流中断错误
	EventError EventType = "error"
	// EventEnd 结束帧，流在此之后关闭
	EventEnd EventType = "end"
)

// StreamEvent 流式事件
// 帧按产生顺序交付，以 EventEnd 收尾。
// Exchange 是本次交互的关联 id，出现在元信息帧和错误帧上，
// 与服务端日志中的同名标识对应
type StreamEvent struct {
	Type     EventType `json:"type"`
	Data     string    `json:"data,omitempty"`
	ID       int64     `json:"id,omitempty"`
	Exchange string    `json:"exchange,omitempty"`
}
