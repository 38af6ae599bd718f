package model

import (
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// 内容分段类型
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageURL 图片引用（data URI 或远程地址）
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart 用户消息的内容分段
// Type 为 text 时使用 Text 字段，为 image_url 时使用 ImageURL 字段
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Validate 校验内容分段的形状（在 HTTP 边界调用）
func (p *ContentPart) Validate() error {
	switch p.Type {
	case PartTypeText:
		return nil
	case PartTypeImageURL:
		if p.ImageURL == nil || p.ImageURL.URL == "" {
			return fmt.Errorf("image_url part requires image_url.url")
		}
		return nil
	default:
		return fmt.Errorf("unknown content part type: %q", p.Type)
	}
}

// TextPart 创建文本分段
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart 创建图片分段
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageURL{URL: url}}
}

// Message 会话中的一条消息
// 用户消息的内容是分段数组，助手消息的内容是纯文本，
// 序列化格式与 OpenAI 消息格式一致
type Message struct {
	Role  string
	Parts []ContentPart // Role 为 user 时有效
	Text  string        // Role 为 assistant 时有效
}

// UserMessage 创建用户消息
func UserMessage(parts ...ContentPart) Message {
	return Message{Role: RoleUser, Parts: parts}
}

// AssistantMessage 创建助手消息
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Text: text}
}

// HasImage 消息中是否包含图片分段
func (m *Message) HasImage() bool {
	for _, p := range m.Parts {
		if p.Type == PartTypeImageURL {
			return true
		}
	}
	return false
}

// wireMessage 落盘与 HTTP 传输使用的形状
type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON 实现 json.Marshaler
func (m Message) MarshalJSON() ([]byte, error) {
	var content any
	if m.Role == RoleUser {
		parts := m.Parts
		if parts == nil {
			parts = []ContentPart{}
		}
		content = parts
	} else {
		content = m.Text
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

// UnmarshalJSON 实现 json.Unmarshaler
func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Parts = nil
	m.Text = ""
	if len(w.Content) == 0 {
		return nil
	}
	// 用户消息内容是数组，其余角色是字符串
	if w.Content[0] == '[' {
		return json.Unmarshal(w.Content, &m.Parts)
	}
	return json.Unmarshal(w.Content, &m.Text)
}

// ToSchema 转换为 eino 消息
func (m *Message) ToSchema() *schema.Message {
	if m.Role == RoleUser {
		parts := make([]schema.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case PartTypeImageURL:
				parts = append(parts, schema.ChatMessagePart{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: p.ImageURL.URL},
				})
			default:
				parts = append(parts, schema.ChatMessagePart{
					Type: schema.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		return &schema.Message{Role: schema.User, MultiContent: parts}
	}
	return &schema.Message{Role: schema.Assistant, Content: m.Text}
}

// ToSchemaMessages 批量转换为 eino 消息
func ToSchemaMessages(messages []Message) []*schema.Message {
	result := make([]*schema.Message, 0, len(messages))
	for i := range messages {
		result = append(result, messages[i].ToSchema())
	}
	return result
}

// ContainsImage 消息序列中是否出现过图片
func ContainsImage(messages []Message) bool {
	for i := range messages {
		if messages[i].HasImage() {
			return true
		}
	}
	return false
}
