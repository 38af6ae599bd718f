// Package store 提供会话历史的分片落盘与标题索引
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/yuunagi/deskmate/internal/database"
	"github.com/yuunagi/deskmate/internal/model"
)

// 每个分片目录存放的会话数
const shardSize = 1000

// 新会话的占位标题，标题生成完成后异步覆写
const placeholderTitle = "新对话"

// ErrNotFound 会话从未落盘（可能仍驻留在内存中，调用方应先查活跃集合）
var ErrNotFound = errors.New("chat history not found")

// HistoryStore 会话历史存储
// 消息日志按 id 分片落盘，标题索引存在嵌入式数据库里
type HistoryStore struct {
	db  *database.DB
	dir string
}

// New 创建历史存储
func New(db *database.DB, dir string) *HistoryStore {
	return &HistoryStore{db: db, dir: dir}
}

// shardPath 会话的落盘路径，由 id 整除/取模直接定位，不需要扫目录
func (s *HistoryStore) shardPath(id int64) string {
	return filepath.Join(s.dir,
		strconv.FormatInt(id/shardSize, 10),
		strconv.FormatInt(id%shardSize, 10))
}

// AllocateID 插入占位标题行并返回新会话 id
// id 由标题表自增分配，不复用
func (s *HistoryStore) AllocateID() (int64, error) {
	row := model.ChatTitle{Title: placeholderTitle}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, fmt.Errorf("failed to allocate chat id: %w", err)
	}
	return row.ID, nil
}

// Load 读取已落盘的消息日志
func (s *HistoryStore) Load(id int64) ([]model.Message, error) {
	data, err := os.ReadFile(s.shardPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read chat %d: %w", id, err)
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode chat %d: %w", id, err)
	}
	return messages, nil
}

// Save 全量写入消息日志，覆盖旧内容
func (s *HistoryStore) Save(id int64, messages []model.Message) error {
	path := s.shardPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create shard dir for chat %d: %w", id, err)
	}

	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode chat %d: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write chat %d: %w", id, err)
	}
	return nil
}

// SetTitle 更新标题
func (s *HistoryStore) SetTitle(id int64, title string) error {
	err := s.db.Model(&model.ChatTitle{}).Where("id = ?", id).
		Update("title", title).Error
	if err != nil {
		return fmt.Errorf("failed to set title for chat %d: %w", id, err)
	}
	return nil
}

// Delete 删除标题行和落盘文件
func (s *HistoryStore) Delete(id int64) error {
	if err := s.db.Delete(&model.ChatTitle{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete title for chat %d: %w", id, err)
	}
	if err := os.Remove(s.shardPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete chat %d: %w", id, err)
	}
	return nil
}

// ListTitles 按 id 分页查询标题
// below 返回严格小于 below 的 id，降序；above 返回严格大于 above 的 id，升序；
// 都不给时返回最新的 limit 条，降序
func (s *HistoryStore) ListTitles(below, above *int64, limit int) ([]model.ChatTitle, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := s.db.Model(&model.ChatTitle{}).Limit(limit)
	switch {
	case below != nil:
		query = query.Where("id < ?", *below).Order("id DESC")
	case above != nil:
		query = query.Where("id > ?", *above).Order("id ASC")
	default:
		query = query.Order("id DESC")
	}

	titles := make([]model.ChatTitle, 0, limit)
	if err := query.Find(&titles).Error; err != nil {
		return nil, fmt.Errorf("failed to list titles: %w", err)
	}
	return titles, nil
}
