package model

// ChatTitle 标题索引条目
// 会话 id 由主键自增分配，不复用
type ChatTitle struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Title string `gorm:"size:255" json:"title"`
}

// TableName 指定表名
func (ChatTitle) TableName() string {
	return "titles"
}
