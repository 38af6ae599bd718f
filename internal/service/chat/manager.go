package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yuunagi/deskmate/internal/cache"
	"github.com/yuunagi/deskmate/internal/model"
	"github.com/yuunagi/deskmate/internal/store"
)

// ManagerConfig 管理器配置
type ManagerConfig struct {
	MainModel     string
	VisionModel   string
	AssistModel   string
	SystemPrompt  string
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	CacheSize     int
}

// Manager 会话管理器
// 独占持有活跃会话集合，按 id 路由请求；每个活跃会话配一个
// 闲置看门狗，超时后落盘并驱逐。历史缓存只是加速落盘读取的
// 辅助结构，永远不是事实来源
type Manager struct {
	store    *store.HistoryStore
	streamer Streamer
	history  *cache.Cache[int64, []model.Message]

	systemPrompt  string
	idleTimeout   time.Duration
	checkInterval time.Duration

	mu        sync.Mutex
	active    map[int64]*Session
	watchdogs map[int64]*watchdog

	cfgMu       sync.RWMutex
	mainModel   string
	visionModel string
	assistModel string
}

// watchdog 单个会话的闲置看门狗
type watchdog struct {
	id       int64
	lastSeen time.Time // 由 Manager 锁保护
	stop     chan struct{}
}

// NewManager 创建会话管理器
func NewManager(hs *store.HistoryStore, streamer Streamer, cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 15 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 50
	}
	return &Manager{
		store:         hs,
		streamer:      streamer,
		history:       cache.New[int64, []model.Message](cfg.CacheSize),
		systemPrompt:  cfg.SystemPrompt,
		idleTimeout:   cfg.IdleTimeout,
		checkInterval: cfg.CheckInterval,
		active:        make(map[int64]*Session),
		watchdogs:     make(map[int64]*watchdog),
		mainModel:     cfg.MainModel,
		visionModel:   cfg.VisionModel,
		assistModel:   cfg.AssistModel,
	}
}

// Generate 处理一次补全请求
// id 为 nil 时新建会话（分配 id、插入占位标题、并发生成标题）；
// 否则复用活跃会话或从存储恢复。返回的事件流以 EventEnd 收尾，
// 调用方必须读完
func (m *Manager) Generate(id *int64, parts []model.ContentPart) (int64, <-chan StreamEvent, error) {
	m.cfgMu.RLock()
	mainModel, visionModel := m.mainModel, m.visionModel
	m.cfgMu.RUnlock()

	m.mu.Lock()
	var sess *Session
	var sid int64
	isNew := id == nil
	if isNew {
		allocated, err := m.store.AllocateID()
		if err != nil {
			m.mu.Unlock()
			return 0, nil, err
		}
		sid = allocated
		sess = NewSession(sid, mainModel, visionModel, nil, m.streamer, m.systemPrompt)
		m.active[sid] = sess
	} else {
		sid = *id
		var ok bool
		sess, ok = m.active[sid]
		if !ok {
			messages, err := m.loadLocked(sid)
			if err != nil {
				m.mu.Unlock()
				return 0, nil, err
			}
			sess = NewSession(sid, mainModel, visionModel, messages, m.streamer, m.systemPrompt)
			m.active[sid] = sess
		}
	}
	sess.inflight++
	m.ensureWatchdogLocked(sid)
	m.mu.Unlock()

	exchange := uuid.NewString()[:8]
	out := make(chan StreamEvent, 16)
	var titleDone chan struct{}
	if isNew {
		out <- StreamEvent{Type: EventMeta, ID: sid, Exchange: exchange}
		titleDone = make(chan struct{})
		go m.generateTitle(sid, parts, out, titleDone)
	}
	go m.drive(sess, parts, out, titleDone, exchange)

	return sid, out, nil
}

// loadLocked 从缓存或存储读取消息日志，调用时必须持有 m.mu
func (m *Manager) loadLocked(id int64) ([]model.Message, error) {
	if messages, ok := m.history.Get(id); ok {
		return messages, nil
	}
	messages, err := m.store.Load(id)
	if err != nil {
		return nil, err
	}
	m.history.Put(id, messages)
	return messages, nil
}

// drive 驱动一轮交互：持有整轮互斥，转发流事件，
// 等标题任务结束后发出结束帧并关闭通道
// 客户端断开不会中止这里，日志与落盘不受影响
func (m *Manager) drive(sess *Session, parts []model.ContentPart, out chan StreamEvent, titleDone <-chan struct{}, exchange string) {
	defer close(out)
	defer func() {
		m.mu.Lock()
		sess.inflight--
		m.mu.Unlock()
	}()

	sess.exchangeMu.Lock()
	err := m.runTurn(sess, parts, out)
	sess.exchangeMu.Unlock()
	if err != nil {
		log.Printf("chat %d exchange %s failed: %v", sess.ID(), exchange, err)
		out <- StreamEvent{Type: EventError, Data: err.Error(), Exchange: exchange}
	}

	if titleDone != nil {
		<-titleDone
	}
	out <- StreamEvent{Type: EventEnd}
}

// runTurn 执行轮次流水线
func (m *Manager) runTurn(sess *Session, parts []model.ContentPart, out chan<- StreamEvent) error {
	if err := sess.BeginTurn(); err != nil {
		return err
	}
	for _, p := range parts {
		if err := sess.AppendPart(p); err != nil {
			return err
		}
	}
	if err := sess.FinalizeTurn(); err != nil {
		return err
	}
	return sess.Run(context.Background(), out)
}

// Heartbeat 重置会话的闲置计时
// 会话没有活跃看门狗时为空操作
func (m *Manager) Heartbeat(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wd, ok := m.watchdogs[id]; ok {
		wd.lastSeen = time.Now()
	}
}

// Alive 会话是否驻留在内存中
func (m *Manager) Alive(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// History 查询会话的消息日志，活跃会话返回内存快照，
// 否则经缓存从存储读取
func (m *Manager) History(id int64) ([]model.Message, error) {
	m.mu.Lock()
	if sess, ok := m.active[id]; ok {
		m.mu.Unlock()
		return sess.Messages(), nil
	}
	defer m.mu.Unlock()
	return m.loadLocked(id)
}

// Save 显式落盘并驱逐
// 落盘失败上报调用方，会话保持驻留；有在途轮次时只落盘不驱逐
func (m *Manager) Save(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.active[id]
	if !ok {
		return nil
	}
	messages := sess.Messages()
	if err := m.store.Save(id, messages); err != nil {
		return fmt.Errorf("failed to persist chat %d: %w", id, err)
	}
	m.history.Put(id, messages)

	if sess.inflight > 0 {
		return nil
	}
	delete(m.active, id)
	m.stopWatchdogLocked(id)
	return nil
}

// Delete 删除会话：驱逐活跃实例（不落盘）并清除存储与缓存
func (m *Manager) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, id)
	m.stopWatchdogLocked(id)
	m.history.Remove(id)
	return m.store.Delete(id)
}

// ArchiveAll 把所有活跃会话落盘，会话保持驻留
// 用于进程退出前的收尾
func (m *Manager) ArchiveAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, sess := range m.active {
		messages := sess.Messages()
		if err := m.store.Save(id, messages); err != nil {
			log.Printf("archive-all: failed to persist chat %d: %v", id, err)
			errs = append(errs, err)
			continue
		}
		m.history.Put(id, messages)
	}
	return errors.Join(errs...)
}

// Configure 更新进程级模型选择，只影响之后创建的会话
func (m *Manager) Configure(mainModel, visionModel, assistModel string) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()
	if mainModel != "" {
		m.mainModel = mainModel
	}
	if visionModel != "" {
		m.visionModel = visionModel
	}
	if assistModel != "" {
		m.assistModel = assistModel
	}
}

// Models 当前的模型选择（退出时写回设置文件用）
func (m *Manager) Models() (mainModel, visionModel, assistModel string) {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.mainModel, m.visionModel, m.assistModel
}

// ListTitles 标题分页查询，直接转发给存储
func (m *Manager) ListTitles(below, above *int64, limit int) ([]model.ChatTitle, error) {
	return m.store.ListTitles(below, above, limit)
}

// ensureWatchdogLocked 保证会话有且只有一个看门狗，调用时必须持有 m.mu
// 已存在时等价于一次心跳
func (m *Manager) ensureWatchdogLocked(id int64) {
	if wd, ok := m.watchdogs[id]; ok {
		wd.lastSeen = time.Now()
		return
	}
	wd := &watchdog{id: id, lastSeen: time.Now(), stop: make(chan struct{})}
	m.watchdogs[id] = wd
	go m.watch(wd)
}

// stopWatchdogLocked 停止并移除看门狗，调用时必须持有 m.mu
func (m *Manager) stopWatchdogLocked(id int64) {
	if wd, ok := m.watchdogs[id]; ok {
		close(wd.stop)
		delete(m.watchdogs, id)
	}
}

// watch 看门狗主循环
// 心跳超时后落盘并驱逐会话；落盘失败不终止循环，
// 会话留在内存里等下个周期重试，不影响其他会话
func (m *Manager) watch(wd *watchdog) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wd.stop:
			return
		case <-ticker.C:
		}
		if m.sweep(wd) {
			return
		}
	}
}

// sweep 执行一次闲置检查，返回 true 表示看门狗应当退出
// 持锁后先确认自己仍是该会话注册在案的看门狗：停止信号可能
// 在计时器触发之后才到达，期间会话可能已被驱逐并由新的
// Generate 重建，落后的旧看门狗不得触碰继任者的会话与注册
func (m *Manager) sweep(wd *watchdog) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchdogs[wd.id] != wd {
		return true
	}
	if time.Since(wd.lastSeen) <= m.idleTimeout {
		return false
	}
	sess, ok := m.active[wd.id]
	if !ok {
		delete(m.watchdogs, wd.id)
		return true
	}
	if sess.inflight > 0 {
		// 有在途轮次，跳过本轮
		return false
	}
	messages := sess.Messages()
	if err := m.store.Save(wd.id, messages); err != nil {
		log.Printf("watchdog: failed to persist chat %d: %v", wd.id, err)
		return false
	}
	m.history.Put(wd.id, messages)
	delete(m.active, wd.id)
	delete(m.watchdogs, wd.id)

	log.Printf("chat %d idle, archived and evicted", wd.id)
	return true
}
