// Package cache 提供定容量的 LRU 缓存，可选按值反查键
package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache 定容量 LRU 缓存
// Get 和 Put 都会把条目移到最新位置；容量满时淘汰最久未访问的条目。
// 开启反查后可以按值找到最近关联的键（结构相同的值共享一条反查记录，
// 这是刻意的设计）。所有方法并发安全。
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List // 队首为最新
	items    map[K]*list.Element

	// 只有开启反查时才初始化，节省空间
	fingerprint func(V) string
	reverse     map[string]K
}

// New 创建 LRU 缓存
func New[K comparable, V any](capacity int) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[K]*list.Element),
	}
}

// NewWithReverse 创建带反查索引的 LRU 缓存
// fingerprint 把值映射为可比较的指纹，指纹相同视为同一个值
func NewWithReverse[K comparable, V any](capacity int, fingerprint func(V) string) *Cache[K, V] {
	c := New[K, V](capacity)
	c.fingerprint = fingerprint
	c.reverse = make(map[string]K)
	return c
}

// Get 查询键，命中时条目升为最新
// 命中且开启反查时，该键成为此值的最新代表
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(el)
	val := el.Value.(*entry[K, V]).value

	if c.fingerprint != nil {
		c.reverse[c.fingerprint(val)] = key
	}
	return val, true
}

// Put 写入键值，条目升为最新
// 容量满时淘汰最久未访问的条目
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		ent := el.Value.(*entry[K, V])

		// 值变化时，如果旧值的反查记录还指向当前键则删掉
		if c.fingerprint != nil {
			oldFP := c.fingerprint(ent.value)
			if oldFP != c.fingerprint(value) {
				if k, ok := c.reverse[oldFP]; ok && k == key {
					delete(c.reverse, oldFP)
				}
			}
		}
		ent.value = value
	} else {
		if c.ll.Len() >= c.capacity {
			c.evictOldest()
		}
		c.items[key] = c.ll.PushFront(&entry[K, V]{key: key, value: value})
	}

	// 无论值是否重复，当前键都成为该值的最新代表
	if c.fingerprint != nil {
		c.reverse[c.fingerprint(value)] = key
	}
}

// FindByValue 按值反查最近关联的键
// 未开启反查或值不存在时返回 false
func (c *Cache[K, V]) FindByValue(value V) (K, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero K
	if c.fingerprint == nil {
		return zero, false
	}
	k, ok := c.reverse[c.fingerprint(value)]
	return k, ok
}

// Remove 删除键，键不存在时为空操作
// 被删除的键仍是其值的反查代表时一并清理反查记录
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return
	}
	ent := el.Value.(*entry[K, V])
	c.ll.Remove(el)
	delete(c.items, key)

	if c.fingerprint != nil {
		fp := c.fingerprint(ent.value)
		if k, ok := c.reverse[fp]; ok && k == key {
			delete(c.reverse, fp)
		}
	}
}

// Len 当前条目数
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache[K, V]) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	ent := el.Value.(*entry[K, V])
	c.ll.Remove(el)
	delete(c.items, ent.key)

	// 被淘汰的键仍是其值的反查代表时才清理；
	// 反查记录指向别的（更新的）键时保留
	if c.fingerprint != nil {
		fp := c.fingerprint(ent.value)
		if k, ok := c.reverse[fp]; ok && k == ent.key {
			delete(c.reverse, fp)
		}
	}
}
