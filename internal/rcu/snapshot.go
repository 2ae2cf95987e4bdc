package rcu

import (
	"sync/atomic"
)

// Snapshot 读多写少的配置容器
// 读取无锁；写入整体替换指针，已发布的值不得再修改
type Snapshot[T any] struct {
	ptr atomic.Pointer[T]
}

func NewSnapshot[T any](init *T) *Snapshot[T] {
	s := &Snapshot[T]{}
	s.ptr.Store(init)
	return s
}

// Load returns the current value. Callers must treat it as read-only.
func (s *Snapshot[T]) Load() *T {
	return s.ptr.Load()
}

// Swap publishes next and returns the value it replaced.
// Readers that already loaded the old value keep it.
func (s *Snapshot[T]) Swap(next *T) *T {
	return s.ptr.Swap(next)
}
