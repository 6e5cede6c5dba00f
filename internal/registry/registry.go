// Package registry 实现进程级的函数注册表。
// 注册表是函数名到描述符的映射：在服务启动时一次性填充，
// 封闭（Seal）之后视为不可变，可被任意数量的协程无锁并发读取。
// 运行时的任何注册尝试都是错误。
package registry

import (
	"sort"
	"sync"

	"github.com/oriys/tinybase/internal/domain"
)

// Registry 是函数名到描述符的进程级映射。
// 填充发生在任何触发适配器开始接收事件之前；
// Seal 之后注册表只读，handler 引用由注册表独占持有。
type Registry struct {
	mu     sync.Mutex
	sealed bool
	byName map[string]*domain.Descriptor
}

// New 创建一个空的注册表。
// 测试可以构建相互独立的注册表实例以实现隔离。
func New() *Registry {
	return &Registry{
		byName: make(map[string]*domain.Descriptor),
	}
}

// Register 注册一个函数描述符。
// 同名函数已存在时返回 ErrDuplicateFunction；
// 注册表已封闭时返回 ErrRegistrySealed；
// 描述符本身无效时返回对应的校验错误。
func (r *Registry) Register(d *domain.Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return domain.ErrRegistrySealed
	}
	if _, exists := r.byName[d.Name]; exists {
		return domain.ErrDuplicateFunction
	}
	r.byName[d.Name] = d
	return nil
}

// Seal 封闭注册表。封闭后注册表只读，
// 并发 Resolve/List 无需任何同步。
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Resolve 按名称解析函数描述符。
// 未注册的名称返回 ErrFunctionNotFound。
func (r *Registry) Resolve(name string) (*domain.Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, domain.ErrFunctionNotFound
	}
	return d, nil
}

// List 返回全部描述符，按名称排序。
func (r *Registry) List() []*domain.Descriptor {
	out := make([]*domain.Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len 返回已注册的函数数量。
func (r *Registry) Len() int {
	return len(r.byName)
}
