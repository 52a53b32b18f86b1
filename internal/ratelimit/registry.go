package ratelimit

import "sync"

// Registry owns a named set of limiters with a defined lifecycle: built
// at service start, destroyed at shutdown. Injected wherever limiters
// are consumed; there is no process-wide singleton.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*Limiter)}
}

func (r *Registry) Register(name string, l *Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[name] = l
}

func (r *Registry) Get(name string) *Limiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.limiters[name]
}

// DestroyAll releases every registered limiter's backing resources.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.limiters {
		l.Destroy()
	}
	r.limiters = make(map[string]*Limiter)
}
