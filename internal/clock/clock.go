package clock

import (
	"sync"
	"time"
)

// Func 是业务层依赖的时间来源，生产环境直接用 time.Now。
type Func func() time.Time

// Fake 是测试用的可控时钟。
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

func NewFake(start time.Time) *Fake {
	return &Fake{current: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}

// Advance 把时钟拨快 d 并返回新的时间。
func (f *Fake) Advance(d time.Duration) time.Time {
	f.mu.Lock()
	f.current = f.current.Add(d)
	t := f.current
	f.mu.Unlock()
	return t
}
