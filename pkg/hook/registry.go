package hook

import "go.uber.org/atomic"

type slot struct {
	hook Hook
}

var registered = atomic.NewPointer[slot](nil)

// Register installs h as the process-wide hook, replacing any previous one.
// Registering nil is the same as Unregister.
func Register(h Hook) {
	if h == nil {
		Unregister()
		return
	}
	registered.Store(&slot{hook: h})
}

// Get returns the registered hook
func Get() (Hook, bool) {
	s := registered.Load()
	if s == nil {
		return nil, false
	}
	return s.hook, true
}

// Unregister removes the registered hook
func Unregister() {
	registered.Store(nil)
}
