package usecase

import (
	"sort"
	"sync"
	"sync/atomic"
)

// AbortFlag flips from false to true at most once.
type AbortFlag struct {
	set atomic.Bool
}

func (f *AbortFlag) raise() bool { return f.set.CompareAndSwap(false, true) }

func (f *AbortFlag) Raised() bool { return f.set.Load() }

// CampaignRegistry holds the abort flag of every running campaign. An entry
// exists only between Register and the release function it returns.
type CampaignRegistry struct {
	mu    sync.Mutex
	flags map[string]*AbortFlag
}

// NewCampaignRegistry creates an empty registry.
func NewCampaignRegistry() *CampaignRegistry {
	return &CampaignRegistry{flags: make(map[string]*AbortFlag)}
}

// Register inserts a fresh flag for id. ok is false when id is already running.
func (r *CampaignRegistry) Register(id string) (flag *AbortFlag, release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flags[id]; exists {
		return nil, nil, false
	}
	flag = &AbortFlag{}
	r.flags[id] = flag
	var once sync.Once
	release = func() {
		once.Do(func() {
			r.mu.Lock()
			if r.flags[id] == flag {
				delete(r.flags, id)
			}
			r.mu.Unlock()
		})
	}
	return flag, release, true
}

// Abort raises the flag of id. It reports false when id is not running or was
// already aborted.
func (r *CampaignRegistry) Abort(id string) bool {
	r.mu.Lock()
	flag, ok := r.flags[id]
	r.mu.Unlock()
	return ok && flag.raise()
}

// Running lists the ids of running campaigns.
func (r *CampaignRegistry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.flags))
	for id := range r.flags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered campaigns.
func (r *CampaignRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flags)
}
