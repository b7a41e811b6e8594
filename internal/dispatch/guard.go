package dispatch

import (
	"chatly/internal/chaterr"
	"fmt"
	"sync"
)

const (
	newChatKey = "new-chat"
	accountKey = "account"
	globalKey  = "all"
)

func chatKey(chatID string) string {
	return "chat:" + chatID
}

// guard is the in-flight table. A key holds the names of the intents
// currently claiming it.
type guard struct {
	mu     sync.Mutex
	claims map[string]map[string]int
}

func newGuard() *guard {
	return &guard{claims: make(map[string]map[string]int)}
}

// acquire claims key for intent. A superseding intent only conflicts with a
// pending intent of the same name; any other intent conflicts with every
// claim on the key.
func (g *guard) acquire(key, intent string, superseding bool) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	held := g.claims[key]
	if (superseding && held[intent] > 0) || (!superseding && len(held) > 0) {
		return nil, fmt.Errorf("%w: %s", chaterr.ErrBusy, key)
	}
	g.addLocked(key, intent)
	return g.releaser(key, intent), nil
}

func (g *guard) addLocked(key, intent string) {
	if g.claims[key] == nil {
		g.claims[key] = make(map[string]int)
	}
	g.claims[key][intent]++
}

func (g *guard) releaser(key, intent string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			held := g.claims[key]
			held[intent]--
			if held[intent] <= 0 {
				delete(held, intent)
			}
			if len(held) == 0 {
				delete(g.claims, key)
			}
		})
	}
}

// pending reports whether anything claims key.
func (g *guard) pending(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims[key]) > 0
}
