// Package contacts keeps display names for addresses.
package contacts

import (
	"strings"
	"sync"

	"github.com/vdavid/vchat/internal/models"
)

// Book resolves addresses to display names. Names configured up front win
// over names learned from message headers.
type Book struct {
	mu      sync.RWMutex
	static  map[string]string
	learned map[string]string
}

// NewBook creates a book seeded with static names keyed by address.
func NewBook(static map[string]string) *Book {
	b := &Book{
		static:  make(map[string]string, len(static)),
		learned: make(map[string]string),
	}
	for email, name := range static {
		if name = strings.TrimSpace(name); name != "" {
			b.static[normalize(email)] = name
		}
	}
	return b
}

// Name returns the display name for email.
func (b *Book) Name(email string) (string, bool) {
	email = normalize(email)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if name, ok := b.static[email]; ok {
		return name, true
	}
	name, ok := b.learned[email]
	return name, ok
}

// Learn records header display names. Names that are just the address
// again are ignored, and a learned name is never overwritten.
func (b *Book) Learn(addrs ...models.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range addrs {
		email := normalize(a.Email)
		name := strings.Trim(strings.TrimSpace(a.Name), `"'`)
		if email == "" || name == "" || strings.EqualFold(name, email) {
			continue
		}
		if _, ok := b.learned[email]; !ok {
			b.learned[email] = name
		}
	}
}

// LearnMessage records the names of every participant of msg.
func (b *Book) LearnMessage(msg *models.Message) {
	b.Learn(msg.From)
	b.Learn(msg.Recipients()...)
}

// Len returns the number of addresses with a known name.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.static)
	for email := range b.learned {
		if _, ok := b.static[email]; !ok {
			n++
		}
	}
	return n
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
