package host

import (
	"fmt"
	"slices"
	"sync"
)

// KeyNames is the sorted list of key names a program can see in KEYS.
var KeyNames = func() []string {
	names := []string{
		"Escape", "PrintScreen", "ScrollLock", "Break",
		"BackQuote", "Minus", "Equals", "BackSpace",
		"Tab", "OpenBracket", "CloseBracket", "LeftBrace", "RightBrace", "Enter",
		"CapsLock", "Semicolon", "Quote", "Hash",
		"Shift", "BackSlash", "Comma", "FullStop", "Slash",
		"Control", "Alt", "Space",
		"Insert", "Home", "PageUp", "Delete", "End", "PageDown",
		"DownArrow", "LeftArrow", "RightArrow", "UpArrow",
	}
	for i := range 10 {
		names = append(names, fmt.Sprintf("Number%d", i))
	}
	for c := 'A'; c <= 'Z'; c++ {
		names = append(names, "Letter"+string(c))
	}
	slices.Sort(names)
	return names
}()

// IsKeyName reports whether name is a known key.
func IsKeyName(name string) bool {
	_, ok := slices.BinarySearch(KeyNames, name)
	return ok
}

// KeyState tracks which keys are held down. Input handlers may update it
// while a machine reads snapshots from another goroutine.
type KeyState struct {
	mu   sync.Mutex
	down map[string]bool
}

// NewKeyState returns a KeyState with every key released.
func NewKeyState() *KeyState {
	return &KeyState{down: make(map[string]bool)}
}

// Press marks a key as held.
func (k *KeyState) Press(name string) error {
	return k.set(name, true)
}

// Release marks a key as up.
func (k *KeyState) Release(name string) error {
	return k.set(name, false)
}

func (k *KeyState) set(name string, down bool) error {
	if !IsKeyName(name) {
		return fmt.Errorf("unknown key '%s'", name)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if down {
		k.down[name] = true
	} else {
		delete(k.down, name)
	}
	return nil
}

// Reset releases every key.
func (k *KeyState) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	clear(k.down)
}

// Keys returns a snapshot holding every known key name.
func (k *KeyState) Keys() map[string]bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	snap := make(map[string]bool, len(KeyNames))
	for _, name := range KeyNames {
		snap[name] = k.down[name]
	}
	return snap
}
