// Package cursor tracks the operator's position in the sentence list.
package cursor

import "sync"

// State is a snapshot of the cursor.
type State struct {
	Sentence  string `json:"sentence"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Completed bool   `json:"completed"`
}

// Cursor walks an immutable list of sentences. The index ranges over
// [0, len(sentences)]; the upper bound means the list is completed.
// It is safe for concurrent use.
type Cursor struct {
	mu        sync.Mutex
	sentences []string
	index     int
}

// New returns a Cursor at the first of sentences.
func New(sentences []string) *Cursor {
	s := make([]string, len(sentences))
	copy(s, sentences)
	return &Cursor{sentences: s}
}

// Current returns the state without moving.
func (c *Cursor) Current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state()
}

// Next advances by one, stopping at the completed position.
func (c *Cursor) Next() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < len(c.sentences) {
		c.index++
	}
	return c.state()
}

// Previous steps back by one, stopping at the first sentence.
func (c *Cursor) Previous() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index > 0 {
		c.index--
	}
	return c.state()
}

// Reset returns to the first sentence.
func (c *Cursor) Reset() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
	return c.state()
}

func (c *Cursor) state() State {
	st := State{Index: c.index, Total: len(c.sentences)}
	if c.index >= len(c.sentences) {
		st.Completed = true
		return st
	}
	st.Sentence = c.sentences[c.index]
	return st
}
