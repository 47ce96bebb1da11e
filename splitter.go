package playout

import (
	"sync"
)

// Splitter tees every message to an optional branch. The branch receives
// its own reference and must release it.
type Splitter struct {
	upstream Element

	m      sync.Mutex
	branch Pusher
}

// NewSplitter creates a Splitter with no branch.
func NewSplitter(upstream Element) *Splitter {
	return &Splitter{upstream: upstream}
}

// SetBranch sets the branch, nil removes it.
func (s *Splitter) SetBranch(p Pusher) {
	s.m.Lock()
	defer s.m.Unlock()
	s.branch = p
}

// Pull implements Element.
func (s *Splitter) Pull() Msg {
	m := s.upstream.Pull()
	s.m.Lock()
	branch := s.branch
	s.m.Unlock()
	if branch != nil {
		m.AddRef()
		branch.Push(m)
	}
	return m
}
