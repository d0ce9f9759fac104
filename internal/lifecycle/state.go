package lifecycle

import (
	"errors"
	"fmt"
	"path/filepath"
)

// State is the position of a case folder in its lifecycle.
type State int

const (
	Discovered State = iota
	Staged
	Dispatched
	Failed
	Archived
)

// ErrInvalidTransition is returned by Advance for backward or skipping moves.
var ErrInvalidTransition = errors.New("invalid state transition")

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case Staged:
		return "staged"
	case Dispatched:
		return "dispatched"
	case Failed:
		return "failed"
	case Archived:
		return "archived"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Discovered: {Staged},
	Staged:     {Dispatched, Failed},
	Dispatched: {Archived},
	Failed:     {Archived},
}

// CaseFolder is one unit of work. Name doubles as the email subject.
type CaseFolder struct {
	Name  string
	Path  string
	Files []string
	State State
}

// Advance moves the folder to next. Only forward transitions are accepted.
func (c *CaseFolder) Advance(next State) error {
	for _, allowed := range transitions[c.State] {
		if allowed == next {
			c.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for %q", ErrInvalidTransition, c.State, next, c.Name)
}

// FilePaths returns the absolute path of every file in the folder.
func (c *CaseFolder) FilePaths() []string {
	paths := make([]string, len(c.Files))
	for i, f := range c.Files {
		paths[i] = filepath.Join(c.Path, f)
	}
	return paths
}
