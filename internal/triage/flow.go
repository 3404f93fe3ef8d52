// Package triage walks the C-SSRS style risk interview.
package triage

import (
	"errors"
	"fmt"
)

// EntryNode is where every triage invocation starts
const EntryNode = "q1"

var (
	ErrUnresolvedTransition = errors.New("triage transition could not be resolved")
	ErrInvalidFlow          = errors.New("invalid triage flow")
)

// Response is the user's answer to a triage prompt
type Response string

const (
	ResponseYes Response = "yes"
	ResponseNo  Response = "no"
)

// Valid reports whether the response is yes or no
func (r Response) Valid() bool {
	return r == ResponseYes || r == ResponseNo
}

// Node is a single step of the interview
type Node struct {
	ID               string
	Prompt           string
	SuicidalIdeation bool
	Behavior         bool
	Next             string
	YesNext          string
	NoNext           string
	End              bool
	Escalation       bool
}

// StepResult describes the node the interview moved to
type StepResult struct {
	NextID     string
	Prompt     string
	Terminal   bool
	Escalation bool
}

// Flow is an immutable interview graph
type Flow struct {
	entry string
	nodes map[string]Node
}

// NewFlow builds a flow from nodes and validates it
func NewFlow(entry string, nodes []Node) (*Flow, error) {
	f := &Flow{entry: entry, nodes: make(map[string]Node, len(nodes))}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node without id", ErrInvalidFlow)
		}
		if _, exists := f.nodes[n.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate node %s", ErrInvalidFlow, n.ID)
		}
		f.nodes[n.ID] = n
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Entry returns the id of the entry node
func (f *Flow) Entry() string {
	return f.entry
}

// Node looks up a node by id
func (f *Flow) Node(id string) (Node, bool) {
	n, ok := f.nodes[id]
	return n, ok
}

// Step resolves the next node from currentID given the response. An unconditional edge wins
// over the yes/no edges.
func (f *Flow) Step(currentID string, response Response) (StepResult, error) {
	current, ok := f.nodes[currentID]
	if !ok {
		return StepResult{}, fmt.Errorf("%w: unknown node %s", ErrUnresolvedTransition, currentID)
	}

	nextID := current.Next
	if nextID == "" {
		switch response {
		case ResponseYes:
			nextID = current.YesNext
		case ResponseNo:
			nextID = current.NoNext
		}
	}
	if nextID == "" {
		return StepResult{}, fmt.Errorf("%w: no edge from %s for %q", ErrUnresolvedTransition, currentID, response)
	}

	next, ok := f.nodes[nextID]
	if !ok {
		return StepResult{}, fmt.Errorf("%w: %s points to missing node %s", ErrUnresolvedTransition, currentID, nextID)
	}

	return StepResult{
		NextID:     next.ID,
		Prompt:     next.Prompt,
		Terminal:   next.End,
		Escalation: next.Escalation,
	}, nil
}

// Validate checks every node reachable from the entry: edges resolve, non-terminal nodes have
// an outgoing edge and every walk terminates at an End node without cycling.
func (f *Flow) Validate() error {
	if _, ok := f.nodes[f.entry]; !ok {
		return fmt.Errorf("%w: entry node %s missing", ErrInvalidFlow, f.entry)
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(f.nodes))

	var visit func(id string) error
	visit = func(id string) error {
		switch marks[id] {
		case visiting:
			return fmt.Errorf("%w: cycle through %s", ErrInvalidFlow, id)
		case done:
			return nil
		}

		n, ok := f.nodes[id]
		if !ok {
			return fmt.Errorf("%w: dangling edge to %s", ErrInvalidFlow, id)
		}
		marks[id] = visiting

		edges := n.edges()
		if n.End {
			if len(edges) > 0 {
				return fmt.Errorf("%w: terminal node %s has outgoing edges", ErrInvalidFlow, id)
			}
		} else {
			if n.Next == "" && (n.YesNext == "" || n.NoNext == "") {
				return fmt.Errorf("%w: node %s cannot resolve every response", ErrInvalidFlow, id)
			}
			for _, e := range edges {
				if err := visit(e); err != nil {
					return err
				}
			}
		}

		marks[id] = done
		return nil
	}

	return visit(f.entry)
}

func (n Node) edges() []string {
	if n.Next != "" {
		return []string{n.Next}
	}
	var out []string
	if n.YesNext != "" {
		out = append(out, n.YesNext)
	}
	if n.NoNext != "" {
		out = append(out, n.NoNext)
	}
	return out
}
