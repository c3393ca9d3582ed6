// Package statement models the abstract contest statement tree produced
// by the external content compiler and the pure transform that turns it
// into per-variant artifacts.
package statement

import (
	"encoding/json"
	"fmt"

	"contest-variant-service/internal/domain"
)

// Node is one of *Section, *Problem, *SubProblem, *AnswerGroup,
// *Answer, *OpenAnswer. The set is closed.
type Node interface {
	node()
}

// Section groups sections and problems. Its children are shuffled per
// variant.
type Section struct {
	Title    string
	Children []Node // *Section | *Problem
}

// Problem is one gradable statement problem. It carries exactly one
// AnswerGroup among its children; SubProblem nodes hold surrounding
// prose and are never shuffled.
type Problem struct {
	Statement   string
	Points      domain.Points
	Children    []Node // *SubProblem | *AnswerGroup
	OriginalID  int    // authoring order, shuffle-invariant
	PresentedID int    // per-variant, assigned after shuffling
}

// SubProblem is a prose fragment inside a problem.
type SubProblem struct {
	Statement string
}

// GroupKind selects the grading semantics of an answer group.
type GroupKind string

const (
	GroupAnyCorrect    GroupKind = "anyCorrect"    // pick one option
	GroupMultiResponse GroupKind = "multiResponse" // pick a set of options
	GroupOpenNumber    GroupKind = "openNumber"
	GroupOpenText      GroupKind = "openText"
	GroupComplex       GroupKind = "complex" // graded by an external collaborator
)

// AnswerGroup holds the answer options of a problem. Choice-kind groups
// have their children shuffled per variant.
type AnswerGroup struct {
	Kind     GroupKind
	Children []Node // *Answer | *OpenAnswer
}

// Answer is one selectable option.
type Answer struct {
	Label   string // presented letter, assigned after shuffling
	Text    string
	Correct bool

	authoredIndex int // position in authoring order, set by the transform
}

// OpenAnswer carries the expected value of an open-ended group.
type OpenAnswer struct {
	Value string
}

func (*Section) node()     {}
func (*Problem) node()     {}
func (*SubProblem) node()  {}
func (*AnswerGroup) node() {}
func (*Answer) node()      {}
func (*OpenAnswer) node()  {}

// ProblemType maps a group kind to the grading problem type.
func (k GroupKind) ProblemType() (domain.ProblemType, bool) {
	switch k {
	case GroupAnyCorrect:
		return domain.MultipleChoice, true
	case GroupMultiResponse:
		return domain.MultipleResponse, true
	case GroupOpenNumber:
		return domain.OpenNumber, true
	case GroupOpenText:
		return domain.OpenText, true
	case GroupComplex:
		return domain.Complex, true
	}
	return "", false
}

type jsonNode struct {
	Kind      string            `json:"kind"`
	Title     string            `json:"title,omitempty"`
	Statement string            `json:"statement,omitempty"`
	Points    *domain.Points    `json:"points,omitempty"`
	GroupKind GroupKind         `json:"groupKind,omitempty"`
	Label     string            `json:"label,omitempty"`
	Text      string            `json:"text,omitempty"`
	Correct   bool              `json:"correct,omitempty"`
	Value     string            `json:"value,omitempty"`
	Original  int               `json:"originalId,omitempty"`
	Presented int               `json:"presentedId,omitempty"`
	Children  []json.RawMessage `json:"children,omitempty"`
}

// MarshalNode encodes a node with a kind discriminator, recursively.
func MarshalNode(n Node) ([]byte, error) {
	j, err := toJSONNode(n)
	if err != nil {
		return nil, err
	}
	return json.Marshal(j)
}

func toJSONNode(n Node) (*jsonNode, error) {
	var j jsonNode
	var children []Node
	switch v := n.(type) {
	case *Section:
		j = jsonNode{Kind: "section", Title: v.Title}
		children = v.Children
	case *Problem:
		p := v.Points
		j = jsonNode{Kind: "problem", Statement: v.Statement, Points: &p, Original: v.OriginalID, Presented: v.PresentedID}
		children = v.Children
	case *SubProblem:
		j = jsonNode{Kind: "subProblem", Statement: v.Statement}
	case *AnswerGroup:
		j = jsonNode{Kind: "answerGroup", GroupKind: v.Kind}
		children = v.Children
	case *Answer:
		j = jsonNode{Kind: "answer", Label: v.Label, Text: v.Text, Correct: v.Correct}
	case *OpenAnswer:
		j = jsonNode{Kind: "openAnswer", Value: v.Value}
	default:
		return nil, fmt.Errorf("statement: unknown node type %T", n)
	}
	for _, c := range children {
		raw, err := MarshalNode(c)
		if err != nil {
			return nil, err
		}
		j.Children = append(j.Children, raw)
	}
	return &j, nil
}

// UnmarshalNode decodes a kind-discriminated node, recursively.
func UnmarshalNode(data []byte) (Node, error) {
	var j jsonNode
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("statement: decode node: %w", err)
	}
	children := make([]Node, 0, len(j.Children))
	for _, raw := range j.Children {
		c, err := UnmarshalNode(raw)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	switch j.Kind {
	case "section":
		return &Section{Title: j.Title, Children: children}, nil
	case "problem":
		var pts domain.Points
		if j.Points != nil {
			pts = *j.Points
		}
		return &Problem{Statement: j.Statement, Points: pts, Children: children, OriginalID: j.Original, PresentedID: j.Presented}, nil
	case "subProblem":
		return &SubProblem{Statement: j.Statement}, nil
	case "answerGroup":
		return &AnswerGroup{Kind: j.GroupKind, Children: children}, nil
	case "answer":
		return &Answer{Label: j.Label, Text: j.Text, Correct: j.Correct}, nil
	case "openAnswer":
		return &OpenAnswer{Value: j.Value}, nil
	}
	return nil, fmt.Errorf("statement: unknown node kind %q", j.Kind)
}

// DecodeRoot decodes a compiled statement tree; the root must be a section.
func DecodeRoot(data []byte) (*Section, error) {
	n, err := UnmarshalNode(data)
	if err != nil {
		return nil, err
	}
	root, ok := n.(*Section)
	if !ok {
		return nil, fmt.Errorf("statement: root node must be a section, got %T", n)
	}
	return root, nil
}

func cloneNode(n Node) Node {
	switch v := n.(type) {
	case *Section:
		c := &Section{Title: v.Title, Children: make([]Node, len(v.Children))}
		for i, child := range v.Children {
			c.Children[i] = cloneNode(child)
		}
		return c
	case *Problem:
		c := &Problem{Statement: v.Statement, Points: v.Points, OriginalID: v.OriginalID, PresentedID: v.PresentedID, Children: make([]Node, len(v.Children))}
		for i, child := range v.Children {
			c.Children[i] = cloneNode(child)
		}
		return c
	case *SubProblem:
		return &SubProblem{Statement: v.Statement}
	case *AnswerGroup:
		c := &AnswerGroup{Kind: v.Kind, Children: make([]Node, len(v.Children))}
		for i, child := range v.Children {
			c.Children[i] = cloneNode(child)
		}
		return c
	case *Answer:
		return &Answer{Label: v.Label, Text: v.Text, Correct: v.Correct, authoredIndex: v.authoredIndex}
	case *OpenAnswer:
		return &OpenAnswer{Value: v.Value}
	}
	return nil
}

// Clone deep-copies a statement tree.
func Clone(root *Section) *Section {
	return cloneNode(root).(*Section)
}
