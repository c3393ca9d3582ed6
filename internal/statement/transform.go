package statement

import (
	"strconv"

	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/rng"
)

// Compiler is the external authoring collaborator: it turns authored
// markup into an abstract statement tree. Malformed source surfaces as a
// *domain.ValidationError.
type Compiler interface {
	CompileStatement(source []byte) (*Section, error)
}

// Result is the per-variant output of a transform: the shuffled tree
// (with correctness metadata retained), the grading schema, the answer
// key, and the option table mapping presented labels back to authored
// option positions.
type Result struct {
	Tree     *Section
	Schema   domain.Schema
	Solution domain.Solution
	Options  map[int]map[string]int // presentedId -> presented label -> authored index
}

// OriginalOption maps a presented option label back to the option's
// authored position, for folding per-variant answers into contest-level
// columns.
func (r *Result) OriginalOption(presentedID int, label string) (int, bool) {
	table, ok := r.Options[presentedID]
	if !ok {
		return 0, false
	}
	idx, ok := table[label]
	return idx, ok
}

// Transform builds one variant from a compiled statement tree. The input
// tree is never mutated, and the same (tree, variantID) pair always
// yields an identical result, which is what makes build caching and
// printed/graded parity sound.
func Transform(root *Section, variantID string) (*Result, error) {
	tree := Clone(root)

	assignAuthoringOrder(tree)

	// Section indices are pre-order positions on the unshuffled tree;
	// collecting before shuffling keeps them stable.
	sections := collectSections(tree)
	for i, sec := range sections {
		s := rng.New("section#" + variantID + "#" + strconv.Itoa(i))
		rng.Shuffle(s, sec.Children)
	}

	// Group indices are pre-order positions after the section pass.
	groups := collectGroups(tree)
	for i, g := range groups {
		s := rng.New("answers#" + variantID + "#" + strconv.Itoa(i))
		rng.Shuffle(s, g.Children)
	}

	res := &Result{
		Tree:     tree,
		Schema:   domain.Schema{},
		Solution: domain.Solution{},
		Options:  map[int]map[string]int{},
	}
	nextPresented := 1
	if err := finalize(tree, "", res, &nextPresented); err != nil {
		return nil, err
	}
	return res, nil
}

// StripSolutions returns a copy of the tree with all correctness
// metadata removed, for the online/public artifact.
func StripSolutions(root *Section) *Section {
	tree := Clone(root)
	var strip func(n Node)
	strip = func(n Node) {
		switch v := n.(type) {
		case *Section:
			for _, c := range v.Children {
				strip(c)
			}
		case *Problem:
			for _, c := range v.Children {
				strip(c)
			}
		case *AnswerGroup:
			for _, c := range v.Children {
				strip(c)
			}
		case *Answer:
			v.Correct = false
		case *OpenAnswer:
			v.Value = ""
		}
	}
	strip(tree)
	return tree
}

// assignAuthoringOrder walks the unshuffled tree in pre-order, numbering
// problems 1, 2, 3, ... and recording each option's authored position.
func assignAuthoringOrder(root *Section) {
	next := 1
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Section:
			for _, c := range v.Children {
				walk(c)
			}
		case *Problem:
			v.OriginalID = next
			next++
			for _, c := range v.Children {
				walk(c)
			}
		case *AnswerGroup:
			for i, c := range v.Children {
				if a, ok := c.(*Answer); ok {
					a.authoredIndex = i
				}
			}
		}
	}
	walk(root)
}

func collectSections(root *Section) []*Section {
	var out []*Section
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Section:
			out = append(out, v)
			for _, c := range v.Children {
				walk(c)
			}
		case *Problem:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}

func collectGroups(root *Section) []*AnswerGroup {
	var out []*AnswerGroup
	var walk func(n Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case *Section:
			for _, c := range v.Children {
				walk(c)
			}
		case *Problem:
			for _, c := range v.Children {
				walk(c)
			}
		case *AnswerGroup:
			out = append(out, v)
		}
	}
	walk(root)
	return out
}

// finalize assigns presented ids and option labels in shuffled order,
// validates each problem, and fills schema, solution and option tables.
func finalize(n Node, path string, res *Result, nextPresented *int) error {
	switch v := n.(type) {
	case *Section:
		for i, c := range v.Children {
			if err := finalize(c, childPath(path, i), res, nextPresented); err != nil {
				return err
			}
		}
	case *Problem:
		v.PresentedID = *nextPresented
		*nextPresented++
		return finalizeProblem(v, path, res)
	}
	return nil
}

func finalizeProblem(p *Problem, path string, res *Result) error {
	var group *AnswerGroup
	for _, c := range p.Children {
		g, ok := c.(*AnswerGroup)
		if !ok {
			continue
		}
		if group != nil {
			return &domain.ValidationError{Path: path, Reason: "problem has more than one answer group"}
		}
		group = g
	}
	if group == nil {
		return &domain.ValidationError{Path: path, Reason: "problem has no answer group"}
	}
	if p.Points.Correct <= p.Points.Blank || p.Points.Blank < p.Points.Wrong {
		return &domain.ValidationError{Path: path, Reason: "invalid points tuple"}
	}

	ptype, ok := group.Kind.ProblemType()
	if !ok {
		return &domain.ValidationError{Path: path, Reason: "unknown answer group kind " + string(group.Kind)}
	}

	entry := domain.Problem{
		PresentedID: p.PresentedID,
		OriginalID:  p.OriginalID,
		Type:        ptype,
		Points:      p.Points,
	}

	switch group.Kind {
	case GroupAnyCorrect, GroupMultiResponse:
		labels := make([]string, 0, len(group.Children))
		table := make(map[string]int, len(group.Children))
		var correct []string
		for i, c := range group.Children {
			a, ok := c.(*Answer)
			if !ok {
				return &domain.ValidationError{Path: path, Reason: "choice group contains a non-option child"}
			}
			a.Label = optionLabel(i)
			labels = append(labels, a.Label)
			table[a.Label] = a.authoredIndex
			if a.Correct {
				correct = append(correct, a.Label)
			}
		}
		if len(labels) == 0 {
			return &domain.ValidationError{Path: path, Reason: "choice group has no options"}
		}
		if group.Kind == GroupAnyCorrect && len(correct) == 0 {
			return &domain.ValidationError{Path: path, Reason: "no option marked correct"}
		}
		entry.Options = labels
		res.Options[p.PresentedID] = table
		if group.Kind == GroupAnyCorrect {
			res.Solution[p.PresentedID] = domain.Answer{Kind: domain.AnswerChoice, Choice: correct[0]}
		} else {
			res.Solution[p.PresentedID] = domain.Answer{Kind: domain.AnswerChoices, Choices: correct}
		}

	case GroupOpenNumber, GroupOpenText:
		if len(group.Children) != 1 {
			return &domain.ValidationError{Path: path, Reason: "open group must hold exactly one expected value"}
		}
		open, ok := group.Children[0].(*OpenAnswer)
		if !ok {
			return &domain.ValidationError{Path: path, Reason: "open group contains a non-open child"}
		}
		if open.Value == "" {
			return &domain.ValidationError{Path: path, Reason: "open group has an empty correct value"}
		}
		if group.Kind == GroupOpenNumber {
			n, err := strconv.Atoi(open.Value)
			if err != nil {
				return &domain.ValidationError{Path: path, Reason: "open number value is not an integer"}
			}
			res.Solution[p.PresentedID] = domain.Answer{Kind: domain.AnswerNumber, Number: n}
		} else {
			res.Solution[p.PresentedID] = domain.Answer{Kind: domain.AnswerText, Text: open.Value}
		}

	case GroupComplex:
		res.Solution[p.PresentedID] = domain.Answer{Kind: domain.AnswerComplex, Display: domain.DisplayPass}
	}

	res.Schema[p.PresentedID] = entry
	return nil
}

func childPath(path string, i int) string {
	if path == "" {
		return strconv.Itoa(i)
	}
	return path + "." + strconv.Itoa(i)
}

// optionLabel turns a presented position into the letter students see.
func optionLabel(i int) string {
	label := ""
	for {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
		if i < 0 {
			return label
		}
	}
}
