package statement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"contest-variant-service/internal/domain"
)

func sampleTree() *Section {
	return &Section{
		Title: "Contest",
		Children: []Node{
			&Section{
				Title: "Arithmetic",
				Children: []Node{
					&Problem{
						Statement: "What is 2+2?",
						Points:    domain.Points{Correct: 5, Blank: 1, Wrong: -1},
						Children: []Node{
							&AnswerGroup{Kind: GroupAnyCorrect, Children: []Node{
								&Answer{Text: "3"},
								&Answer{Text: "4", Correct: true},
								&Answer{Text: "5"},
								&Answer{Text: "6"},
							}},
						},
					},
					&Problem{
						Statement: "Pick the even numbers.",
						Points:    domain.Points{Correct: 5, Blank: 1, Wrong: 0},
						Children: []Node{
							&AnswerGroup{Kind: GroupMultiResponse, Children: []Node{
								&Answer{Text: "2", Correct: true},
								&Answer{Text: "3"},
								&Answer{Text: "4", Correct: true},
							}},
						},
					},
				},
			},
			&Section{
				Title: "Open",
				Children: []Node{
					&Problem{
						Statement: "How many primes below 10?",
						Points:    domain.Points{Correct: 3, Blank: 0, Wrong: 0},
						Children: []Node{
							&SubProblem{Statement: "Count them."},
							&AnswerGroup{Kind: GroupOpenNumber, Children: []Node{
								&OpenAnswer{Value: "4"},
							}},
						},
					},
					&Problem{
						Statement: "Name the capital of France.",
						Points:    domain.Points{Correct: 3, Blank: 1, Wrong: -1},
						Children: []Node{
							&AnswerGroup{Kind: GroupOpenText, Children: []Node{
								&OpenAnswer{Value: "Paris"},
							}},
						},
					},
					&Problem{
						Statement: "Build a working circuit.",
						Points:    domain.Points{Correct: 10, Blank: 0, Wrong: 0},
						Children: []Node{
							&AnswerGroup{Kind: GroupComplex},
						},
					},
				},
			},
		},
	}
}

func TestTransformDeterministicAndPure(t *testing.T) {
	tree := sampleTree()
	before, err := MarshalNode(tree)
	require.NoError(t, err)

	first, err := Transform(tree, "V1")
	require.NoError(t, err)
	second, err := Transform(tree, "V1")
	require.NoError(t, err)

	firstBytes, err := MarshalNode(first.Tree)
	require.NoError(t, err)
	secondBytes, err := MarshalNode(second.Tree)
	require.NoError(t, err)
	require.Equal(t, string(firstBytes), string(secondBytes), "same variant must shuffle identically")
	require.Equal(t, first.Schema, second.Schema)
	require.Equal(t, first.Solution, second.Solution)

	after, err := MarshalNode(tree)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after), "transform must not mutate its input")
}

func TestTransformSchemaInvariants(t *testing.T) {
	tree := sampleTree()

	v1, err := Transform(tree, "C1-A")
	require.NoError(t, err)
	v2, err := Transform(tree, "C1-B")
	require.NoError(t, err)

	require.Len(t, v1.Schema, 5)
	require.Len(t, v2.Schema, 5)

	// Presented ids are a contiguous variant-local numbering.
	for id := 1; id <= len(v1.Schema); id++ {
		entry, ok := v1.Schema[id]
		require.True(t, ok, "missing presented id %d", id)
		require.Equal(t, id, entry.PresentedID)
	}

	// The original id set and its point tuples are shuffle-invariant.
	byOriginal := func(s domain.Schema) map[int]domain.Problem {
		out := map[int]domain.Problem{}
		for _, p := range s {
			out[p.OriginalID] = p
		}
		return out
	}
	o1, o2 := byOriginal(v1.Schema), byOriginal(v2.Schema)
	require.Len(t, o1, len(v1.Schema), "original ids must be unique")
	for id, p1 := range o1 {
		p2, ok := o2[id]
		require.True(t, ok, "original id %d missing from second variant", id)
		require.Equal(t, p1.Points, p2.Points)
		require.Equal(t, p1.Type, p2.Type)
	}

	// Every schema entry has a solution, and choice options read A, B, C, ...
	for id, p := range v1.Schema {
		_, ok := v1.Solution[id]
		require.True(t, ok, "missing solution for %d", id)
		for i, label := range p.Options {
			require.Equal(t, optionLabel(i), label)
		}
	}
}

func TestTransformSolutionMatchesShuffledLabels(t *testing.T) {
	tree := sampleTree()
	res, err := Transform(tree, "V9")
	require.NoError(t, err)

	// Walk the shuffled tree and check the solution against the labels
	// actually presented.
	var walk func(n Node, pid *int)
	walk = func(n Node, pid *int) {
		switch v := n.(type) {
		case *Section:
			for _, c := range v.Children {
				walk(c, pid)
			}
		case *Problem:
			*pid = v.PresentedID
			for _, c := range v.Children {
				walk(c, pid)
			}
		case *AnswerGroup:
			if v.Kind != GroupAnyCorrect {
				return
			}
			sol := res.Solution[*pid]
			require.Equal(t, domain.AnswerChoice, sol.Kind)
			for _, c := range v.Children {
				a := c.(*Answer)
				if a.Correct {
					require.Equal(t, a.Label, sol.Choice)
				} else {
					require.NotEqual(t, a.Label, sol.Choice)
				}
			}
		}
	}
	var pid int
	walk(res.Tree, &pid)
}

func TestTransformOptionTableRoundTrip(t *testing.T) {
	tree := sampleTree()
	res, err := Transform(tree, "V3")
	require.NoError(t, err)

	for id, p := range res.Schema {
		if p.Type != domain.MultipleChoice && p.Type != domain.MultipleResponse {
			continue
		}
		seen := map[int]bool{}
		for _, label := range p.Options {
			idx, ok := res.OriginalOption(id, label)
			require.True(t, ok, "label %s of problem %d has no authored index", label, id)
			require.False(t, seen[idx], "authored index %d mapped twice", idx)
			require.Less(t, idx, len(p.Options))
			seen[idx] = true
		}
	}
}

func TestTransformValidation(t *testing.T) {
	wrap := func(p *Problem) *Section {
		return &Section{Children: []Node{p}}
	}

	cases := []struct {
		name string
		tree *Section
	}{
		{
			name: "no correct option",
			tree: wrap(&Problem{
				Points: domain.Points{Correct: 5, Blank: 1, Wrong: 0},
				Children: []Node{&AnswerGroup{Kind: GroupAnyCorrect, Children: []Node{
					&Answer{Text: "a"}, &Answer{Text: "b"},
				}}},
			}),
		},
		{
			name: "empty open value",
			tree: wrap(&Problem{
				Points:   domain.Points{Correct: 5, Blank: 1, Wrong: 0},
				Children: []Node{&AnswerGroup{Kind: GroupOpenText, Children: []Node{&OpenAnswer{}}}},
			}),
		},
		{
			name: "non numeric open number",
			tree: wrap(&Problem{
				Points:   domain.Points{Correct: 5, Blank: 1, Wrong: 0},
				Children: []Node{&AnswerGroup{Kind: GroupOpenNumber, Children: []Node{&OpenAnswer{Value: "four"}}}},
			}),
		},
		{
			name: "missing answer group",
			tree: wrap(&Problem{
				Points:   domain.Points{Correct: 5, Blank: 1, Wrong: 0},
				Children: []Node{&SubProblem{Statement: "prose only"}},
			}),
		},
		{
			name: "invalid points tuple",
			tree: wrap(&Problem{
				Points: domain.Points{Correct: 1, Blank: 1, Wrong: 0},
				Children: []Node{&AnswerGroup{Kind: GroupAnyCorrect, Children: []Node{
					&Answer{Text: "a", Correct: true},
				}}},
			}),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Transform(tc.tree, "V1")
			require.Error(t, err)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestStripSolutions(t *testing.T) {
	res, err := Transform(sampleTree(), "V1")
	require.NoError(t, err)

	public := StripSolutions(res.Tree)

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
			for _, c := range v.Children {
				walk(c)
			}
		case *Answer:
			if v.Correct {
				t.Fatalf("public tree leaks a correct flag on %q", v.Text)
			}
		case *OpenAnswer:
			if v.Value != "" {
				t.Fatalf("public tree leaks open value %q", v.Value)
			}
		}
	}
	walk(public)
}

func TestTreeCodecRoundTrip(t *testing.T) {
	res, err := Transform(sampleTree(), "V1")
	require.NoError(t, err)

	data, err := MarshalNode(res.Tree)
	require.NoError(t, err)
	decoded, err := DecodeRoot(data)
	require.NoError(t, err)

	again, err := MarshalNode(decoded)
	require.NoError(t, err)
	require.Equal(t, string(data), string(again))
}
