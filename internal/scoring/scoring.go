// Package scoring grades submitted answers against a variant schema.
// Everything here is a pure function over value types: no shared state,
// safe to recompute at any time with arbitrary parallelism.
package scoring

import (
	"contest-variant-service/internal/domain"
)

// ProblemPoints grades a single answer. A nil or empty answer earns the
// blank points; otherwise the answer is compared with exact equality
// against the problem's correct answer.
func ProblemPoints(p domain.Problem, correct domain.Answer, answer *domain.Answer) int {
	if answer == nil || isBlank(p.Type, *answer) {
		return p.Points.Blank
	}

	switch p.Type {
	case domain.OpenNumber:
		if answer.Kind == domain.AnswerNumber && answer.Number == correct.Number {
			return p.Points.Correct
		}
	case domain.OpenText:
		if answer.Kind == domain.AnswerText && answer.Text == correct.Text {
			return p.Points.Correct
		}
	case domain.MultipleChoice:
		if answer.Kind == domain.AnswerChoice && answer.Choice == correct.Choice {
			return p.Points.Correct
		}
	case domain.MultipleResponse:
		if answer.Kind == domain.AnswerChoices && sameSet(answer.Choices, correct.Choices) {
			return p.Points.Correct
		}
	case domain.Complex:
		if answer.Kind == domain.AnswerComplex && answer.Display == domain.DisplayPass {
			return p.Points.Correct
		}
	}
	return p.Points.Wrong
}

// Score totals a student's answers over every problem in the schema,
// treating missing answers as blank. It returns nil when the score is
// undefined: absent or disabled students, or missing schema/answers.
// Totals may be negative when wrong answers carry penalties.
func Score(student domain.Student, schema domain.Schema, solution domain.Solution) *int {
	if student.Absent || student.Disabled || schema == nil || student.Answers == nil {
		return nil
	}
	total := 0
	for id, p := range schema {
		correct := solution[id]
		if answer, ok := student.Answers[id]; ok {
			total += ProblemPoints(p, correct, &answer)
		} else {
			total += ProblemPoints(p, correct, nil)
		}
	}
	return &total
}

// PerProblemPoints breaks a student's score down by presented id, for
// export and scoreboard tooling. Undefined under the same conditions as
// Score, returning nil.
func PerProblemPoints(student domain.Student, schema domain.Schema, solution domain.Solution) map[int]int {
	if student.Absent || student.Disabled || schema == nil || student.Answers == nil {
		return nil
	}
	out := make(map[int]int, len(schema))
	for id, p := range schema {
		correct := solution[id]
		if answer, ok := student.Answers[id]; ok {
			out[id] = ProblemPoints(p, correct, &answer)
		} else {
			out[id] = ProblemPoints(p, correct, nil)
		}
	}
	return out
}

// isBlank reports whether an answer counts as unanswered for its type.
func isBlank(t domain.ProblemType, a domain.Answer) bool {
	switch t {
	case domain.OpenText:
		return a.Kind == domain.AnswerText && a.Text == ""
	case domain.MultipleChoice:
		return a.Kind == domain.AnswerChoice && a.Choice == ""
	case domain.MultipleResponse:
		return a.Kind == domain.AnswerChoices && len(a.Choices) == 0
	case domain.Complex:
		return a.Kind == domain.AnswerComplex && a.Display == ""
	}
	return false
}

// sameSet compares two label collections as unordered sets; duplicates
// are not tolerated as distinct members.
func sameSet(got, want []string) bool {
	gotSet := make(map[string]struct{}, len(got))
	for _, v := range got {
		gotSet[v] = struct{}{}
	}
	wantSet := make(map[string]struct{}, len(want))
	for _, v := range want {
		wantSet[v] = struct{}{}
	}
	if len(gotSet) != len(wantSet) {
		return false
	}
	for v := range wantSet {
		if _, ok := gotSet[v]; !ok {
			return false
		}
	}
	return true
}
