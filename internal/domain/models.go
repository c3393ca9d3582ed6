package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// ProblemType enumerates the five supported answer shapes.
type ProblemType string

const (
	OpenNumber       ProblemType = "openNumber"
	OpenText         ProblemType = "openText"
	MultipleChoice   ProblemType = "multipleChoice"
	MultipleResponse ProblemType = "multipleResponse"
	Complex          ProblemType = "complex"
)

// Points holds the grading tuple for one problem.
type Points struct {
	Correct int `json:"correct"`
	Blank   int `json:"blank"`
	Wrong   int `json:"wrong"`
}

// Problem is the grading view of one statement problem. OriginalID is
// assigned once in authoring order and is identical across variants;
// PresentedID is assigned per variant after shuffling and is what the
// student sees.
type Problem struct {
	PresentedID int         `json:"presentedId"`
	OriginalID  int         `json:"originalId"`
	Type        ProblemType `json:"type"`
	Options     []string    `json:"options,omitempty"` // choice types only, in presented order
	Points      Points      `json:"points"`
}

// Schema maps presented problem ids to grading metadata. Keys are a
// contiguous variant-local numbering starting at 1.
type Schema map[int]Problem

// Solution maps presented problem ids to the correct answer. It is only
// attached to printed solution copies, never to online artifacts.
type Solution map[int]Answer

// AnswerKind mirrors ProblemType on the submission side.
type AnswerKind string

const (
	AnswerNumber  AnswerKind = "number"
	AnswerText    AnswerKind = "text"
	AnswerChoice  AnswerKind = "choice"
	AnswerChoices AnswerKind = "choices"
	AnswerComplex AnswerKind = "complex"
)

// ComplexDisplay is the externally graded outcome of a complex problem.
type ComplexDisplay string

const (
	DisplayPass ComplexDisplay = "pass"
	DisplayFail ComplexDisplay = "fail"
)

// Answer is a closed tagged union over the five answer shapes. Exactly
// the field matching Kind carries the value.
type Answer struct {
	Kind     AnswerKind        `json:"kind"`
	Number   int               `json:"number,omitempty"`
	Text     string            `json:"text,omitempty"`
	Choice   string            `json:"choice,omitempty"`
	Choices  []string          `json:"choices,omitempty"`
	Display  ComplexDisplay    `json:"display,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Variant is one fully shuffled instance of a contest statement.
type Variant struct {
	ID        string `json:"id"`
	ContestID string `json:"contestId"`
	IsOnline  bool   `json:"isOnline"`
	IsPdf     bool   `json:"isPdf"`
	Schema    Schema `json:"schema"`
}

// Participation is a contest run a group of students registers into,
// addressed by its join token.
type Participation struct {
	ID        string
	ContestID string
	Token     string
	StartedAt *time.Time
}

// IdentityField is one identifying attribute collected at registration.
// Exempt fields (e.g. free-form classroom notes) are excluded from
// duplicate detection.
type IdentityField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Exempt bool   `json:"exempt,omitempty"`
}

// Student is one registered contestant.
type Student struct {
	ID              string
	ParticipationID string
	ContestID       string
	Token           string
	Variant         string
	SessionID       string
	IdentityHash    string
	Identity        []IdentityField
	Answers         map[int]Answer
	Score           *int // derived, cached; nil until computed
	Disabled        bool
	Absent          bool
	CreatedAt       time.Time
}

// RestoreStatus tracks the lifecycle of a device-handoff request.
type RestoreStatus string

const (
	RestorePending  RestoreStatus = "pending"
	RestoreApproved RestoreStatus = "approved"
	RestoreRevoked  RestoreStatus = "revoked"
)

// RestoreRequest is created when a duplicate identity registers under
// the same token and must be approved out-of-band by a teacher.
type RestoreRequest struct {
	ID              string
	StudentID       string
	ParticipationID string
	Token           string
	SessionID       string
	ApprovalCode    string // 3 digits, spoken aloud to the teacher
	Status          RestoreStatus
	CreatedAt       time.Time
}

// NormalizeIdentity canonicalizes one identity value: surrounding space
// trimmed, inner whitespace runs collapsed to a single space, Unicode
// lower-cased. Every caller of IdentityHash must go through this rule,
// otherwise duplicate detection silently breaks.
func NormalizeIdentity(value string) string {
	return strings.ToLower(strings.Join(strings.Fields(value), " "))
}

// IdentityHash digests the non-exempt identity fields into the hex key
// used for duplicate detection and variant bucketing. Fields are sorted
// by name so callers need not agree on ordering.
func IdentityHash(fields []IdentityField) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Exempt {
			continue
		}
		lines = append(lines, NormalizeIdentity(f.Name)+"="+NormalizeIdentity(f.Value))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
