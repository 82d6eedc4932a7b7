package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Difficulty of a quiz session. It fixes the point value awarded for every
// correct answer in that session, even when the question pool falls back to
// mixed difficulties.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"

	// DifficultyAny matches questions of every difficulty when sampling.
	DifficultyAny Difficulty = ""
)

var difficultyPoints = map[Difficulty]int{
	DifficultyEasy:   5,
	DifficultyMedium: 10,
	DifficultyHard:   15,
}

// ParseDifficulty parses a user-supplied difficulty string.
func ParseDifficulty(s string) (Difficulty, bool) {
	d := Difficulty(s)
	_, ok := difficultyPoints[d]
	return d, ok
}

// Points awarded for one correct answer at this difficulty.
func (d Difficulty) Points() int {
	return difficultyPoints[d]
}

type Category struct {
	CategoryID  int64
	Name        string
	DisplayName string
	Description string
	Active      bool
}

// Question is an immutable snapshot of a multiple-choice question.
// CorrectOption indexes into Options and must never be exposed before the
// question has been answered.
type Question struct {
	QuestionID    int64
	Text          string
	CategoryID    int64
	Difficulty    Difficulty
	Options       [4]string
	CorrectOption int
	Explanation   string
	Active        bool
}

// Session is one player's quiz attempt, identified by an opaque token.
//
// Invariants: 0 <= Position <= len(QuestionIDs), len(Answers) == Position,
// and Completed iff Position == len(QuestionIDs). Once Completed is set the
// session is immutable.
type Session struct {
	Token        string
	CategoryID   int64
	Difficulty   Difficulty
	QuestionIDs  []int64
	Answers      []int
	Position     int
	Score        int
	CorrectCount int
	StartedAt    time.Time
	CompletedAt  time.Time
	TimeTaken    int // whole seconds
	Completed    bool

	// Version guards concurrent updates: stores reject an update whose
	// version does not match the stored one.
	Version int64
}

func (s *Session) TotalQuestions() int {
	return len(s.QuestionIDs)
}

// Accuracy is the percentage of answered questions that were correct.
func (s *Session) Accuracy() float64 {
	if len(s.QuestionIDs) == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(len(s.QuestionIDs)) * 100
}

// RoundAccuracy rounds an accuracy percentage to one decimal place.
func RoundAccuracy(accuracy float64) float64 {
	f, _ := decimal.NewFromFloat(accuracy).Round(1).Float64()
	return f
}

// SessionStats aggregates stored sessions. AverageScore covers completed
// sessions only; PopularCategoryID is 0 when no sessions exist.
type SessionStats struct {
	TotalSessions     int64
	CompletedSessions int64
	AverageScore      float64
	PopularCategoryID int64
}

// LeaderboardEntry is the immutable record of one completed session,
// created exactly once at the completion transition.
type LeaderboardEntry struct {
	EntryID    string
	PlayerName string
	Score      int
	CategoryID int64
	Difficulty Difficulty
	Accuracy   float64
	TimeTaken  int
	CreatedAt  time.Time
}

// Leaderboard is an ordered ranking slice: score descending, then time
// taken ascending.
type Leaderboard struct {
	CategoryID int64
	Difficulty Difficulty
	Entries    []LeaderboardEntry
}
