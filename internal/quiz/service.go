package quiz

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
	"github.com/victornm/quizdom/internal/event"
)

const (
	// DefaultQuestionCount is used when a start request does not specify
	// how many questions to play.
	DefaultQuestionCount = 10

	// tokenBytes of entropy per session token, base64-url encoded.
	tokenBytes = 32

	anonymousPlayer = "Anonymous"
)

// QuestionRepository provides read access to the question bank.
type QuestionRepository interface {
	// Sample draws a uniformly random set of `count` distinct active
	// questions in the category. difficulty narrows the pool;
	// domain.DifficultyAny draws across every difficulty. Returns a
	// resource-exhausted error if the pool holds fewer than count questions.
	Sample(ctx context.Context, categoryID int64, difficulty domain.Difficulty, count int) ([]domain.Question, error)
	Get(ctx context.Context, questionID int64) (domain.Question, error)
	GetCategory(ctx context.Context, categoryID int64) (domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// CountQuestions counts active questions; categoryID 0 counts across all
	// categories.
	CountQuestions(ctx context.Context, categoryID int64) (int64, error)
}

// SessionStore persists quiz sessions keyed by token. Update is a
// compare-and-swap on Session.Version: an update against a stale version
// must fail with an aborted error and leave the stored session untouched.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Update(ctx context.Context, s *domain.Session) error
	Stats(ctx context.Context) (domain.SessionStats, error)
}

// LeaderboardSink receives the single entry emitted when a session completes.
type LeaderboardSink interface {
	Append(ctx context.Context, e domain.LeaderboardEntry) error
}

type Config struct {
	Questions   QuestionRepository
	Sessions    SessionStore
	Leaderboard LeaderboardSink
	EventBus    *event.Bus

	// NowFunc overrides the clock, for tests.
	NowFunc func() time.Time
}

// Service is the quiz session engine: it starts sessions, serves questions
// one at a time, grades answers and promotes completed sessions to the
// leaderboard.
//
// Two concurrent submissions against the same token race on the session
// version; the loser is rejected with a conflict error and its answer is not
// scored.
type Service struct {
	questions   QuestionRepository
	sessions    SessionStore
	leaderboard LeaderboardSink
	eb          *event.Bus
	now         func() time.Time
}

func NewService(c Config) *Service {
	now := c.NowFunc
	if now == nil {
		now = time.Now
	}

	return &Service{
		questions:   c.Questions,
		sessions:    c.Sessions,
		leaderboard: c.Leaderboard,
		eb:          c.EventBus,
		now:         now,
	}
}

type StartRequest struct {
	CategoryID    int64
	Difficulty    string
	QuestionCount int // 0 means DefaultQuestionCount
}

type StartResponse struct {
	Token   string
	Session Status
}

// Start creates a new quiz session with a fresh unguessable token and a
// fixed, randomly drawn question order. If the category holds too few
// questions at the requested difficulty, the draw falls back to all
// difficulties within the category before failing.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	difficulty, ok := domain.ParseDifficulty(req.Difficulty)
	if !ok {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid difficulty: %q", req.Difficulty))
	}

	count := req.QuestionCount
	if count == 0 {
		count = DefaultQuestionCount
	}
	if count < 0 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question count must be positive, got %d", req.QuestionCount))
	}

	category, err := s.questions.GetCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}
	if !category.Active {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("category not found: id=%d", req.CategoryID))
	}

	questions, err := s.questions.Sample(ctx, req.CategoryID, difficulty, count)
	if errors.HasCode(err, errors.CodeResourceExhausted) {
		questions, err = s.questions.Sample(ctx, req.CategoryID, domain.DifficultyAny, count)
	}
	if errors.HasCode(err, errors.CodeResourceExhausted) {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("not enough questions available: category=%d difficulty=%s count=%d", req.CategoryID, difficulty, count))
	}
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, errors.Internal(fmt.Errorf("generate session token: %w", err))
	}

	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.QuestionID)
	}

	session := &domain.Session{
		Token:       token,
		CategoryID:  req.CategoryID,
		Difficulty:  difficulty,
		QuestionIDs: ids,
		Answers:     []int{},
		StartedAt:   s.now().UTC(),
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "quiz: session started",
		"category", req.CategoryID,
		"difficulty", difficulty,
		"questions", len(ids),
	)

	return &StartResponse{
		Token:   token,
		Session: statusOf(session),
	}, nil
}

// QuestionView is a question rendered for play: the correct option index and
// the explanation are withheld until the question has been answered.
type QuestionView struct {
	QuestionID int64
	Text       string
	Difficulty domain.Difficulty
	Options    [4]string
}

type CurrentQuestionResponse struct {
	Question       QuestionView
	QuestionNumber int // 1-indexed
	TotalQuestions int
	CurrentScore   int
}

// GetCurrentQuestion returns the question at the session's current position.
// It has no side effects: repeated calls for the same position return the
// same question.
func (s *Service) GetCurrentQuestion(ctx context.Context, token string) (*CurrentQuestionResponse, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.Completed {
		return nil, errors.New(errors.CodeAborted,
			errors.WithMessagef("quiz already completed"))
	}

	q, err := s.currentQuestion(ctx, session)
	if err != nil {
		return nil, err
	}

	return &CurrentQuestionResponse{
		Question: QuestionView{
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Difficulty: q.Difficulty,
			Options:    q.Options,
		},
		QuestionNumber: session.Position + 1,
		TotalQuestions: session.TotalQuestions(),
		CurrentScore:   session.Score,
	}, nil
}

// currentQuestion loads the question at the session's position. A position
// past the end of an uncompleted session is an invariant violation.
func (s *Service) currentQuestion(ctx context.Context, session *domain.Session) (domain.Question, error) {
	if session.Position >= session.TotalQuestions() {
		err := errors.New(errors.CodeInternal,
			errors.WithMessagef("session position out of range: position=%d total=%d", session.Position, session.TotalQuestions()))
		slog.ErrorContext(ctx, "quiz: invariant violation", "error", err)
		return domain.Question{}, err
	}

	return s.questions.Get(ctx, session.QuestionIDs[session.Position])
}

type SubmitAnswerRequest struct {
	Token string
	// Answer is the 0-based index of the chosen option.
	Answer int
	// PlayerName labels the leaderboard entry when the submission completes
	// the session. Blank falls back to a placeholder.
	PlayerName string
}

type SubmitAnswerResponse struct {
	Correct       bool
	CorrectOption int
	Explanation   string
	PointsEarned  int
	CurrentScore  int
	Completed     bool

	// FinalStats is set only on the submission that completes the session.
	FinalStats *FinalStats
}

type FinalStats struct {
	TotalScore     int
	CorrectCount   int
	TotalQuestions int
	Accuracy       float64 // rounded to one decimal place
	TimeTaken      int     // whole seconds
}

// SubmitAnswer grades the answer against the current question, advances the
// session and, on the final question, completes the session and emits
// exactly one leaderboard entry.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	if req.Answer < 0 || req.Answer > 3 {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("answer must be between 0 and 3, got %d", req.Answer))
	}

	session, err := s.sessions.Get(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	if session.Completed {
		return nil, errors.New(errors.CodeAborted,
			errors.WithMessagef("quiz already completed"))
	}

	q, err := s.currentQuestion(ctx, session)
	if err != nil {
		return nil, err
	}

	correct := req.Answer == q.CorrectOption
	points := 0
	if correct {
		// Points follow the session's difficulty, not the question's,
		// so mixed-difficulty fallback draws score uniformly.
		points = session.Difficulty.Points()
		session.Score += points
		session.CorrectCount++
	}

	session.Answers = append(session.Answers, req.Answer)
	session.Position++

	completed := session.Position == session.TotalQuestions()
	if completed {
		session.Completed = true
		session.CompletedAt = s.now().UTC()
		session.TimeTaken = elapsedSeconds(session.StartedAt, session.CompletedAt)
	}

	// The CAS decides the race: only one of two concurrent submissions
	// advances the session, the other gets a conflict.
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	resp := &SubmitAnswerResponse{
		Correct:       correct,
		CorrectOption: q.CorrectOption,
		Explanation:   q.Explanation,
		PointsEarned:  points,
		CurrentScore:  session.Score,
		Completed:     completed,
	}

	if completed {
		// The session state is already committed. A leaderboard failure here
		// must not turn the submission into an error: the player would never
		// see their final stats, and a retry hits the completion conflict.
		entry, err := s.promote(ctx, session, req.PlayerName)
		if err != nil {
			slog.ErrorContext(ctx, "quiz: leaderboard entry lost", "error", err)
		} else if s.eb != nil {
			s.eb.Publish(ctx, domain.EventSessionCompleted{
				Session: *session,
				Entry:   entry,
			})
		}

		resp.FinalStats = &FinalStats{
			TotalScore:     session.Score,
			CorrectCount:   session.CorrectCount,
			TotalQuestions: session.TotalQuestions(),
			Accuracy:       domain.RoundAccuracy(session.Accuracy()),
			TimeTaken:      session.TimeTaken,
		}
	}

	return resp, nil
}

// promote appends the completed session's leaderboard entry. It runs only on
// the submission that won the completion CAS, so the entry is emitted exactly
// once per session.
func (s *Service) promote(ctx context.Context, session *domain.Session, playerName string) (domain.LeaderboardEntry, error) {
	name := strings.TrimSpace(playerName)
	if name == "" {
		name = anonymousPlayer
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.LeaderboardEntry{}, errors.Internal(fmt.Errorf("generate entry ID: %w", err))
	}

	entry := domain.LeaderboardEntry{
		EntryID:    id.String(),
		PlayerName: name,
		Score:      session.Score,
		CategoryID: session.CategoryID,
		Difficulty: session.Difficulty,
		Accuracy:   session.Accuracy(),
		TimeTaken:  session.TimeTaken,
		CreatedAt:  session.CompletedAt,
	}

	if err := s.leaderboard.Append(ctx, entry); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("append leaderboard entry: %w", err)
	}

	slog.InfoContext(ctx, "quiz: session completed",
		"score", session.Score,
		"correct", session.CorrectCount,
		"total", session.TotalQuestions(),
		"time_taken", session.TimeTaken,
	)

	return entry, nil
}

// Status is the public projection of a session.
type Status struct {
	Token          string
	CategoryID     int64
	Difficulty     domain.Difficulty
	TotalQuestions int
	Position       int
	Score          int
	CorrectCount   int
	StartedAt      time.Time
	CompletedAt    time.Time
	TimeTaken      int
	Completed      bool
}

// GetStatus returns the session's public fields. Read-only.
func (s *Service) GetStatus(ctx context.Context, token string) (*Status, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	st := statusOf(session)
	return &st, nil
}

// ListCategories returns the active quiz categories.
func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.questions.ListCategories(ctx)
	if err != nil {
		return nil, err
	}

	active := categories[:0:0]
	for _, c := range categories {
		if c.Active {
			active = append(active, c)
		}
	}

	return active, nil
}

// CategoryDetail is a single category plus its active question count.
type CategoryDetail struct {
	Category      domain.Category
	QuestionCount int64
}

func (s *Service) GetCategory(ctx context.Context, categoryID int64) (*CategoryDetail, error) {
	category, err := s.questions.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	count, err := s.questions.CountQuestions(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	return &CategoryDetail{
		Category:      category,
		QuestionCount: count,
	}, nil
}

// GeneralStats is a point-in-time snapshot of quiz activity. AverageScore and
// CompletionRate are rounded to one decimal place; PopularCategory is the
// display name of the most-played category, empty when nothing was played.
type GeneralStats struct {
	TotalQuestions    int64
	TotalSessions     int64
	CompletedSessions int64
	AverageScore      float64
	CompletionRate    float64
	PopularCategory   string
}

func (s *Service) GetGeneralStats(ctx context.Context) (*GeneralStats, error) {
	questions, err := s.questions.CountQuestions(ctx, 0)
	if err != nil {
		return nil, err
	}

	st, err := s.sessions.Stats(ctx)
	if err != nil {
		return nil, err
	}

	stats := &GeneralStats{
		TotalQuestions:    questions,
		TotalSessions:     st.TotalSessions,
		CompletedSessions: st.CompletedSessions,
		AverageScore:      domain.RoundAccuracy(st.AverageScore),
	}

	if st.TotalSessions > 0 {
		rate := float64(st.CompletedSessions) / float64(st.TotalSessions) * 100
		stats.CompletionRate = domain.RoundAccuracy(rate)
	}

	if st.PopularCategoryID != 0 {
		category, err := s.questions.GetCategory(ctx, st.PopularCategoryID)
		if err != nil {
			return nil, err
		}
		stats.PopularCategory = category.DisplayName
	}

	return stats, nil
}

func statusOf(s *domain.Session) Status {
	return Status{
		Token:          s.Token,
		CategoryID:     s.CategoryID,
		Difficulty:     s.Difficulty,
		TotalQuestions: s.TotalQuestions(),
		Position:       s.Position,
		Score:          s.Score,
		CorrectCount:   s.CorrectCount,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
		TimeTaken:      s.TimeTaken,
		Completed:      s.Completed,
	}
}

func elapsedSeconds(start, end time.Time) int {
	sec := int(end.Sub(start) / time.Second)
	if sec < 0 {
		return 0
	}
	return sec
}

// newToken returns 256 bits from crypto/rand, url-safe encoded. Tokens are
// the sole external handle to a session and must not be guessable.
func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
