package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
	"github.com/victornm/quizdom/internal/event"
	"github.com/victornm/quizdom/internal/leaderboard"
	"github.com/victornm/quizdom/internal/quiz"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Quiz         *quiz.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// API binds the quiz engine and the leaderboard to HTTP.
type API struct {
	quiz *quiz.Service
	lb   *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		quiz:   c.Quiz,
		lb:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	g := c.Router.Group("/api")
	g.GET("/health", a.Health)
	g.GET("/categories", a.ListCategories)
	g.GET("/categories/:id", a.GetCategory)
	g.GET("/stats/general", a.GetGeneralStats)
	g.POST("/quiz/start", a.StartQuiz)
	g.GET("/quiz/:token/question", a.GetCurrentQuestion)
	g.POST("/quiz/:token/answer", a.SubmitAnswer)
	g.GET("/quiz/:token/status", a.GetQuizStatus)
	g.GET("/leaderboard", a.GetLeaderboard)
	g.GET("/leaderboard/top", a.GetTopScores)

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type CategoryResponse struct {
	CategoryID  int64  `json:"category_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func (a *API) ListCategories(c *gin.Context) {
	categories, err := a.quiz.ListCategories(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]CategoryResponse, 0, len(categories))
	for _, cat := range categories {
		out = append(out, CategoryResponse{
			CategoryID:  cat.CategoryID,
			Name:        cat.Name,
			DisplayName: cat.DisplayName,
			Description: cat.Description,
		})
	}

	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (a *API) GetCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid category id: %q", c.Param("id")),
			errors.WithCause(err)))
		return
	}

	detail, err := a.quiz.GetCategory(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category_id":    detail.Category.CategoryID,
		"name":           detail.Category.Name,
		"display_name":   detail.Category.DisplayName,
		"description":    detail.Category.Description,
		"question_count": detail.QuestionCount,
	})
}

func (a *API) GetGeneralStats(c *gin.Context) {
	stats, err := a.quiz.GetGeneralStats(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}

	popular := stats.PopularCategory
	if popular == "" {
		popular = "N/A"
	}

	c.JSON(http.StatusOK, gin.H{
		"total_questions":       stats.TotalQuestions,
		"total_sessions":        stats.TotalSessions,
		"completed_sessions":    stats.CompletedSessions,
		"average_score":         stats.AverageScore,
		"completion_rate":       stats.CompletionRate,
		"most_popular_category": popular,
	})
}

type StartQuizRequest struct {
	CategoryID     int64  `json:"category_id"`
	Difficulty     string `json:"difficulty"`
	QuestionsCount int    `json:"questions_count"`
}

type QuizInfo struct {
	SessionToken    string `json:"session_token"`
	CategoryID      int64  `json:"category_id"`
	Difficulty      string `json:"difficulty"`
	TotalQuestions  int    `json:"total_questions"`
	CurrentQuestion int    `json:"current_question"`
	Score           int    `json:"score"`
	CorrectAnswers  int    `json:"correct_answers"`
	StartedAt       string `json:"started_at"`
	CompletedAt     string `json:"completed_at,omitempty"`
	IsCompleted     bool   `json:"is_completed"`
	TimeTaken       int    `json:"time_taken"`
}

func (a *API) StartQuiz(c *gin.Context) {
	var req StartQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err)))
		return
	}

	resp, err := a.quiz.Start(c.Request.Context(), quiz.StartRequest{
		CategoryID:    req.CategoryID,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionsCount,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_token": resp.Token,
		"quiz_info":     quizInfo(resp.Session),
	})
}

type QuestionResponse struct {
	QuestionID int64     `json:"id"`
	Question   string    `json:"question"`
	Difficulty string    `json:"difficulty"`
	Options    [4]string `json:"options"`
}

func (a *API) GetCurrentQuestion(c *gin.Context) {
	resp, err := a.quiz.GetCurrentQuestion(c.Request.Context(), c.Param("token"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"question": QuestionResponse{
			QuestionID: resp.Question.QuestionID,
			Question:   resp.Question.Text,
			Difficulty: string(resp.Question.Difficulty),
			Options:    resp.Question.Options,
		},
		"question_number": resp.QuestionNumber,
		"total_questions": resp.TotalQuestions,
		"current_score":   resp.CurrentScore,
	})
}

type SubmitAnswerRequest struct {
	Answer     *int   `json:"answer"`
	PlayerName string `json:"player_name"`
}

type FinalStats struct {
	TotalScore     int     `json:"total_score"`
	CorrectAnswers int     `json:"correct_answers"`
	TotalQuestions int     `json:"total_questions"`
	Accuracy       float64 `json:"accuracy"`
	TimeTaken      int     `json:"time_taken"`
}

func (a *API) SubmitAnswer(c *gin.Context) {
	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body"),
			errors.WithCause(err)))
		return
	}

	if req.Answer == nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("missing answer")))
		return
	}

	resp, err := a.quiz.SubmitAnswer(c.Request.Context(), quiz.SubmitAnswerRequest{
		Token:      c.Param("token"),
		Answer:     *req.Answer,
		PlayerName: req.PlayerName,
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := gin.H{
		"is_correct":     resp.Correct,
		"correct_answer": resp.CorrectOption,
		"explanation":    resp.Explanation,
		"points_earned":  resp.PointsEarned,
		"current_score":  resp.CurrentScore,
		"quiz_completed": resp.Completed,
	}

	if resp.FinalStats != nil {
		out["final_stats"] = FinalStats{
			TotalScore:     resp.FinalStats.TotalScore,
			CorrectAnswers: resp.FinalStats.CorrectCount,
			TotalQuestions: resp.FinalStats.TotalQuestions,
			Accuracy:       resp.FinalStats.Accuracy,
			TimeTaken:      resp.FinalStats.TimeTaken,
		}
	}

	c.JSON(http.StatusOK, out)
}

func (a *API) GetQuizStatus(c *gin.Context) {
	st, err := a.quiz.GetStatus(c.Request.Context(), c.Param("token"))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, quizInfo(*st))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	var req struct {
		CategoryID int64  `form:"category_id"`
		Difficulty string `form:"difficulty"`
		Limit      int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid query parameters"),
			errors.WithCause(err)))
		return
	}

	entries, err := a.lb.Query(c.Request.Context(), leaderboard.QueryRequest{
		CategoryID: req.CategoryID,
		Difficulty: req.Difficulty,
		Limit:      req.Limit,
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   leaderboardEntries(entries),
		"total_entries": len(entries),
	})
}

func (a *API) GetTopScores(c *gin.Context) {
	var req struct {
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid query parameters"),
			errors.WithCause(err)))
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	entries, err := a.lb.Top(c.Request.Context(), limit)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"top_scores": leaderboardEntries(entries)})
}

func quizInfo(st quiz.Status) QuizInfo {
	info := QuizInfo{
		SessionToken:    st.Token,
		CategoryID:      st.CategoryID,
		Difficulty:      string(st.Difficulty),
		TotalQuestions:  st.TotalQuestions,
		CurrentQuestion: st.Position,
		Score:           st.Score,
		CorrectAnswers:  st.CorrectCount,
		StartedAt:       st.StartedAt.UTC().Format(time.RFC3339),
		IsCompleted:     st.Completed,
		TimeTaken:       st.TimeTaken,
	}

	if !st.CompletedAt.IsZero() {
		info.CompletedAt = st.CompletedAt.UTC().Format(time.RFC3339)
	}

	return info
}

func leaderboardEntries(entries []domain.LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, LeaderboardEntry{
			PlayerName: e.PlayerName,
			Score:      e.Score,
			CategoryID: e.CategoryID,
			Difficulty: string(e.Difficulty),
			Accuracy:   domain.RoundAccuracy(e.Accuracy),
			TimeTaken:  e.TimeTaken,
			Date:       e.CreatedAt.UTC().Format(time.DateOnly),
		})
	}
	return out
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
