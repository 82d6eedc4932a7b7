package domain

const (
	EventNameSessionCompleted   = "session.completed"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventSessionCompleted struct {
	Session Session
	Entry   LeaderboardEntry
}

func (EventSessionCompleted) Name() string { return EventNameSessionCompleted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
