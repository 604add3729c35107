package model

import "time"

// JokeStatus is the lifecycle state of a joke.
//
//	pending ──► completed
//	   │            ▲
//	   └──► failed ─┘  (retry)
type JokeStatus string

const (
	JokePending   JokeStatus = "pending"
	JokeCompleted JokeStatus = "completed"
	JokeFailed    JokeStatus = "failed"
)

// Joke is a single joke owned by a user. UserID never changes after creation.
type Joke struct {
	ID        string     `json:"id"        db:"id"`
	UserID    string     `json:"userId"    db:"user_id"`
	Text      string     `json:"text"      db:"text"`
	Status    JokeStatus `json:"status"    db:"status"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}

// JokeOperation names the kind of row change carried by a JokeEvent.
type JokeOperation string

const (
	JokeInserted JokeOperation = "insert"
	JokeUpdated  JokeOperation = "update"
)

// JokeEvent is one row-level change pushed through the change feed.
type JokeEvent struct {
	Operation JokeOperation `json:"operation"`
	Joke      Joke          `json:"joke"`
}
