package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Speaker identifies which side of the conversation produced a turn.
const (
	SpeakerUser = "user"
	SpeakerTwin = "twin"
)

// Twin is the persisted user + persona record. PersonaJSON and SourcesJSON
// hold the synthesized persona and the normalized profile sources; both are
// replaced whole on every re-synthesis, never patched.
type Twin struct {
	ID                  string
	Name                string
	Bio                 string
	LetterboxdURL       string
	SpotifyRefreshToken string
	PersonaJSON         string
	SourcesJSON         string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Turn is one entry in a twin's append-only conversation log. Seq is
// assigned by SQLite (AUTOINCREMENT) and is strictly increasing per log;
// it defines both persistence order and context-window selection order.
type Turn struct {
	Seq       int64
	TwinID    string
	Speaker   string // SpeakerUser or SpeakerTwin
	Text      string
	CreatedAt time.Time
}
