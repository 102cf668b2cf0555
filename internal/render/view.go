package render

import (
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
)

// View is the JSON document served to live-view clients.
type View struct {
	Active    bool            `json:"active"`
	Session   *domain.Session `json:"session,omitempty"`
	Tick      uint64          `json:"tick"`
	UpdatedAt time.Time       `json:"updated_at"`
	Rows      []Row           `json:"rows"`
}

// NewView builds the client document for snap.
func NewView(snap domain.Snapshot) View {
	return View{
		Active:    snap.Active,
		Session:   snap.Session,
		Tick:      snap.Tick,
		UpdatedAt: snap.UpdatedAt,
		Rows:      Rows(snap),
	}
}
