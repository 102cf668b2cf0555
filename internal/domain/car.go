package domain

import "fmt"

// CarID is the racing number of a car. It is unique within a session.
type CarID int

// DriverInfo is the display metadata for one car, fetched once per session.
type DriverInfo struct {
	CarID      CarID  `json:"car_id"`
	Name       string `json:"name"`
	Acronym    string `json:"acronym,omitempty"`
	Team       string `json:"team,omitempty"`
	TeamColour string `json:"team_colour,omitempty"`
}

// Roster maps each car in the session to its driver metadata.
type Roster map[CarID]DriverInfo

// Label returns the driver's display name, or "Car #<id>" when the car is
// not in the roster.
func (r Roster) Label(id CarID) string {
	if d, ok := r[id]; ok && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("Car #%d", id)
}

// Clone returns a shallow copy so snapshots never share the tracker's map.
func (r Roster) Clone() Roster {
	out := make(Roster, len(r))
	for id, d := range r {
		out[id] = d
	}
	return out
}
