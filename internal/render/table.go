package render

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/f1-live-leaderboard/internal/domain"
	"github.com/fatih/color"
)

var (
	headerColor  = color.New(color.Bold)
	runningColor = color.New(color.FgGreen)
	lappedColor  = color.New(color.FgYellow)
	retiredColor = color.New(color.FgRed, color.Faint)
	mutedColor   = color.New(color.FgHiBlack)
)

// WriteTable writes snap as an aligned, coloured table. Colour is controlled
// globally by color.NoColor.
func WriteTable(w io.Writer, snap domain.Snapshot) error {
	if !snap.Active {
		_, err := mutedColor.Fprintln(w, "No live session")
		return err
	}

	title := fmt.Sprintf("Session %d", snap.SessionKey())
	if snap.Session != nil && snap.Session.Name != "" {
		title = fmt.Sprintf("%s (%d)", snap.Session.Name, snap.Session.Key)
	}
	if _, err := headerColor.Fprintf(w, "%s  tick %d  updated %s\n", title, snap.Tick, snap.UpdatedAt.Format(time.TimeOnly)); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tNO\tDRIVER\tGAP\tINT\tSTATUS")
	for _, r := range Rows(snap) {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.Position, r.CarID, r.Driver, r.Gap, r.Interval, statusColor(r.Status).Sprint(r.StatusText))
	}
	return tw.Flush()
}

func statusColor(s domain.Status) *color.Color {
	switch s {
	case domain.StatusLapped:
		return lappedColor
	case domain.StatusRetired:
		return retiredColor
	default:
		return runningColor
	}
}
