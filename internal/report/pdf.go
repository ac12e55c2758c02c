package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"rps_arena/internal/domain/user"
)

var historyColumns = []struct {
	title string
	width float64
}{
	{"Date", 42},
	{"Opponent", 48},
	{"Result", 25},
	{"Rounds won", 30},
	{"Rounds lost", 30},
}

// History renders a player's record and match history as a PDF.
func History(w io.Writer, profile user.Profile, stats user.Stats, games []user.RecentGame, generated time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Match history of "+profile.Username, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Match history: "+profile.Username)
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, "Generated "+generated.UTC().Format(time.RFC1123))
	pdf.Ln(10)

	summary := []string{
		fmt.Sprintf("Games: %d  (won %d, lost %d, drawn %d)", stats.Total, stats.Wins, stats.Losses, stats.Draws),
		fmt.Sprintf("Rounds: won %d, lost %d, drawn %d", stats.RoundsWon, stats.RoundsLost, stats.RoundsDrawn),
		fmt.Sprintf("Win rate: %.0f%%  Current streak: %d", stats.WinRate*100, stats.WinStreak),
	}
	for _, line := range summary {
		pdf.Cell(0, 6, line)
		pdf.Ln(6)
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range historyColumns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	if len(games) == 0 {
		pdf.CellFormat(totalWidth(), 7, "No completed games yet", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	for _, g := range games {
		opponent := g.OpponentUsername
		if opponent == "" {
			opponent = "(deleted)"
		}
		row := []string{
			g.CreatedAt.UTC().Format("2006-01-02 15:04"),
			opponent,
			strings.ToUpper(g.Result),
			fmt.Sprint(g.RoundsWon),
			fmt.Sprint(g.RoundsLost),
		}
		for i, col := range historyColumns {
			pdf.CellFormat(col.width, 7, row[i], "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}

func totalWidth() float64 {
	var sum float64
	for _, col := range historyColumns {
		sum += col.width
	}
	return sum
}
