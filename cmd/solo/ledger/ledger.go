package ledgercmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/solo/cmd/solo/sqlitepath"
	"github.com/papercomputeco/solo/pkg/ledger"
)

const ledgerLongDesc string = `Show recent generation sessions from a SQLite ledger.

The ledger holds one record per session: its kind, delivery mode, outcome,
sizes and timings. Prompt and output text are never stored.

Examples:
  solo ledger
  solo ledger --outcome cancelled --limit 50
  solo ledger --sqlite /var/lib/solo/ledger.db`

const ledgerShortDesc string = "Show recent sessions from the ledger"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	borderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3d3d5c"))
	completedStyle = cellStyle.Foreground(lipgloss.Color("#4ECDC4"))
	cancelledStyle = cellStyle.Foreground(lipgloss.Color("#FFE66D"))
	failedStyle    = cellStyle.Foreground(lipgloss.Color("#FF6B6B"))
	summaryStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666680"))
)

const outcomeColumn = 3

type ledgerCommander struct {
	sqlitePath string
	limit      int
	outcome    string
}

func NewLedgerCmd() *cobra.Command {
	cmder := &ledgerCommander{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: ledgerShortDesc,
		Long:  ledgerLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the SQLite ledger")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Number of sessions to show")
	cmd.Flags().StringVar(&cmder.outcome, "outcome", "", "Only show sessions with this outcome (completed, cancelled, failed)")

	return cmd
}

func (c *ledgerCommander) run(ctx context.Context, out io.Writer) error {
	switch c.outcome {
	case "", ledger.OutcomeCompleted, ledger.OutcomeCancelled, ledger.OutcomeFailed:
	default:
		return fmt.Errorf("unknown outcome %q", c.outcome)
	}

	dbPath, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return fmt.Errorf("could not resolve ledger: %w", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no ledger at %s: %w", dbPath, err)
	}

	recorder, err := ledger.NewSQLiteRecorder(dbPath)
	if err != nil {
		return fmt.Errorf("could not open ledger %s: %w", dbPath, err)
	}
	defer recorder.Close()

	records, err := recorder.List(ctx, ledger.ListOptions{Limit: c.limit, Outcome: c.outcome})
	if err != nil {
		return fmt.Errorf("could not list sessions: %w", err)
	}

	stats, err := recorder.Stats(ctx)
	if err != nil {
		return fmt.Errorf("could not count sessions: %w", err)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
	} else {
		fmt.Fprintln(out, renderTable(records))
	}

	fmt.Fprintln(out, summaryStyle.Render(fmt.Sprintf(
		"%d sessions: %d completed, %d cancelled, %d failed",
		stats.Total, stats.Completed, stats.Cancelled, stats.Failed,
	)))

	return nil
}

func renderTable(records []*ledger.Record) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		mode := "aggregate"
		if r.Stream {
			mode = "stream"
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.Kind,
			mode,
			r.Outcome,
			r.Engine,
			strconv.Itoa(r.Chunks),
			r.Waited.Round(time.Millisecond).String(),
			r.Elapsed.Round(time.Millisecond).String(),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "KIND", "MODE", "OUTCOME", "ENGINE", "CHUNKS", "WAITED", "ELAPSED", "CREATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col != outcomeColumn || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row][outcomeColumn] {
			case ledger.OutcomeCompleted:
				return completedStyle
			case ledger.OutcomeCancelled:
				return cancelledStyle
			case ledger.OutcomeFailed:
				return failedStyle
			}
			return cellStyle
		})

	return t.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
