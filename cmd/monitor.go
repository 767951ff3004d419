package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"
	"github.com/webitel/code-delivery-service/internal/domain/model"
)

const sparkWindow = 60

func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:    "monitor",
		Aliases: []string{"m"},
		Usage:   "Live terminal dashboard for a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://localhost:5000", Usage: "Base URL of the server"},
			&cli.DurationFlag{Name: "interval", Value: 2 * time.Second, Usage: "Refresh interval"},
		},
		Action: func(c *cli.Context) error {
			return runMonitor(c.Context, c.String("addr"), c.Duration("interval"))
		},
	}
}

// fetchStats reads one snapshot from the server's /stats endpoint.
func fetchStats(ctx context.Context, client *http.Client, addr string) (model.ServerStats, error) {
	var stats model.ServerStats

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(addr, "/")+"/stats", nil)
	if err != nil {
		return stats, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return stats, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("stats: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("stats: decode: %w", err)
	}
	return stats, nil
}

// statsRows flattens a snapshot into the dashboard table.
func statsRows(s model.ServerStats) [][]string {
	cache := "UP"
	if !s.CacheAvailable {
		cache = "DOWN"
	}
	lastSync := "never"
	if !s.Sync.LastRunAt.IsZero() {
		lastSync = s.Sync.LastRunAt.Format(time.RFC3339)
	}
	return [][]string{
		{"metric", "value"},
		{"connections", strconv.Itoa(s.Registry.TotalConnections)},
		{"stream", strconv.Itoa(s.Registry.StreamConnections)},
		{"push", strconv.Itoa(s.Registry.PushConnections)},
		{"users", strconv.Itoa(s.Registry.Users)},
		{"push groups", strconv.Itoa(s.PushGroups)},
		{"shared cache", cache},
		{"last sync", fmt.Sprintf("%d users at %s", s.Sync.LastCount, lastSync)},
		{"sync runs", fmt.Sprintf("%d (%d failed)", s.Sync.TotalRuns, s.Sync.Failed)},
		{"uptime", s.Uptime},
	}
}

func runMonitor(ctx context.Context, addr string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("monitor: init terminal: %w", err)
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = "code-delivery " + addr
	table.RowSeparator = false

	spark := widgets.NewSparkline()
	spark.LineColor = ui.ColorGreen
	group := widgets.NewSparklineGroup(spark)
	group.Title = "connections"

	status := widgets.NewParagraph()
	status.Title = "status"
	status.Text = "connecting..."

	grid := ui.NewGrid()
	w, h := ui.TerminalDimensions()
	grid.SetRect(0, 0, w, h)
	grid.Set(
		ui.NewRow(0.6, ui.NewCol(1.0, table)),
		ui.NewRow(0.3, ui.NewCol(1.0, group)),
		ui.NewRow(0.1, ui.NewCol(1.0, status)),
	)

	client := &http.Client{Timeout: interval}
	history := make([]float64, 0, sparkWindow)

	refresh := func() {
		stats, err := fetchStats(ctx, client, addr)
		if err != nil {
			status.Text = "error: " + err.Error()
			ui.Render(grid)
			return
		}
		table.Rows = statsRows(stats)
		history = append(history, float64(stats.Registry.TotalConnections))
		if len(history) > sparkWindow {
			history = history[len(history)-sparkWindow:]
		}
		spark.Data = history
		status.Text = "updated " + time.Now().Format(time.TimeOnly) + "  (q to quit)"
		ui.Render(grid)
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	events := ui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				ui.Render(grid)
			}
		case <-ticker.C:
			refresh()
		}
	}
}
