// matchctl is the operator CLI for a running match engine: inspect the
// scheduler, trigger a tick, and print standings straight from the store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"alpharoyale/internal/config"
	"alpharoyale/internal/notify"
	"alpharoyale/internal/server"
	"alpharoyale/internal/store"
	"alpharoyale/pkg/cli"
	"alpharoyale/pkg/logging"
)

const usage = `Usage: matchctl <command> [flags]

Commands:
  status     show scheduler state, current tick and active game count
  tick       trigger one driver run
  standings  print a game's standings and recent equity history

Run 'matchctl <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "status":
		err = runStatus(os.Args[2:])
	case "tick":
		err = runTick(os.Args[2:])
	case "standings":
		err = runStandings(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "matchctl: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Control server address")
	fs.Parse(args)

	if err := cli.ValidateAddr(*addr); err != nil {
		return err
	}

	var status server.StatusResponse
	if err := getJSON(*addr+"/v1/status", &status); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Schedule", "Running", "Timer", "Period", "Last Tick", "Last Error")
	timer := "idle"
	if status.Scheduler.TimerPending {
		timer = "armed"
	}
	table.Append(
		status.Scheduler.Name,
		fmt.Sprintf("%t", status.Scheduler.Running),
		timer,
		status.Scheduler.Period,
		fmt.Sprintf("%d", status.Scheduler.LastTick),
		status.Scheduler.LastError,
	)
	table.Render()

	fmt.Printf("\ncurrent tick: %d\nactive games: %d\n", status.CurrentTick, status.ActiveGames)
	return nil
}

func runTick(args []string) error {
	fs := flag.NewFlagSet("tick", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Control server address")
	fs.Parse(args)

	if err := cli.ValidateAddr(*addr); err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(*addr+"/v1/tick", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body struct {
		Tick  int64  `json:"tick"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tick failed: %s", body.Error)
	}
	fmt.Printf("tick advanced to %d\n", body.Tick)
	return nil
}

func runStandings(args []string) error {
	fs := flag.NewFlagSet("standings", flag.ExitOnError)
	dsn := fs.String("db", "alpharoyale.db", "SQLite database path")
	gameID := fs.String("game", "", "Game id")
	points := fs.Int("history", 10, "Equity-history points to show per player")
	fs.Parse(args)

	if err := cli.ValidateGameID(*gameID); err != nil {
		return err
	}

	logger, err := logging.NewZapLogger("ERROR")
	if err != nil {
		return err
	}
	st, err := store.NewSQLite(*dsn, 0, config.DurationBounds{Min: 1, Max: 1440}, notify.NopNotifier{}, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	game, ok, err := st.Game(ctx, *gameID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("game %s not found", *gameID)
	}

	standings, err := st.Standings(ctx, *gameID)
	if err != nil {
		return err
	}

	fmt.Printf("game %s  status=%s\n\n", game.ID, game.Status)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rank", "Player", "Balance", "Equity")
	for i, player := range standings {
		table.Append(
			fmt.Sprintf("%d", i+1),
			player.UserID,
			player.Balance.StringFixed(2),
			player.Equity.StringFixed(2),
		)
	}
	table.Render()
	if game.WinnerID != nil {
		fmt.Printf("\nwinner: %s\n", *game.WinnerID)
	}

	for _, player := range standings {
		history, err := st.EquityHistory(ctx, *gameID, player.UserID)
		if err != nil {
			return err
		}
		if len(history) > *points {
			history = history[len(history)-*points:]
		}

		fmt.Printf("\nequity history: %s\n", player.UserID)
		ht := tablewriter.NewWriter(os.Stdout)
		ht.Header("Tick", "Balance", "Equity")
		for _, point := range history {
			ht.Append(
				fmt.Sprintf("%d", point.Tick),
				point.Balance.StringFixed(2),
				point.Equity.StringFixed(2),
			)
		}
		ht.Render()
	}
	return nil
}

func getJSON(url string, v interface{}) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
