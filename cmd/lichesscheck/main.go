package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chessinsight/internal/config"
	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
	"chessinsight/internal/obslog"
	"chessinsight/internal/stats"
	"chessinsight/internal/syncer"
)

const dateLayout = "2006-01-02 15:04:05"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: lichesscheck <lichess id> [days]")
		os.Exit(2)
	}
	id := syncer.NormalizeID(os.Args[1])
	days := 10
	if len(os.Args) > 2 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n <= 0 {
			fmt.Fprintln(os.Stderr, "days must be a positive number")
			os.Exit(2)
		}
		days = n
	}
	if err := run(id, days, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "lichesscheck:", err)
		os.Exit(1)
	}
}

func run(id string, days int, out io.Writer) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	log, closeLog, err := obslog.New(obslog.Options{
		Level:  cfg.Log.Level,
		Format: "console",
		Out:    os.Stderr,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	token := cfg.Lichess.Token
	if token == "" {
		if token, err = lichess.LoadToken(cfg.Lichess.TokenFile); err != nil {
			return err
		}
	}
	client := lichess.NewClient(lichess.Options{
		BaseURL:           cfg.Lichess.BaseURL,
		Token:             token,
		RequestsPerSecond: cfg.Lichess.RequestsPerSecond,
		Logger:            log,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	lu, err := client.PublicData(ctx, id)
	if err != nil {
		log.Error("fetch profile", zap.String("user", id), zap.Error(err))
		showUserInfo(out, nil)
		return err
	}
	u := syncer.MapUser(lu, time.Now())
	showUserInfo(out, &u)

	until := time.Now()
	games, err := client.ExportGames(ctx, id, lichess.ExportQuery{
		Since:   until.AddDate(0, 0, -days),
		Until:   until,
		Evals:   true,
		Opening: true,
	})
	if err != nil {
		log.Error("export games", zap.String("user", id), zap.Error(err))
		showGamesInfo(out, nil)
		return err
	}
	if games == nil {
		games = []lichess.Game{}
	}
	showGamesInfo(out, games)
	return nil
}

// showUserInfo prints the profile header and one rating line per time control.
func showUserInfo(w io.Writer, u *db.User) {
	if u == nil {
		fmt.Fprintln(w, "No user data has been fetched")
		return
	}
	fmt.Fprintf(w, "User %s created on %s\n", u.LichessID, u.CreatedAt().Format(dateLayout))
	for _, line := range stats.SummaryLines(*u) {
		fmt.Fprintln(w, line)
	}
}

// showGamesInfo prints how many games came back and the newest and oldest
// of them. nil means the fetch never happened; the export is newest first.
func showGamesInfo(w io.Writer, games []lichess.Game) {
	switch {
	case games == nil:
		fmt.Fprintln(w, "No games have been fetched yet")
	case len(games) == 0:
		fmt.Fprintln(w, "No games have been found for this time period")
	default:
		fmt.Fprintf(w, "Fetched %d games\n", len(games))
		fmt.Fprintf(w, "Last game from  : %s\n", games[0].Created().Format(dateLayout))
		fmt.Fprintf(w, "First game from : %s\n", games[len(games)-1].Created().Format(dateLayout))
	}
}
