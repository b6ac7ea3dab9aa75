// Command syncctl runs the daily sync pipeline once from the command line.
//
//	syncctl -all                       run the full daily batch
//	syncctl -user u1                   sync a single user
//	syncctl -link u1:alice -tokens 2   link a platform username
//	syncctl -progress u1 -days 30      print the progress view
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	service "github.com/pixelcode/pixelsync/internal/app"
	"github.com/pixelcode/pixelsync/internal/config"
	"github.com/pixelcode/pixelsync/pkg/logger"
)

var errUsage = errors.New("exactly one of -all, -user, -link or -progress is required")

type command struct {
	all      bool
	user     string
	link     string
	tokens   int
	progress string
	days     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cmd command
	flag.BoolVar(&cmd.all, "all", false, "run the daily batch for every linked user")
	flag.StringVar(&cmd.user, "user", "", "sync a single user by id")
	flag.StringVar(&cmd.link, "link", "", "link a username, as user_id:username")
	flag.IntVar(&cmd.tokens, "tokens", 0, "initial freeze tokens for -link")
	flag.StringVar(&cmd.progress, "progress", "", "print progress for a user id")
	flag.IntVar(&cmd.days, "days", 0, "history window for -progress")
	flag.Parse()

	if err := run(ctx, cmd, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "syncctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd command, out io.Writer) error {
	if err := cmd.validate(); err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithWriter(os.Stderr)); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		_ = logger.SetLevelString("info")
	}
	log := logger.Get()

	svc, store, err := service.NewFromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	return cmd.exec(ctx, svc, out)
}

func (c command) validate() error {
	n := 0
	for _, set := range []bool{c.all, c.user != "", c.link != "", c.progress != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errUsage
	}
	if c.link != "" {
		if _, _, err := splitLink(c.link); err != nil {
			return err
		}
	}
	return nil
}

func (c command) exec(ctx context.Context, svc *service.Service, out io.Writer) error {
	switch {
	case c.all:
		report, err := svc.RunDailyBatch(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, report)
	case c.user != "":
		res, err := svc.SyncUser(ctx, c.user)
		if err != nil {
			return err
		}
		return printJSON(out, res)
	case c.link != "":
		userID, username, _ := splitLink(c.link)
		if err := svc.LinkUser(ctx, userID, username, c.tokens); err != nil {
			return err
		}
		return printJSON(out, map[string]string{"userId": userID, "username": username})
	default:
		days := c.days
		if days == 0 {
			days = svc.DefaultDays()
		}
		view, err := svc.Progress(ctx, c.progress, days)
		if err != nil {
			return err
		}
		return printJSON(out, view)
	}
}

func splitLink(s string) (string, string, error) {
	userID, username, ok := strings.Cut(s, ":")
	userID, username = strings.TrimSpace(userID), strings.TrimSpace(username)
	if !ok || userID == "" || username == "" {
		return "", "", fmt.Errorf("invalid -link %q, want user_id:username", s)
	}
	return userID, username, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
