package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthnet/hearth/client/internal/config"
	"github.com/hearthnet/hearth/client/internal/dispatch"
	"github.com/hearthnet/hearth/client/internal/session"
	"github.com/hearthnet/hearth/pkg/envelope"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stay connected and print events as JSON lines",
	Long: `Connect to the event endpoint derived from client.origin, identify as
client.user_id when set, join client.rooms and print every event and status
change on stdout.

Editing user_id or token_env in the config file re-identifies the live
connection without reconnecting. The command exits non-zero once reconnect
attempts are exhausted.`,
	RunE: runListen,
}

var listenKinds []string

func init() {
	listenCmd.Flags().StringSliceVar(&listenKinds, "kind", nil, "only print these event kinds (repeatable); status lines are always printed")
}

// eventLine is one stdout record.
type eventLine struct {
	Name   string             `json:"name"`
	Time   time.Time          `json:"ts"`
	Status string             `json:"status,omitempty"`
	Event  *envelope.Envelope `json:"event,omitempty"`
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, fromFile, err := loadConfig()
	if err != nil {
		return err
	}
	cc := cfg.Client

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus := dispatch.New()
	var sub *dispatch.Subscription
	if len(listenKinds) > 0 {
		sub = bus.Subscribe(dispatch.DefaultBuffer, append(listenKinds, dispatch.NameStatus)...)
	} else {
		sub = bus.Subscribe(dispatch.DefaultBuffer)
	}

	mgr, err := session.New(session.Options{
		Origin:      cc.Origin,
		UserID:      cc.UserID,
		Token:       cc.Token(),
		BackoffUnit: cc.BackoffUnit,
		MaxAttempts: cc.MaxAttempts,
		Rooms:       cc.Rooms,
	}, bus)
	if err != nil {
		return err
	}
	slog.Info("hearth-client listening", "endpoint", mgr.Endpoint(), "user_id", cc.UserID)

	if fromFile {
		go watchIdentity(ctx, cfg, mgr)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		enc := json.NewEncoder(os.Stdout)
		for n := range sub.C {
			line := eventLine{Name: n.Name, Time: n.Timestamp, Status: n.Status}
			if n.Name != dispatch.NameStatus {
				env := n.Envelope
				line.Event = &env
			}
			if err := enc.Encode(line); err != nil {
				slog.Warn("listen: write failed", "err", err)
			}
		}
	}()

	err = mgr.Run(ctx)
	bus.Close()
	<-printed
	if err != nil {
		return err
	}
	if mgr.State() == session.StateExhausted {
		return errors.New("offline: reconnect attempts exhausted")
	}
	return nil
}

// watchIdentity applies log level and identity edits from the config file.
func watchIdentity(ctx context.Context, initial *config.Config, mgr *session.Manager) {
	userID, token := initial.Client.UserID, initial.Client.Token()
	err := config.Watch(ctx, configPath, func(next *config.Config) {
		level.Set(next.Log.SlogLevel())
		nu, nt := next.Client.UserID, next.Client.Token()
		if nu == userID && nt == token {
			return
		}
		userID, token = nu, nt
		slog.Info("listen: identity changed", "user_id", userID)
		mgr.SetIdentity(userID, token)
	})
	if err != nil {
		slog.Error("config watcher stopped", "err", err)
	}
}
