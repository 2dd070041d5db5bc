package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthnet/hearth/client/internal/notifier"
	"github.com/hearthnet/hearth/pkg/rpc"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Ask the server to announce an event",
	Long: `Send one NotifyService request to client.notify.endpoint.

Examples:
  hearth-client notify --kind new-post --payload '{"id":"p1","content":"hi"}'
  hearth-client notify --kind introduction-received --target u42 \
      --payload '{"id":"i9","requesterId":"u7","targetId":"u42","message":"hello"}'

Acceptance means the server queued the announcement; it never implies that
any client received it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		payload, _ := cmd.Flags().GetString("payload")
		target, _ := cmd.Flags().GetString("target")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if payload != "" && !json.Valid([]byte(payload)) {
			return fmt.Errorf("--payload is not valid JSON")
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		ctx, stop := context.WithTimeout(ctx, timeout)
		defer stop()

		req := rpc.Request{Kind: kind, TargetUserID: target}
		if payload != "" {
			req.Payload = json.RawMessage(payload)
		}
		if err := notifier.New(cfg.Client.Notify).Send(ctx, req); err != nil {
			return err
		}
		fmt.Printf("accepted: %s\n", kind)
		return nil
	},
}

func init() {
	notifyCmd.Flags().String("kind", "", "event kind, e.g. new-post, like-count-changed, introduction-received")
	notifyCmd.Flags().String("payload", "", "event payload as JSON")
	notifyCmd.Flags().String("target", "", "target user id (required for introduction-received)")
	notifyCmd.Flags().Duration("timeout", time.Minute, "give up after this long, retries included")
	_ = notifyCmd.MarkFlagRequired("kind")
}
