package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"bitmap/internal/core"
)

func (c *cli) submitCmd() *cobra.Command {
	var event core.Event

	cmd := &cobra.Command{
		Use:     "submit <server-url>",
		Short:   "Send an event to a ci-server",
		Example: "  ci submit http://localhost:8080 --event push --ref refs/heads/main --sha $(git rev-parse HEAD)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := event.Validate(); err != nil {
				return err
			}
			body, err := json.Marshal(event)
			if err != nil {
				return err
			}

			url := strings.TrimSuffix(args[0], "/") + "/events"
			c.logger.Debug("submitting event", zap.String("url", url), zap.ByteString("body", body))

			client := &http.Client{Timeout: 30 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			reply, _ := io.ReadAll(resp.Body)

			switch resp.StatusCode {
			case http.StatusAccepted:
				fmt.Fprint(cmd.OutOrStdout(), string(reply))
			case http.StatusNoContent:
				fmt.Fprintln(cmd.OutOrStdout(), "event did not trigger the workflow")
			default:
				return fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(reply)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&event.Name, "event", core.EventPush, "event name (push or pull_request)")
	cmd.Flags().StringVar(&event.Ref, "ref", "refs/heads/main", "git ref the event is for")
	cmd.Flags().StringVar(&event.SHA, "sha", "", "commit the run should check out")
	cmd.Flags().StringVar(&event.Branch, "branch", "", "branch used for filters")
	return cmd
}
