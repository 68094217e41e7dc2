package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Args:  cobra.NoArgs,
	Short: "Force a running sine instance to recompute channel conditions immediately",
	Long:  `Calls POST /recompute on a running sine control server. Equivalent to waiting for the next poll tick, but useful as a diagnostic trigger after an out-of-band topology change.`,
	RunE:  runRecompute,
}

var recomputeControlURL string

func init() {
	recomputeCmd.Flags().StringVar(&recomputeControlURL, "control-url", "http://localhost:8002", "base URL of the running sine control server")
}

func runRecompute(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recomputeControlURL+"/recompute", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", recomputeControlURL, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recompute failed (%d): %s", resp.StatusCode, string(body))
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err == nil {
		fmt.Println(decoded["message"])
		return nil
	}
	fmt.Println(string(body))
	return nil
}
