package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/omen-systems/omen/internal/domain"
)

// runDLQReprocess asks a running engine to drain its dead letter queue.
// The queue lives in process memory, so this goes through the admin API
// rather than touching state directly.
func runDLQReprocess(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	apiKey, _ := cmd.Flags().GetString("api-key")
	maxItems, _ := cmd.Flags().GetInt("max")

	endpoint, err := url.JoinPath(addr, "/api/v1/dlq/reprocess")
	if err != nil {
		return domain.E(domain.KindInput, err)
	}
	if maxItems > 0 {
		endpoint += "?max=" + strconv.Itoa(maxItems)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return domain.E(domain.KindAdapter, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Ef(domain.KindAdapter, "engine returned %s", resp.Status)
	}

	var result struct {
		Succeeded int `json:"succeeded"`
		Requeued  int `json:"requeued"`
		Depth     int `json:"depth"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	log.Info().
		Int("succeeded", result.Succeeded).
		Int("requeued", result.Requeued).
		Int("depth", result.Depth).
		Msg("DLQ reprocess complete")
	fmt.Printf("reprocessed: %d succeeded, %d requeued, %d remaining\n",
		result.Succeeded, result.Requeued, result.Depth)
	return nil
}
