package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/procurely/tendersync/internal/config"
)

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger an ingestion run on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/runs", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusAccepted:
			printSuccess("Run started")
			printStep("Watch progress with: tendersync status")
			return nil
		case http.StatusConflict:
			printWarning("A run is already in progress")
			return nil
		default:
			return fmt.Errorf("server returned %d", resp.StatusCode)
		}
	},
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate the unawarded tenders sheet",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/reports/unawarded", nil)
		if err != nil {
			return err
		}

		var result struct {
			Rows int `json:"rows"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Unawarded report written (%d rows)", result.Rows)
		return nil
	},
}

// --- lookup ---

var lookupCmd = &cobra.Command{
	Use:   "lookup <ocid>",
	Short: "Fetch a single OCID from the feed and write its notices",
	Long: `Fetch a single OCID from the feed and write its notices.

The run watermark is left untouched, so a lookup never interferes
with incremental syncing.

Example:
  tendersync lookup ocds-h6vhtk-042aef`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ocid := strings.TrimSpace(args[0])

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/refresh/"+url.PathEscape(ocid), nil)
		if err != nil {
			return err
		}

		var result struct {
			OCID    string `json:"ocid"`
			Notices int    `json:"notices"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Wrote %d notice(s) for %s", result.Notices, result.OCID)
		return nil
	},
}

// --- notices ---

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "List ingested notices",
	RunE: func(cmd *cobra.Command, args []string) error {
		noticeType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if noticeType != "" {
			q.Set("type", noticeType)
		}
		q.Set("limit", fmt.Sprintf("%d", limit))

		resp, err := client.get("/notices?" + q.Encode())
		if err != nil {
			return err
		}

		var notices []struct {
			OCID        string `json:"ocid"`
			NoticeID    string `json:"notice_id"`
			NoticeType  string `json:"notice_type"`
			Title       string `json:"title"`
			PublishedAt string `json:"published_at"`
		}
		if err := decodeJSON(resp, &notices); err != nil {
			return err
		}

		if len(notices) == 0 {
			fmt.Println("No notices found.")
			return nil
		}

		for _, n := range notices {
			title := n.Title
			if len(title) > 70 {
				title = title[:70] + "..."
			}
			fmt.Printf("%s  %-4s  %s  %s\n",
				colorize(colorCyan, n.OCID),
				n.NoticeType,
				n.PublishedAt,
				title,
			)
		}
		return nil
	},
}

func init() {
	noticesCmd.Flags().String("type", "", "filter by notice type (e.g. UK4)")
	noticesCmd.Flags().Int("limit", 50, "maximum number of notices to list")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
