package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hearthnet/hearth/client/internal/scraper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise the server's /metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		url, _ := cmd.Flags().GetString("url")
		asJSON, _ := cmd.Flags().GetBool("json")

		if url == "" {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			url = cfg.Client.MetricsURL
		}

		st, err := scraper.New(url).Scrape(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "online\t%.0f\n", st.ConnectionsOpen)
		fmt.Fprintf(w, "registered\t%.0f\n", st.ConnectionsRegistered)
		fmt.Fprintf(w, "identified\t%.0f\n", st.ConnectionsIdentified)
		fmt.Fprintf(w, "connections (total)\t%.0f\n", st.ConnectionsTotal)
		fmt.Fprintf(w, "frames sent\t%.0f\n", st.FramesSent)
		fmt.Fprintf(w, "send failures\t%.0f\n", st.SendFailures)
		fmt.Fprintf(w, "sweeps\t%d (mean %s)\n", st.Sweeps, st.MeanSweep())
		section(w, "evictions", st.Evictions)
		section(w, "broadcasts", st.Broadcasts)
		section(w, "inbound", st.InboundFrames)
		section(w, "dropped", st.DroppedFrames)
		return w.Flush()
	},
}

func init() {
	statsCmd.Flags().String("url", "", "metrics URL (default client.metrics_url)")
	statsCmd.Flags().Bool("json", false, "print the summary as JSON")
}

func section(w *tabwriter.Writer, title string, m map[string]float64) {
	for _, k := range scraper.Keys(m) {
		fmt.Fprintf(w, "%s\t%s\t%.0f\n", title, k, m[k])
	}
}
