// shieldctl is the MamaShield operations CLI: metrics export for program
// reports, phone hashing for support lookups, and webhook simulation
// against a running instance.
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/config"
	"github.com/ent0n29/mamashield/internal/digest"
	"github.com/ent0n29/mamashield/internal/metrics"
	"github.com/ent0n29/mamashield/internal/privacy"
	"github.com/ent0n29/mamashield/internal/sms"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "shieldctl",
	Short: "MamaShield operations CLI",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if envFile == "" {
			return
		}
		if err := godotenv.Load(envFile); err != nil {
			fmt.Fprintf(os.Stderr, "env file not loaded: %v\n", err)
		}
	},
}

var (
	exportSince time.Duration
	exportOut   string
)

var exportCmd = &cobra.Command{
	Use:   "export-metrics",
	Short: "Export impact events to CSV for program reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := metrics.New(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			return fmt.Errorf("open metric store: %w", err)
		}
		defer store.Close()

		var from time.Time
		if exportSince > 0 {
			from = time.Now().UTC().Add(-exportSince)
		}
		events, err := store.Since(ctx, from)
		if err != nil {
			return fmt.Errorf("read events: %w", err)
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write([]string{"id", "timestamp", "event_type", "count", "details"}); err != nil {
			return err
		}
		rows := make(map[string]int)
		for _, e := range events {
			details := "{}"
			if len(e.Details) > 0 {
				raw, err := json.Marshal(e.Details)
				if err != nil {
					return err
				}
				details = string(raw)
			}
			record := []string{e.ID, e.At.UTC().Format(time.RFC3339), e.Type, strconv.Itoa(e.Count), details}
			if err := w.Write(record); err != nil {
				return err
			}
			rows[e.Type]++
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		fmt.Printf("exported %d events to %s\n", len(events), exportOut)
		for _, line := range summaryLines(rows) {
			fmt.Println(line)
		}
		return nil
	},
}

// summaryLines formats per-type row counts, most frequent first.
func summaryLines(rows map[string]int) []string {
	type typeCount struct {
		name string
		n    int
	}
	counts := make([]typeCount, 0, len(rows))
	for name, n := range rows {
		counts = append(counts, typeCount{name, n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].n != counts[j].n {
			return counts[i].n > counts[j].n
		}
		return counts[i].name < counts[j].name
	})
	lines := make([]string, 0, len(counts))
	for _, c := range counts {
		lines = append(lines, fmt.Sprintf("%-24s %d", c.name, c.n))
	}
	return lines
}

var hashCmd = &cobra.Command{
	Use:   "hash-phone <number>",
	Short: "Print the storage hash for a phone number",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(privacy.HashPhone(args[0]))
	},
}

var (
	simulateBase string
	simulateFrom string
	simulateText string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post a message to a running instance's SMS webhook",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := http.PostForm(simulateBase+"/sms", url.Values{
			"from": {simulateFrom},
			"text": {simulateText},
		})
		if err != nil {
			return err
		}
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s\n", res.StatusCode, strings.TrimSpace(string(body)))
		return nil
	},
}

var sendDigestCmd = &cobra.Command{
	Use:   "send-digest",
	Short: "Compose and send the daily digest immediately",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		store, err := metrics.New(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open metric store: %w", err)
		}
		defer store.Close()

		var sender sms.Sender
		if cfg.SMSUseMock {
			sender = sms.NewMockSender()
		} else {
			sender = sms.NewClient(sms.Options{
				Username: cfg.ATUsername,
				APIKey:   cfg.ATAPIKey,
				BaseURL:  cfg.ATBaseURL,
				SenderID: cfg.ATSenderID,
				Timeout:  cfg.SMSTimeout,
			})
		}

		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		digest.NewScheduler(digest.SchedulerOptions{
			Store:  store,
			Sender: sender,
			Phone:  cfg.ProgramLeadPhone,
			Logger: logger,
		}).Run()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file first")

	exportCmd.Flags().DurationVar(&exportSince, "since", 24*time.Hour, "export events newer than this age (0 exports everything)")
	exportCmd.Flags().StringVar(&exportOut, "out", "metrics_export.csv", "output CSV path")

	simulateCmd.Flags().StringVar(&simulateBase, "base", "http://localhost:8080", "base URL of a running instance")
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "", "sender phone number")
	simulateCmd.Flags().StringVar(&simulateText, "text", "", "message text")
	_ = simulateCmd.MarkFlagRequired("from")
	_ = simulateCmd.MarkFlagRequired("text")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(sendDigestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
