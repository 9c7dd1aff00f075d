package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/streambot/s3playlist/internal/observability"
	"github.com/streambot/s3playlist/pkg/listing"
)

var cacheShowJSON bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the bucket listing cache",
	Long: `The bucket listing is cached in the storage directory and reused until it
is invalidated. New or deleted objects are not seen until then.`,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show listing cache state",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Delete the listing cache so the next run lists the bucket again",
	Args:  cobra.NoArgs,
	RunE:  runCacheInvalidate,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheInvalidateCmd)

	cacheShowCmd.Flags().BoolVar(&cacheShowJSON, "json", false, "Output as JSON")
}

type cacheSummary struct {
	Path     string     `json:"path"`
	State    string     `json:"state"`
	Modified *time.Time `json:"modified,omitempty"`
	Objects  int        `json:"objects"`
	Playable int        `json:"playable"`
	Bytes    int64      `json:"bytes"`
	Error    string     `json:"error,omitempty"`
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(ExitFailure, "Failed to load config", err)
	}
	selector, err := newSelector(cfg)
	if err != nil {
		return exitError(ExitFailure, "Invalid selection config", err)
	}

	cache := listing.NewCache(cfg.CacheFilePath(), nil, observability.CLILogger)
	state, l, loadErr := cache.Load()

	summary := cacheSummary{Path: cache.Path(), State: state.String(), Objects: len(l)}
	if loadErr != nil {
		summary.Error = loadErr.Error()
	}
	if st, err := os.Stat(cache.Path()); err == nil {
		mod := st.ModTime()
		summary.Modified = &mod
	}
	summary.Playable = len(selector.Filter(l))
	for _, d := range l {
		summary.Bytes += d.Size
	}

	out := cmd.OutOrStdout()
	if cacheShowJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Path:\t%s\n", summary.Path)
	_, _ = fmt.Fprintf(w, "State:\t%s\n", summary.State)
	if summary.Modified != nil {
		_, _ = fmt.Fprintf(w, "Modified:\t%s\n", summary.Modified.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "Objects:\t%d\n", summary.Objects)
	_, _ = fmt.Fprintf(w, "Playable:\t%d\n", summary.Playable)
	_, _ = fmt.Fprintf(w, "Bytes:\t%d\n", summary.Bytes)
	if summary.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", summary.Error)
	}
	return w.Flush()
}

func runCacheInvalidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return exitError(ExitFailure, "Failed to load config", err)
	}

	cache := listing.NewCache(cfg.CacheFilePath(), nil, observability.CLILogger)
	if err := cache.Invalidate(); err != nil {
		return exitError(ExitFailure, "Failed to invalidate listing cache", err)
	}
	observability.CLILogger.Info("Listing cache invalidated", zap.String("path", cache.Path()))
	return nil
}
