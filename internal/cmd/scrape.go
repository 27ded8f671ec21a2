package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarum/picdataset/internal/scraper"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Ingest images from the configured sites into the content store",
	Long: `Scrape discovers candidate image URLs on the selected sites (or via the
search API), downloads them concurrently with rate limiting, and upserts
each success into the content store keyed by source URL. Re-running with
the same parameters is idempotent.`,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringSliceP("sites", "s", nil, "Sites to scrape (unsplash, pexels, pixabay, flickr, wallhaven, unsplash_api)")
	scrapeCmd.Flags().StringP("query", "q", "", "Search query/keyword")
	scrapeCmd.Flags().IntP("target", "n", 100, "Target images per site (10-5000)")
	scrapeCmd.Flags().IntP("max-pages", "p", 5, "Max search pages per site (1-50)")
	scrapeCmd.Flags().Int("rate", 120, "Requests per minute budget (10-600)")
	scrapeCmd.Flags().DurationP("timeout", "t", 15*time.Second, "HTTP request timeout (5s-60s)")
	scrapeCmd.Flags().Int("min-size", 512, "Minimum accepted image dimension in pixels")
	scrapeCmd.Flags().IntP("workers", "w", 4, "Max concurrent download workers")
	scrapeCmd.Flags().StringSlice("page-url", nil, "Extra page URLs to scrape as the generic source")
	scrapeCmd.Flags().String("raw-dir", "./data/raw", "Directory for downloaded files")
	scrapeCmd.Flags().String("access-key", "", "Access key for the unsplash_api source")
	scrapeCmd.Flags().String("user-agent", "", "HTTP User-Agent header")

	bindFlags := []struct {
		viperKey string
		flagName string
	}{
		{"sites", "sites"},
		{"query", "query"},
		{"target_per_site", "target"},
		{"max_pages", "max-pages"},
		{"rate_per_minute", "rate"},
		{"request_timeout", "timeout"},
		{"min_image_size", "min-size"},
		{"max_workers", "workers"},
		{"generic_urls", "page-url"},
		{"raw_dir", "raw-dir"},
		{"unsplash_access_key", "access-key"},
		{"user_agent", "user-agent"},
	}
	for _, bind := range bindFlags {
		if err := viper.BindPFlag(bind.viperKey, scrapeCmd.Flags().Lookup(bind.flagName)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind flag %s: %v\n", bind.flagName, err)
		}
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = generateUserAgent()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.RawDir, 0o750); err != nil {
		return fmt.Errorf("failed to create raw directory: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	s := scraper.New(cfg, store)
	defer s.Close()

	result, err := s.Run(cmd.Context())
	if result != nil {
		fmt.Printf("Scrape finished: %d discovered, %d downloaded, %d skipped across %d pages in %s\n",
			result.Stats.Discovered, result.Stats.Downloaded, result.Stats.Skipped,
			result.Stats.Pages, result.Stats.Duration.Round(time.Millisecond))
		if result.Stats.Downloaded == 0 {
			fmt.Println("No images ingested. Zero results is a valid outcome; check query and site selection.")
		}
	}
	return err
}

func generateUserAgent() string {
	if version != "" && version != "dev" {
		return fmt.Sprintf("PicDataset/%s", version)
	}
	return "PicDataset/dev"
}
