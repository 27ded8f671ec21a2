package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarum/picdataset/internal/pipeline"
	"github.com/tarum/picdataset/internal/scraper"
)

type idLister interface {
	ListImages(filter string, limit int) ([]scraper.ImageRecord, error)
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Normalize downloaded images and compute perceptual hashes",
	RunE:  runPreprocess,
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label stored images via the inference service",
	RunE:  runClassify,
}

var captionCmd = &cobra.Command{
	Use:   "caption",
	Short: "Generate prompts for processed images via the inference service",
	RunE:  runCaption,
}

func init() {
	rootCmd.AddCommand(preprocessCmd, classifyCmd, captionCmd)

	preprocessCmd.Flags().String("ids", "", "Comma-separated record IDs (default: all with a raw download)")
	preprocessCmd.Flags().Int("size", 1024, "Square resize dimension (0 keeps original size)")
	preprocessCmd.Flags().String("format", "JPEG", "Output format: JPEG or PNG")
	preprocessCmd.Flags().Bool("enhance", true, "Apply slight brightness/contrast enhancement")
	preprocessCmd.Flags().Bool("remove-watermark", false, "Apply heuristic watermark softening")
	preprocessCmd.Flags().String("processed-dir", "./data/processed", "Directory for derived images")
	if err := viper.BindPFlag("processed_dir", preprocessCmd.Flags().Lookup("processed-dir")); err != nil {
		panic(err)
	}

	classifyCmd.Flags().String("ids", "", "Comma-separated record IDs (default: all with a raw download)")
	captionCmd.Flags().String("ids", "", "Comma-separated record IDs (default: processed records missing prompts)")
	captionCmd.Flags().Int("batch-size", 8, "Caption batch size")

	for _, c := range []*cobra.Command{classifyCmd, captionCmd} {
		c.Flags().String("inference-endpoint", "", "Base URL of the inference service")
		c.Flags().Duration("inference-timeout", 60*time.Second, "Inference request timeout")
	}
	if err := viper.BindPFlag("inference_endpoint", classifyCmd.Flags().Lookup("inference-endpoint")); err != nil {
		panic(err)
	}
}

func runPreprocess(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idsFlag, _ := cmd.Flags().GetString("ids")
	ids, err := resolveIDs(store, idsFlag, withLocal)
	if err != nil {
		return err
	}

	size, _ := cmd.Flags().GetInt("size")
	format, _ := cmd.Flags().GetString("format")
	enhance, _ := cmd.Flags().GetBool("enhance")
	removeWM, _ := cmd.Flags().GetBool("remove-watermark")

	processed, err := pipeline.PreprocessImages(store, ids, pipeline.PreprocessOptions{
		TargetSize:      size,
		Format:          format,
		Enhance:         enhance,
		RemoveWatermark: removeWM,
		OutDir:          viper.GetString("processed_dir"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Processed %d of %d selected images\n", len(processed), len(ids))
	return nil
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idsFlag, _ := cmd.Flags().GetString("ids")
	ids, err := resolveIDs(store, idsFlag, withLocal)
	if err != nil {
		return err
	}

	clf, err := newInference(cmd)
	if err != nil {
		return err
	}

	updated, err := pipeline.ClassifyImages(cmd.Context(), store, ids, clf)
	if err != nil {
		return err
	}
	fmt.Printf("Classified %d of %d selected images\n", len(updated), len(ids))

	counts, err := store.CountByType()
	if err != nil {
		return err
	}
	for _, tc := range counts {
		fmt.Printf("  %-16s %d\n", tc.Type, tc.Count)
	}
	return nil
}

func runCaption(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	idsFlag, _ := cmd.Flags().GetString("ids")
	var ids []int64
	if idsFlag == "" {
		if ids, err = store.ListMissingPrompts(); err != nil {
			return err
		}
	} else if ids, err = parseIDs(idsFlag); err != nil {
		return err
	}

	captioner, err := newInference(cmd)
	if err != nil {
		return err
	}

	batchSize, _ := cmd.Flags().GetInt("batch-size")
	updated, err := pipeline.CaptionImages(cmd.Context(), store, ids, batchSize, captioner)
	if err != nil {
		return err
	}
	fmt.Printf("Captioned %d of %d selected images\n", len(updated), len(ids))
	return nil
}

func newInference(cmd *cobra.Command) (*pipeline.HTTPInference, error) {
	endpoint, _ := cmd.Flags().GetString("inference-endpoint")
	if endpoint == "" {
		endpoint = viper.GetString("inference_endpoint")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no inference endpoint configured (--inference-endpoint or PD_INFERENCE_ENDPOINT)")
	}
	timeout, _ := cmd.Flags().GetDuration("inference-timeout")
	return pipeline.NewHTTPInference(endpoint, timeout), nil
}

type idFilter int

const (
	withLocal idFilter = iota
)

// resolveIDs parses an explicit ID list, or selects a default set from the
// store when none is given.
func resolveIDs(store idLister, idsFlag string, filter idFilter) ([]int64, error) {
	if idsFlag != "" {
		return parseIDs(idsFlag)
	}

	records, err := store.ListImages("", 1000000)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for i := range records {
		if filter == withLocal && records[i].LocalPath == "" {
			continue
		}
		ids = append(ids, records[i].ID)
	}
	return ids, nil
}

func parseIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
