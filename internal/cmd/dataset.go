package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarum/picdataset/internal/dataset"
	"github.com/tarum/picdataset/internal/pipeline"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Report groups of perceptually identical stored images",
	Long: `Dedupe groups all hashed records by perceptual hash and reports every
group of two or more as duplicate candidates. The report is advisory;
no records are modified or deleted.`,
	RunE: runDedupe,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Serialize the full content store into dataset files",
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(dedupeCmd, exportCmd)

	exportCmd.Flags().StringSlice("format", []string{"csv", "json"}, "Export formats (csv, json)")
	exportCmd.Flags().String("out-dir", "./data/final", "Directory for exported dataset files")
	if err := viper.BindPFlag("dataset_dir", exportCmd.Flags().Lookup("out-dir")); err != nil {
		panic(err)
	}
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	groups, err := pipeline.FindDuplicates(store)
	if err != nil {
		return err
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate candidates found.")
		return nil
	}

	fmt.Printf("Found %d duplicate candidate groups:\n", len(groups))
	for _, ids := range groups {
		fmt.Printf("  %v\n", ids)
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	formats, _ := cmd.Flags().GetStringSlice("format")
	outPaths, err := dataset.Export(store, viper.GetString("dataset_dir"), formats)
	if err != nil {
		return err
	}

	for format, path := range outPaths {
		fmt.Printf("Exported %s: %s\n", format, path)
	}
	return nil
}
