package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/helpline/internal/config"
	"github.com/zulandar/helpline/internal/db"
	"github.com/zulandar/helpline/internal/knowledge"
)

func newKBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Knowledge base commands",
		Long:  "Generate, import and inspect the question/answer records the bot answers from.",
	}

	cmd.AddCommand(newKBSeedCmd())
	cmd.AddCommand(newKBImportCmd())
	cmd.AddCommand(newKBShowCmd())
	return cmd
}

func newKBSeedCmd() *cobra.Command {
	var (
		configPath string
		outPath    string
		toDB       bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the sample customer support dataset",
		Long:  "Writes the built-in sample dataset as CSV. With --db the records are also loaded into the configured knowledge database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBSeed(cmd, configPath, outPath, toDB)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "CSV output path (defaults to knowledge.path)")
	cmd.Flags().BoolVar(&toDB, "db", false, "also seed the knowledge database, replacing existing records")
	return cmd
}

func runKBSeed(cmd *cobra.Command, configPath, outPath string, toDB bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	records := knowledge.DefaultDataset()

	if outPath == "" {
		outPath = cfg.Knowledge.Path
	}
	if outPath == "" {
		outPath = knowledge.DefaultDatasetFile
	}
	if err := writeDataset(outPath, records); err != nil {
		return err
	}
	fmt.Fprintf(out, "Dataset created successfully! %d samples written to %s\n", len(records), outPath)

	if toDB {
		n, err := seedDB(cfg, records, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Knowledge database seeded with %d records\n", n)
	}
	return nil
}

func writeDataset(path string, records []knowledge.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := knowledge.WriteCSV(f, records); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// seedDB writes records to the configured knowledge database and returns the
// resulting row count.
func seedDB(cfg *config.Config, records []knowledge.Record, replace bool) (int64, error) {
	if cfg.Knowledge.Source != config.SourceDB {
		return 0, fmt.Errorf("knowledge.source is %q; set it to %q with a driver and dsn to use the database", cfg.Knowledge.Source, config.SourceDB)
	}
	gormDB, err := db.Connect(cfg.Knowledge.Driver, cfg.Knowledge.DSN)
	if err != nil {
		return 0, fmt.Errorf("connect to knowledge db: %w", err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return 0, err
	}
	if err := db.SeedKnowledge(gormDB, knowledge.ToModels(records), replace); err != nil {
		return 0, err
	}
	return db.CountKnowledge(gormDB)
}

func newKBImportCmd() *cobra.Command {
	var (
		configPath string
		replace    bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a CSV dataset into the knowledge database",
		Long:  "Reads an intent,user_message,bot_response,category CSV and inserts its rows into the configured knowledge database.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBImport(cmd, configPath, args[0], replace)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing records before importing")
	return cmd
}

func runKBImport(cmd *cobra.Command, configPath, path string, replace bool) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	// The database stores every column, so import with the strictest variant.
	base, err := knowledge.LoadCSV(path, knowledge.VariantKeyword)
	if err != nil {
		return err
	}
	n, err := seedDB(cfg, base.Records(), replace)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records from %s (%d in database)\n", base.Len(), path, n)
	return nil
}

func newKBShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the records in the configured knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKBShow(cmd, configPath)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runKBShow(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(cmd, configPath)
	if err != nil {
		return err
	}
	base, err := loadKnowledge(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INTENT\tCATEGORY\tUSER MESSAGE")
	for _, r := range base.Records() {
		intent, category := r.Intent, r.Category
		if intent == "" {
			intent = "-"
		}
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", intent, category, r.Utterance)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d records (%s)\n", base.Len(), cfg.Knowledge.Source)
	return nil
}
