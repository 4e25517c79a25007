package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fenceline-dev/fenceline/internal/boundary"
	"github.com/fenceline-dev/fenceline/internal/catalog"
)

var (
	validateKind string
	validateFile string
)

// validateCmd checks documents against their contracts: capability catalogs
// against the index validation rules, boundary objects against the compiled
// boundary schema.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a capability catalog or boundary objects",
	Long: `Validate documents against their contracts.

  --kind catalog    Validate the configured (or --file) capability catalog
  --kind boundary   Validate boundary objects from --file or stdin; input may
                    be a single object, an array, or NDJSON`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		switch validateKind {
		case "catalog":
			return validateCatalog()
		case "boundary":
			return validateBoundary(cmd)
		}
		return fmt.Errorf("unknown --kind %q (expected catalog or boundary)", validateKind)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateKind, "kind", "catalog", "Document kind: catalog or boundary")
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "Input file (catalog default: configured path; boundary default: stdin)")
}

func validateCatalog() error {
	path := validateFile
	if path == "" {
		path = viper.GetString("catalog.path")
	}
	index, err := catalog.LoadIndex(path,
		catalog.WithAllowedVersions(viper.GetStringSlice("catalog.allowed_versions")...))
	if err != nil {
		return err
	}
	slog.Info("catalog is valid",
		"path", path, "key", index.Key(), "schema_version", index.SchemaVersion(), "capabilities", len(index.IDs()))
	return nil
}

func validateBoundary(cmd *cobra.Command) error {
	index, err := loadIndex()
	if err != nil {
		return err
	}
	builder, err := loadBuilder(index)
	if err != nil {
		return err
	}

	var input io.Reader = cmd.InOrStdin()
	if validateFile != "" {
		file, err := os.Open(validateFile)
		if err != nil {
			return fmt.Errorf("failed to open input %s: %w", validateFile, err)
		}
		defer file.Close()
		input = file
	}

	raws, err := boundary.ParseRawStream(input)
	if err != nil {
		return err
	}
	for i, raw := range raws {
		if err := builder.Schema.ValidateBytes(raw); err != nil {
			return fmt.Errorf("boundary object %d: %w", i+1, err)
		}
	}
	slog.Info("boundary objects are valid", "count", len(raws))
	return nil
}
