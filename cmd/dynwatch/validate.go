package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dynwatch/dynwatch/internal/checkdef"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate check definition files",
	Long: `Validate the YAML check definitions in a directory.

Checks:
  - YAML syntax is valid
  - Definitions match the dynwatch/v1 schema
  - Thresholds and durations are coherent
  - Check IDs are unique across the directory

Examples:
  dynwatch validate --dir ./checks`,
	Run: runValidateDefs,
}

var validateDir string

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateDir, "dir", "", "directory containing check YAML files")
}

func runValidateDefs(cmd *cobra.Command, args []string) {
	if validateDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --dir flag is required")
		os.Exit(1)
	}

	validator, err := checkdef.NewValidator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize validator: %v\n", err)
		os.Exit(1)
	}

	errors := validator.ValidateDirectory(validateDir)
	if len(errors) == 0 {
		fmt.Println("✓ All check definition files are valid")
		return
	}

	// Group errors by file
	errorsByFile := make(map[string][]checkdef.ValidationError)
	for _, err := range errors {
		errorsByFile[err.File] = append(errorsByFile[err.File], err)
	}

	var files []string
	for file := range errorsByFile {
		files = append(files, file)
	}
	sort.Strings(files)

	fmt.Fprintf(os.Stderr, "✗ Validation failed with %d error(s):\n\n", len(errors))
	for _, file := range files {
		for _, err := range errorsByFile[file] {
			if err.Path != "" {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", filepath.Base(err.File), err.Path, err.Message)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", filepath.Base(err.File), err.Message)
			}
		}
	}

	os.Exit(1)
}
