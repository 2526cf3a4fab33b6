package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/sitescrape/internal/config"
	"github.com/spf13/cobra"
)

//go:embed templates/sitescrape.yaml
var configTemplate []byte

// stdoutPath makes init print the template instead of writing a file.
const stdoutPath = "-"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a .sitescrape configuration file",
		Long: `Init writes a commented configuration template.

Examples:
  # Create .sitescrape in the current directory
  sitescrape init

  # Create the file in the XDG config directory
  sitescrape init --xdg

  # Print the template
  sitescrape init -o -

  # Overwrite an existing file
  sitescrape init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		`Output file path ("-" prints to stdout)`)
	cmd.Flags().Bool("xdg", false,
		"Write to the XDG config directory instead of --output")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	outputPath, err := flags.GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := flags.GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := flags.GetBool("force")
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if useXDG {
		outputPath = filepath.Join(config.XDGConfigDir(), config.XDGConfigFile)
	}
	if outputPath == stdoutPath {
		_, err := out.Write(configTemplate)
		return err
	}

	if err := writeTemplate(outputPath, force); err != nil {
		return err
	}

	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit it to set crawl pacing, per-site filters and the sites to crawl.")
	return nil
}

// writeTemplate writes the template to path, creating parent directories.
// An existing file is kept unless force is set.
func writeTemplate(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, configTemplate, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}
