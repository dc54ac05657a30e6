package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storyforge/internal/archive"
	"storyforge/internal/fileutil"
	"storyforge/internal/services"
)

// archiveManifest lists the entries of a bundle built outside a session.
type archiveManifest struct {
	Name    string `json:"name"`
	Entries []struct {
		Filename  string `json:"filename"`
		Reference string `json:"reference"`
		Text      string `json:"text"`
	} `json:"entries"`
}

func loadManifest(path string) (archiveManifest, error) {
	var manifest archiveManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, services.Wrap(services.ErrMalformedInput, "cli", "load manifest", path, err)
	}
	return manifest, nil
}

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Package assets into a bundle",
	}
	archiveCmd.AddCommand(newArchiveBuildCommand(ctx))
	return archiveCmd
}

func newArchiveBuildCommand(ctx *commandContext) *cobra.Command {
	var manifestPath, outPath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a zip bundle from a JSON manifest of named references",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			manifest, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			entries := make([]archive.NamedAsset, 0, len(manifest.Entries))
			for _, e := range manifest.Entries {
				entries = append(entries, archive.NamedAsset{Filename: e.Filename, Reference: e.Reference, Text: e.Text})
			}
			name := strings.TrimSpace(manifest.Name)
			if name == "" {
				name = "storyforge"
			}

			runCtx := commandScope(cmd)
			resolver, err := newResolver(runCtx, cfg, logger)
			if err != nil {
				return err
			}
			defer resolver.Close()

			data, report, err := archive.NewBuilder(resolver, archive.WithLogger(logger)).BuildArchive(runCtx, name, entries)
			if err != nil {
				return err
			}
			if err := fileutil.WriteFileAtomic(outPath, data, 0o644); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %s (%s, %d entries)\n", outPath, humanize.Bytes(uint64(len(data))), len(report.Written))
			printArchiveFailures(cmd, report)
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "JSON manifest of {filename, reference|text} entries")
	cmd.Flags().StringVarP(&outPath, "out", "o", "bundle.zip", "Destination zip path")
	_ = cmd.MarkFlagRequired("manifest")
	return cmd
}

func printArchiveFailures(cmd *cobra.Command, report archive.Report) {
	if len(report.Failed) == 0 {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d entries could not be resolved:\n", len(report.Failed))
	failures := newListTable(textCol("Entry"), textCol("Error"))
	for _, f := range report.Failed {
		failures.add(f.Filename, f.Err.Error())
	}
	fmt.Fprintln(cmd.OutOrStdout(), failures)
}
