package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"storyforge/internal/config"
	"storyforge/internal/notifications"
	"storyforge/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigCheckCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set generation.api_key (or export GEMINI_API_KEY) before running produce.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			redacted := *cfg
			redacted.Generation.APIKey = redact(cfg.Generation.APIKey)
			redacted.LLM.APIKey = redact(cfg.LLM.APIKey)
			redacted.Music.APIKey = redact(cfg.Music.APIKey)

			encoded, err := toml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# source: %s\n", displayConfigPath(ctx.configPath))
			_, err = out.Write(encoded)
			return err
		},
	}
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	var probe, notify bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and report which backends are usable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", displayConfigPath(ctx.configPath))

			genErr := cfg.RequireGenerationKey()
			backends := newListTable(textCol("Backend"), textCol("Configured"), textCol("Model"))
			for _, row := range [][]string{
				{"generation", yesNo(genErr == nil), cfg.Generation.ImageModel + ", " + cfg.Generation.VoiceModel},
				{"script writer", yesNo(cfg.LLM.APIKey != ""), cfg.LLM.Model},
				{"music", yesNo(cfg.Music.Enabled && cfg.Music.APIKey != ""), cfg.Music.Model},
				{"notifications", yesNo(cfg.Notifications.NtfyTopic != ""), cfg.Notifications.NtfyTopic},
			} {
				backends.add(row...)
			}
			fmt.Fprintln(out, backends)

			runCtx := commandScope(cmd)
			results := preflight.RunAll(runCtx, cfg, probe)
			checks := newListTable(textCol("Check"), textCol("Status"), textCol("Detail"))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				checks.add(r.Name, status, r.Detail)
			}
			fmt.Fprintln(out, checks)

			if notify && cfg.Notifications.NtfyTopic != "" {
				if err := notifications.NewService(cfg).Publish(runCtx, notifications.EventTest, nil); err != nil {
					return fmt.Errorf("notification probe: %w", err)
				}
				fmt.Fprintln(out, "Test notification sent")
			}
			if genErr != nil {
				return genErr
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight checks failed", len(failed))
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Send test requests to the generation and script backends")
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a test notification to the configured ntfy topic")
	return cmd
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

func displayConfigPath(path string) string {
	if path == "" {
		return "(defaults)"
	}
	if _, err := os.Stat(path); err != nil {
		return path + " (not found; defaults used)"
	}
	return path
}
