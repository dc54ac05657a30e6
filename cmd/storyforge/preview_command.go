package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyforge/internal/archive"
	"storyforge/internal/playback"
	"storyforge/internal/scene"
)

// previewPoll is how often preview checks whether playback has ended.
const previewPoll = 50 * time.Millisecond

func newPreviewCommand(ctx *commandContext) *cobra.Command {
	var scenesPath, bundlePath, assetsDir string
	var speed float64
	var start int

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Play a produced story through a simulated player",
		Long: `Walk the scene sequence the way the interactive preview does. Scenes with
a voice clip advance when the clip ends; the rest advance after the configured
fallback duration. Assets are read from a bundle zip or an extracted bundle
directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			scenes, err := loadScenes(scenesPath)
			if err != nil {
				return err
			}
			session := scene.NewSession()
			if err := session.SetScenes(scenes); err != nil {
				return err
			}

			var report archive.RestoreReport
			switch {
			case bundlePath != "":
				data, err := os.ReadFile(bundlePath)
				if err != nil {
					return fmt.Errorf("read bundle: %w", err)
				}
				report, err = archive.Restore(data, session)
				if err != nil {
					return err
				}
			case assetsDir != "":
				report, err = archive.RestoreFS(os.DirFS(assetsDir), session)
				if err != nil {
					return err
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded %d scenes, %d images, %d voice clips\n", session.Len(), report.Images, report.Voices)

			loop := strings.TrimSpace(cfg.Playback.BackgroundLoop)
			if loop == "" {
				loop = session.BackgroundMusic()
			}
			clock := playback.ScaledClock(playback.SystemClock(), speed)
			director := playback.NewDirector(session,
				playback.NewSimulatedPlayer(clock, playback.InlineClipLength),
				playback.WithClock(clock),
				playback.WithFallback(cfg.FallbackSceneDuration()),
				playback.WithBackgroundLoop(loop),
				playback.WithLogger(logger),
			)
			defer director.Close()

			director.OnSceneChange(func(change playback.SceneChange) {
				printSceneChange(cmd, change)
			})
			if start > 0 {
				director.JumpTo(start)
			}
			director.TogglePlay()
			return waitForEnd(commandScope(cmd), director)
		},
	}
	cmd.Flags().StringVar(&scenesPath, "scenes", "", "Scene list written by produce")
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Bundle zip holding the scene assets")
	cmd.Flags().StringVar(&assetsDir, "assets", "", "Extracted bundle directory holding the scene assets")
	cmd.Flags().Float64Var(&speed, "speed", 1, "Playback speed multiplier")
	cmd.Flags().IntVar(&start, "from", 0, "Zero-based scene index to start from")
	_ = cmd.MarkFlagRequired("scenes")
	cmd.MarkFlagsMutuallyExclusive("bundle", "assets")
	return cmd
}

func printSceneChange(cmd *cobra.Command, change playback.SceneChange) {
	sc := change.Scene
	line := fmt.Sprintf("[%d] Scene %d", change.Index+1, sc.ID)
	if sc.HasDialogue() {
		line += fmt.Sprintf(" %s: %s", sc.SpeakerRole, sc.Dialogue)
	} else if sc.Description != "" {
		line += " " + sc.Description
	}
	if !change.HasClip {
		line += " (no clip)"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

// waitForEnd blocks until the director reaches Ended and every scene change
// has been printed, or ctx is cancelled.
func waitForEnd(ctx context.Context, director *playback.Director) error {
	ticker := time.NewTicker(previewPoll)
	defer ticker.Stop()
	for {
		snap := director.State()
		if (snap.State == playback.Ended || snap.State == playback.Idle) && director.Settled() {
			return nil
		}
		select {
		case <-ctx.Done():
			director.Stop()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
