package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storyforge/internal/audio"
	"storyforge/internal/fileutil"
)

func newMusicCommand(ctx *commandContext) *cobra.Command {
	musicCmd := &cobra.Command{
		Use:   "music",
		Short: "Streaming background music",
	}
	musicCmd.AddCommand(newMusicRecordCommand(ctx))
	return musicCmd
}

func newMusicRecordCommand(ctx *commandContext) *cobra.Command {
	var prompt, outPath string
	var seconds int
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a music stream for a fixed window and save it as WAV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Music.APIKey == "" {
				return errors.New("music api key required (set music.api_key or STORYFORGE_MUSIC_API_KEY)")
			}
			logger, err := ctx.commandLogger()
			if err != nil {
				return err
			}
			duration := cfg.MusicRecordDuration()
			if seconds > 0 {
				duration = time.Duration(seconds) * time.Second
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Recording %s of music...\n", duration)
			wav, err := newMusicClient(cfg, logger).Record(commandScope(cmd), prompt, duration)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(wav) == 0 {
				fmt.Fprintln(out, "Music session produced no audio; nothing written")
				return nil
			}
			if err := fileutil.WriteFileAtomic(outPath, wav, 0o644); err != nil {
				return fmt.Errorf("write music: %w", err)
			}
			length, _ := audio.ClipDuration(wav)
			fmt.Fprintf(out, "Wrote %s (%s, %s)\n", outPath, humanize.Bytes(uint64(len(wav))), length.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Music style prompt")
	cmd.Flags().IntVar(&seconds, "seconds", 0, "Recording window (default from config)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "background_music.wav", "Destination WAV path")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
