package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"storyforge/internal/audio"
	"storyforge/internal/fileutil"
)

func newWavCommand() *cobra.Command {
	wavCmd := &cobra.Command{
		Use:         "wav",
		Short:       "Wrap and inspect PCM16 WAV clips",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	wavCmd.AddCommand(newWavEncodeCommand())
	wavCmd.AddCommand(newWavInspectCommand())
	return wavCmd
}

func newWavEncodeCommand() *cobra.Command {
	var rate, channels int
	cmd := &cobra.Command{
		Use:   "encode <pcm> <out>",
		Short: "Wrap raw little-endian PCM16 samples in a WAV header",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pcm, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read pcm: %w", err)
			}
			wav, err := audio.EncodeWAV(pcm, rate, channels)
			if err != nil {
				return err
			}
			if err := fileutil.WriteFileAtomic(args[1], wav, 0o644); err != nil {
				return fmt.Errorf("write wav: %w", err)
			}
			desc, err := audio.InspectWAV(wav)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %s)\n",
				args[1], humanize.Bytes(uint64(len(wav))), desc.Duration())
			return nil
		},
	}
	cmd.Flags().IntVar(&rate, "rate", 24000, "Sample rate in Hz")
	cmd.Flags().IntVar(&channels, "channels", 1, "Channel count")
	return cmd
}

func newWavInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the header fields of a WAV clip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read wav: %w", err)
			}
			desc, err := audio.InspectWAV(data)
			if err != nil {
				return err
			}
			rows := [][2]string{
				{"Sample rate", fmt.Sprintf("%d Hz", desc.SampleRateHz)},
				{"Channels", fmt.Sprintf("%d", desc.NumChannels)},
				{"Bits per sample", fmt.Sprintf("%d", desc.BitsPerSample)},
				{"PCM bytes", humanize.Comma(int64(desc.PCMByteLength))},
				{"Duration", desc.Duration().String()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), fieldTable(rows))
			return nil
		},
	}
}
