package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"storyforge/internal/archive"
	"storyforge/internal/config"
	"storyforge/internal/fileutil"
	"storyforge/internal/generation"
	"storyforge/internal/ledger"
	"storyforge/internal/notifications"
	"storyforge/internal/preflight"
	"storyforge/internal/production"
	"storyforge/internal/scene"
	"storyforge/internal/services/llm"
)

type produceOptions struct {
	scenesPath  string
	premise     string
	title       string
	logline     string
	outPath     string
	musicPrompt string
	thumbnails  int
	sceneCount  int
	concurrency int
	voices      map[string]string
}

func newProduceCommand(ctx *commandContext) *cobra.Command {
	opts := produceOptions{}
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Generate scene assets and write a bundle",
		Long: `Generate images and voice clips for every scene and package them.

Scenes come from --scenes, or are written by the script model from --title
(skipping idea generation) or --premise. The resulting scene list is saved
next to the bundle as <out>.scenes.json for preview and reruns.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runProduce(cmd, ctx, cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.scenesPath, "scenes", "", "JSON scene list to produce")
	cmd.Flags().StringVar(&opts.premise, "premise", "", "Story premise for idea generation")
	cmd.Flags().StringVar(&opts.title, "title", "", "Story title; skips idea generation")
	cmd.Flags().StringVar(&opts.logline, "logline", "", "Story logline used with --title")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "Destination zip (default <output_dir>/<session>.zip)")
	cmd.Flags().StringVar(&opts.musicPrompt, "music", "", "Record background music for this prompt")
	cmd.Flags().IntVar(&opts.thumbnails, "thumbnails", 0, "Number of thumbnails to generate")
	cmd.Flags().IntVar(&opts.sceneCount, "scene-count", 0, "Scenes to request from the script model")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", -1, "Parallel generation requests (default from config)")
	cmd.Flags().StringToStringVar(&opts.voices, "voice", nil, "Voice per speaker role, e.g. character_a=Puck")
	cmd.MarkFlagsMutuallyExclusive("scenes", "premise")
	cmd.MarkFlagsMutuallyExclusive("scenes", "title")
	return cmd
}

func (o produceOptions) request() (production.Request, error) {
	req := production.Request{
		Premise:     strings.TrimSpace(o.premise),
		MusicPrompt: strings.TrimSpace(o.musicPrompt),
	}
	if len(o.voices) > 0 {
		req.Voices = make(map[scene.SpeakerRole]string, len(o.voices))
		for role, voice := range o.voices {
			parsed, err := scene.ParseSpeakerRole(role)
			if err != nil {
				return req, fmt.Errorf("--voice: %w", err)
			}
			req.Voices[parsed] = strings.TrimSpace(voice)
		}
	}
	switch {
	case o.scenesPath != "":
		scenes, err := loadScenes(o.scenesPath)
		if err != nil {
			return req, err
		}
		req.Scenes = scenes
	case strings.TrimSpace(o.title) != "":
		req.Idea = &scene.Idea{Title: strings.TrimSpace(o.title), Logline: strings.TrimSpace(o.logline)}
	case req.Premise == "":
		return req, errors.New("one of --scenes, --title or --premise is required")
	}
	return req, nil
}

func runProduce(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts produceOptions) error {
	if err := cfg.RequireGenerationKey(); err != nil {
		return err
	}
	req, err := opts.request()
	if err != nil {
		return err
	}
	needsWriter := len(req.Scenes) == 0
	if needsWriter && cfg.LLM.APIKey == "" {
		return errors.New("script model api key required for --premise/--title (set llm.api_key or STORYFORGE_LLM_API_KEY)")
	}

	logger, err := ctx.commandLogger()
	if err != nil {
		return err
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire workspace lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another produce run holds %s", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	session := scene.NewSession()
	outPath := opts.outPath
	if outPath == "" {
		outPath = filepath.Join(cfg.Paths.OutputDir, session.ID()+".zip")
	}
	if err := preflight.RequireFreeSpace(filepath.Dir(outPath), uint64(cfg.Paths.MinFreeMB)<<20); err != nil {
		return err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	concurrency := opts.concurrency
	if concurrency < 0 {
		concurrency = cfg.Generation.MaxConcurrency
	}

	errOut := cmd.ErrOrStderr()
	progress := newBatchProgress(errOut)
	driverOpts := []production.Option{
		production.WithLogger(logger),
		production.WithThumbnails(opts.thumbnails),
		production.WithGenerationOptions(
			generation.WithRecorder(store),
			generation.WithConcurrencyLimit(concurrency),
			generation.WithVoiceSampleRate(cfg.Generation.VoiceSampleRate),
			generation.WithProgress(progress.update),
			generation.WithLogger(logger),
		),
		production.WithPhaseObserver(func(p production.Phase) {
			fmt.Fprintf(errOut, "Phase: %s\n", p)
		}),
	}
	if needsWriter {
		writer := llm.NewScriptWriter(newLLMClient(cfg, logger), opts.sceneCount)
		driverOpts = append(driverOpts, production.WithIdeaSource(writer), production.WithScriptSource(writer))
	}
	if req.MusicPrompt != "" {
		if cfg.Music.Enabled {
			driverOpts = append(driverOpts, production.WithMusic(newMusicClient(cfg, logger), cfg.MusicRecordDuration()))
		} else {
			fmt.Fprintln(errOut, "Music is disabled in config; skipping --music")
		}
	}

	runCtx := commandScope(cmd)
	notify := newNotifier(cfg, logger)
	title := strings.TrimSpace(opts.title)
	notify(runCtx, notifications.EventProductionStarted, notifications.Payload{"title": title, "scenes": len(req.Scenes)})

	driver := production.NewDriver(newGenerationClient(cfg, logger), driverOpts...)
	outcome, runErr := driver.Run(runCtx, session, req)
	progress.finish()
	if outcome.Idea.Title != "" {
		title = outcome.Idea.Title
	}
	if runErr != nil {
		notify(runCtx, notifications.EventProductionFailed, notifications.Payload{"title": title, "error": runErr})
		return runErr
	}
	if outcome.MusicErr != nil {
		notify(runCtx, notifications.EventMusicUnavailable, notifications.Payload{"title": title, "error": outcome.MusicErr})
	}

	resolver, err := newResolver(runCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer resolver.Close()
	bundleName := outcome.Idea.Title
	if bundleName == "" {
		bundleName = strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
	}
	data, report, err := archive.NewBuilder(resolver, archive.WithLogger(logger)).
		BuildArchive(runCtx, bundleName, archive.EntriesFromSession(session))
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	scenesPath := outPath + ".scenes.json"
	if err := saveScenes(scenesPath, session.Scenes()); err != nil {
		return err
	}

	notify(runCtx, notifications.EventProductionComplete, notifications.Payload{
		"title":     title,
		"succeeded": outcome.Batch.Succeeded,
		"failed":    outcome.Batch.Failed,
		"bundle":    outPath,
	})
	printProduceSummary(cmd.OutOrStdout(), session, outcome, outPath, len(data))
	printArchiveFailures(cmd, report)
	return nil
}

func printProduceSummary(out io.Writer, session *scene.Session, outcome production.Outcome, outPath string, size int) {
	music := yesNo(outcome.Music)
	if outcome.MusicErr != nil {
		music = "failed: " + outcome.MusicErr.Error()
	}
	rows := [][2]string{
		{"Session", session.ID()},
		{"Scenes", humanize.Comma(int64(session.Len()))},
		{"Assets generated", humanize.Comma(int64(outcome.Batch.Succeeded))},
		{"Assets failed", humanize.Comma(int64(outcome.Batch.Failed))},
		{"Thumbnails", humanize.Comma(int64(outcome.Thumbnails))},
		{"Music", music},
		{"Bundle", fmt.Sprintf("%s (%s)", outPath, humanize.Bytes(uint64(size)))},
	}
	if outcome.Idea.Title != "" {
		rows = append([][2]string{{"Title", outcome.Idea.Title}}, rows...)
	}
	fmt.Fprintln(out, fieldTable(rows))
	if len(outcome.Batch.Errors) == 0 {
		return
	}
	failures := newListTable(numCol("Scene"), textCol("Kind"), textCol("Error")).
		withTitle("%d assets failed", len(outcome.Batch.Errors))
	for _, e := range outcome.Batch.Errors {
		failures.add(fmt.Sprintf("%d", e.SceneID), string(e.Kind), e.Err.Error())
	}
	fmt.Fprintln(out, failures)
}

// batchProgress draws a bar on terminals. The bar is created on the first
// update since the batch size is only known once the script exists.
type batchProgress struct {
	out     io.Writer
	visible bool
	bar     *progressbar.ProgressBar
}

func newBatchProgress(out io.Writer) *batchProgress {
	return &batchProgress{out: out, visible: isTerminal(out)}
}

func (p *batchProgress) update(progress generation.Progress) {
	if !p.visible {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(progress.Total,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription("generating"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(progress.Completed)
}

func (p *batchProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
