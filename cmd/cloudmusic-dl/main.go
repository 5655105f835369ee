package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/handiism/cloudmusic-downloader/internal/config"
	"github.com/handiism/cloudmusic-downloader/internal/download"
	"github.com/handiism/cloudmusic-downloader/internal/engine"
	"github.com/handiism/cloudmusic-downloader/internal/logging"
	"github.com/handiism/cloudmusic-downloader/internal/metrics"
	"github.com/handiism/cloudmusic-downloader/internal/model"
	"github.com/spf13/pflag"
)

// shutdownTimeout bounds the wait for canceled tasks to clean up after an
// interrupt.
const shutdownTimeout = 5 * time.Second

var namingPresets = map[string]string{
	"title-artist":         model.NamingTitleFirst,
	"artist-title":         model.NamingArtistFirst,
	"title-artist-quality": model.NamingTitleFirstQuality,
	"artist-title-quality": model.NamingArtistFirstQuality,
}

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	var (
		outputFlag      = pflag.StringP("output", "o", "", "Output directory (overrides config)")
		qualityFlag     = pflag.StringP("quality", "q", "", "Requested quality: standard, exhigh, lossless, jyeffect, jymaster, sky")
		namingFlag      = pflag.String("naming", "", "File naming: title-artist, artist-title, title-artist-quality, artist-title-quality or a template")
		concurrencyFlag = pflag.IntP("concurrency", "c", 0, "Maximum simultaneous downloads")
		configFlag      = pflag.String("config", "", "Path to config file (.json, .yaml)")
		cookieFlag      = pflag.String("cookie", "", "Path to cookie file")
		playlistFlag    = pflag.BoolP("playlist", "p", false, "Create playlist file")
		verboseFlag     = pflag.BoolP("verbose", "v", false, "Show verbose output")
		watchFlag       = pflag.Bool("watch", false, "Watch the output directory for external changes")
		albumFlag       = pflag.Bool("group-by-album", false, "Save each track in a folder named after its album")
		lyricsFlag      = pflag.Bool("lyrics", false, "Save lyrics as a .lrc file next to each track")
		metricsFlag     = pflag.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
		dryRunFlag      = pflag.Bool("dry-run", false, "Resolve track names without downloading")
	)

	pflag.Parse()

	// CLI mode - require ids
	if pflag.NArg() == 0 {
		fmt.Println("Cloud Music Downloader - Download music from NetEase Cloud Music")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  cloudmusic-dl <track id or link>... [options]")
		fmt.Println()
		fmt.Println("For interactive mode, use: cloudmusic-tui")
		fmt.Println()
		pflag.PrintDefaults()
		return 1
	}

	// Load config
	settings := config.DefaultSettings()
	if *configFlag != "" {
		var err error
		settings, err = config.Load(*configFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	// Apply flags
	if err := applyFlags(settings, flagValues{
		output:      *outputFlag,
		quality:     *qualityFlag,
		naming:      *namingFlag,
		concurrency: *concurrencyFlag,
		cookie:      *cookieFlag,
		playlist:    *playlistFlag,
		watch:       *watchFlag,
		album:       *albumFlag,
		lyrics:      *lyricsFlag,
		metrics:     *metricsFlag,
		verbose:     *verboseFlag,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closer := logging.New(settings.ToLoggingOptions())
	defer closer.Close()

	// Handle interrupts
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if settings.MetricsAddr != "" {
		metrics.Register()
		go func() {
			if err := metrics.Serve(ctx, settings.MetricsAddr); err != nil {
				logger.Error("metrics endpoint stopped", "addr", settings.MetricsAddr, "error", err)
			}
		}()
	}

	eng, err := engine.New(ctx, settings, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		return 1
	}
	defer eng.Shutdown(context.Background())

	fmt.Println("🎵 Cloud Music Downloader")
	fmt.Println(strings.Repeat("━", 40))
	fmt.Println()

	if !eng.LoggedIn(ctx) {
		fmt.Println("⚠️  Not logged in: only tracks free for guests are available, usually at standard quality.")
		fmt.Printf("   Put your cookie in %s or set %s.\n\n", settings.CookieFile, config.CookieEnv)
	}

	ids := engine.ParseIDs(strings.Join(pflag.Args(), " "))
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no track ids given")
		return 1
	}
	reqs, err := eng.Requests(ctx, ids)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing: %v\n", err)
		return 1
	}

	if *dryRunFlag {
		for _, req := range reqs {
			fmt.Printf("   %s → %s\n", req.TrackID, req.Path(req.Quality.DefaultExtension()))
		}
		fmt.Println("\n[Dry run - not downloading]")
		return 0
	}

	// Print events until the stream closes
	sub := eng.Scheduler.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range sub.Events() {
			printEvent(ev, *verboseFlag)
		}
	}()

	fmt.Println("📥 Starting downloads...")
	fmt.Println()

	tasks, err := eng.Scheduler.Enqueue(reqs...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error enqueueing: %v\n", err)
		return 1
	}

	interrupted := download.Wait(ctx, tasks) != nil
	if interrupted {
		fmt.Println("\nInterrupted, cancelling...")
		eng.Scheduler.CancelAll()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("shutdown", "error", err)
	}
	<-printed

	summary := download.Summarize(tasks)
	fmt.Println()
	fmt.Println(strings.Repeat("━", 40))
	fmt.Printf("✨ Complete! %d done (%d skipped, %d untagged), %d failed, %d canceled\n",
		summary.Done, summary.Skipped, summary.Partial, summary.Failed, summary.Canceled)

	if settings.CreatePlaylist && summary.Done > 0 {
		path, err := eng.WritePlaylist("", tasks)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Playlist not written: %v\n", err)
		} else {
			fmt.Printf("📝 Playlist: %s\n", path)
		}
	}

	switch {
	case interrupted:
		fmt.Println("Download cancelled.")
		return 130
	case summary.Failed > 0:
		return 1
	}
	return 0
}

type flagValues struct {
	output      string
	quality     string
	naming      string
	concurrency int
	cookie      string
	playlist    bool
	watch       bool
	album       bool
	lyrics      bool
	metrics     string
	verbose     bool
}

// applyFlags overrides settings with the flags that were given.
func applyFlags(settings *config.Settings, f flagValues) error {
	if f.output != "" {
		settings.DownloadsPath = f.output
	}
	if f.quality != "" {
		q, err := model.ParseQuality(f.quality)
		if err != nil {
			return err
		}
		settings.Quality = q
	}
	if f.naming != "" {
		if preset, ok := namingPresets[f.naming]; ok {
			settings.FileNameFormat = preset
		} else {
			settings.FileNameFormat = f.naming
		}
	}
	if f.concurrency > 0 {
		settings.MaxConcurrentDownloads = f.concurrency
	}
	if f.cookie != "" {
		settings.CookieFile = f.cookie
	}
	if f.playlist {
		settings.CreatePlaylist = true
	}
	if f.watch {
		settings.WatchDownloads = true
	}
	if f.album {
		settings.GroupByAlbum = true
	}
	if f.lyrics {
		settings.DownloadLyrics = true
	}
	if f.metrics != "" {
		settings.MetricsAddr = f.metrics
	}
	if f.verbose {
		settings.LogLevel = "debug"
	}
	return settings.Validate()
}

func printEvent(ev download.Event, verbose bool) {
	if ev.Level() == download.LevelVerbose && !verbose {
		return
	}

	prefix := ""
	switch ev.Level() {
	case download.LevelError:
		prefix = "❌ "
	case download.LevelWarning:
		prefix = "⚠️  "
	case download.LevelSuccess:
		prefix = "✅ "
	case download.LevelInfo:
		prefix = "ℹ️  "
	default:
		prefix = "   "
	}

	fmt.Println(prefix + ev.Message())
}
