package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-podcast/internal/bus"
	"github.com/loqalabs/loqa-podcast/internal/config"
	"github.com/loqalabs/loqa-podcast/internal/podcast"
	"github.com/loqalabs/loqa-podcast/internal/protocol"
	"github.com/loqalabs/loqa-podcast/internal/runtime"
	"github.com/loqalabs/loqa-podcast/internal/voice"
)

var version = "0.1.0-dev"

const usage = "usage: podcastctl <render|submit|voices|workers|version> [flags]"

type jobFlags struct {
	configPath string
	scriptPath string
	names      string
	genders    string
	outputDir  string
	verbose    bool
}

func (f *jobFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&f.scriptPath, "script", "-", "Script file, or - for stdin")
	fs.StringVar(&f.names, "names", "", "Comma separated speaker names")
	fs.StringVar(&f.genders, "genders", "", "Comma separated speaker genders (male|female)")
	fs.StringVar(&f.outputDir, "out", "", "Output directory (defaults to podcast.output_dir)")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(ctx, os.Args[2:])
	case "submit":
		err = runSubmit(ctx, os.Args[2:])
	case "voices":
		err = runVoices(os.Args[2:])
	case "workers":
		err = runWorkers(ctx, os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRender(ctx context.Context, args []string) error {
	var jf jobFlags
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	jf.register(fs)
	_ = fs.Parse(args)

	cfg, err := config.Load(jf.configPath)
	if err != nil {
		return err
	}
	text, err := readScript(jf.scriptPath)
	if err != nil {
		return err
	}
	logger := newLogger(jf.verbose)
	pipeline, err := runtime.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	result := pipeline.Run(ctx, podcast.Request{
		Script:         text,
		SpeakerNames:   splitList(jf.names),
		SpeakerGenders: splitList(jf.genders),
		OutputDir:      jf.outputDir,
	}, podcast.ObserverFunc(func(p podcast.Progress) {
		fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p.Percent, p.Message)
	}))
	if !result.Success() {
		return result.Err
	}
	fmt.Println(result.Path)
	return nil
}

func runSubmit(ctx context.Context, args []string) error {
	var jf jobFlags
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	jf.register(fs)
	timeout := fs.Duration("timeout", 30*time.Minute, "How long to wait for the result")
	_ = fs.Parse(args)

	cfg, err := config.Load(jf.configPath)
	if err != nil {
		return err
	}
	text, err := readScript(jf.scriptPath)
	if err != nil {
		return err
	}
	client, err := bus.Connect(ctx, "podcastctl", cfg.Bus, newLogger(jf.verbose))
	if err != nil {
		return err
	}
	defer client.Close()

	jobID := uuid.NewString()
	progress, err := client.Conn().Subscribe(protocol.ProgressSubject(jobID), func(msg *nats.Msg) {
		var p protocol.PodcastProgress
		if json.Unmarshal(msg.Data, &p) == nil {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", p.Progress, p.Message)
		}
	})
	if err != nil {
		return err
	}
	defer progress.Unsubscribe()

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	var result protocol.PodcastResult
	err = client.RequestJSON(ctx, protocol.SubjectPodcastRequest, protocol.PodcastRequest{
		JobID:          jobID,
		Script:         text,
		SpeakerNames:   splitList(jf.names),
		SpeakerGenders: splitList(jf.genders),
		OutputDir:      jf.outputDir,
	}, &result)
	if err != nil {
		return fmt.Errorf("submit job %s: %w", jobID, err)
	}
	if !result.Success {
		return fmt.Errorf("job %s failed (%s): %s", jobID, result.ErrorKind, result.Error)
	}
	fmt.Println(result.AudioPath)
	return nil
}

func runVoices(args []string) error {
	var jf jobFlags
	fs := flag.NewFlagSet("voices", flag.ExitOnError)
	jf.register(fs)
	_ = fs.Parse(args)

	cfg, err := config.Load(jf.configPath)
	if err != nil {
		return err
	}
	names, genders := splitList(jf.names), splitList(jf.genders)
	if len(names) == 0 {
		if len(genders) == 0 {
			genders = []string{string(voice.Male), string(voice.Female)}
		}
		names = voice.DefaultNames(genders)
	}
	if len(names) != len(genders) {
		return errors.New("names and genders must have the same length")
	}

	pools := podcast.OptionsFromConfig(cfg).Pools
	profiles := voice.Profiles(names, genders)
	m := voice.NewAssigner(pools, newLogger(jf.verbose)).Assign(profiles)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SPEAKER\tGENDER\tVOICE")
	for _, p := range profiles {
		v, _ := m.Voice(p.Name)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Gender, v)
	}
	return tw.Flush()
}

func runWorkers(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("workers", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	client, err := bus.Connect(ctx, "podcastctl", cfg.Bus, newLogger(false))
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var list []protocol.WorkerInfo
	if err := client.RequestJSON(ctx, protocol.SubjectWorkerList, struct{}{}, &list); err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORKER\tTTS\tFORMAT\tJOBS\tHEALTHY\tLAST SEEN")
	for _, w := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%t\t%s\n", w.WorkerID, w.TTSMode, w.AudioFormat, w.ActiveJobs, w.MaxJobs, w.Healthy, w.LastSeen.Format(time.RFC3339))
	}
	return tw.Flush()
}

func readScript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
