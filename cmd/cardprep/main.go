// Package main is the cardprep CLI entry point.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ApplesHUFS/AAC-Software-sub001/internal/artifact"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/cli"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/cluster"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/config"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/dataset"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/embedding"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/filter"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/models"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/pipeline"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/report"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/store"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/tagger"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/tagindex"
	"github.com/ApplesHUFS/AAC-Software-sub001/internal/watcher"
	"github.com/ApplesHUFS/AAC-Software-sub001/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/cardprep/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys may live in a .env next to the binary; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "run":
		runPipeline()
	case "filter", "embed", "cluster", "tag":
		runSingleStage(command)
	case "search":
		runSearch()
	case "export":
		runExport()
	case "watch":
		runWatch()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("cardprep version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

type setupFlags struct {
	configPath *string
	debug      *bool
	yes        *bool
}

func addSetupFlags(fs *flag.FlagSet) setupFlags {
	return setupFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		yes:        fs.Bool("yes", false, "overwrite existing artifacts without prompting"),
	}
}

// setup loads config, builds the logger, and initializes components.
func setup(flags setupFlags) (*config.Config, *zap.Logger, *Components) {
	cfg, resolvedPath, err := loadConfig(*flags.configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *flags.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runnerFor(cfg *config.Config, logger *zap.Logger, c *Components, overwrite bool) *pipeline.Runner {
	return pipeline.NewRunner(
		cfg,
		c.Manifest,
		c.Scanner,
		c.Filter,
		c.Embedder,
		c.Clusterer,
		c.Tagger,
		pipeline.WithLogger(logger),
		pipeline.WithOverwrite(overwrite),
		pipeline.WithConfirm(confirmStdin),
	)
}

func runPipeline() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	flags := addSetupFlags(fs)
	from := fs.String("from", "", "first stage to run (filter|embed|cluster|tag)")
	until := fs.String("until", "", "last stage to run")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(flags)
	defer logger.Sync()
	defer components.Close()

	runner := runnerFor(cfg, logger, components, *flags.yes)
	ctx := signalContext()
	if err := runner.Run(ctx, *from, *until); err != nil {
		logger.Fatal("pipeline halted", zap.Error(err))
	}
	logger.Info("pipeline finished")
}

func runSingleStage(stage string) {
	fs := flag.NewFlagSet(stage, flag.ExitOnError)
	flags := addSetupFlags(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(flags)
	defer logger.Sync()
	defer components.Close()

	runner := runnerFor(cfg, logger, components, *flags.yes)
	ctx := signalContext()
	if err := runner.RunStage(ctx, stage); err != nil {
		logger.Fatal("stage halted", zap.Error(err))
	}
	logger.Info("stage finished", zap.String("stage", stage))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of results")
	rebuild := fs.Bool("rebuild", false, "rebuild the tag index from artifacts before searching")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if fs.NArg() < 1 {
		fmt.Println("Usage: cardprep search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: cardprep search [flags] <query>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	indexPath := cfg.Artifacts.TagIndexPath
	if *rebuild {
		if err := os.RemoveAll(indexPath); err != nil {
			fmt.Printf("Failed to remove old tag index: %v\n", err)
			os.Exit(1)
		}
	}
	_, statErr := os.Stat(indexPath)
	needBuild := os.IsNotExist(statErr)

	idx, err := tagindex.New(indexPath)
	if err != nil {
		fmt.Printf("Failed to open tag index: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	if needBuild {
		if err := buildTagIndex(ctx, cfg, idx); err != nil {
			fmt.Printf("Failed to build tag index: %v\n", err)
			os.Exit(1)
		}
	}

	results, err := idx.Search(ctx, query, *limit)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, results, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

// buildTagIndex populates idx from the tags and clusters artifacts plus the
// manifest labels.
func buildTagIndex(ctx context.Context, cfg *config.Config, idx *tagindex.Index) error {
	tags, err := artifact.ReadTags(cfg.Artifacts.TagsPath)
	if err != nil {
		return fmt.Errorf("run the tag stage first: %w", err)
	}
	clusters, err := artifact.ReadClusters(cfg.Artifacts.ClustersPath)
	if err != nil {
		return fmt.Errorf("run the cluster stage first: %w", err)
	}

	manifest, err := store.NewSQLiteStore(cfg.Artifacts.ManifestPath)
	if err != nil {
		return err
	}
	defer manifest.Close()
	cards, err := manifest.AcceptedCards(ctx)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(cards))
	for _, c := range cards {
		labels[c.ID] = c.Label
	}
	members := make(map[models.ClusterKey][]string)
	for _, a := range clusters.Assignments {
		if label := labels[a.ImageID]; label != "" {
			members[a.Key] = append(members[a.Key], label)
		}
	}
	return idx.IndexTags(ctx, tags, members)
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "", "output xlsx path (default from config)")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	outPath := *output
	if outPath == "" {
		outPath = cfg.Artifacts.ReportPath
	}

	clusters, err := artifact.ReadClusters(cfg.Artifacts.ClustersPath)
	if err != nil {
		fmt.Printf("Failed to read clusters (run the cluster stage first): %v\n", err)
		os.Exit(1)
	}
	tags, err := artifact.ReadTags(cfg.Artifacts.TagsPath)
	if err != nil {
		// Report still works without tags; cells stay empty.
		tags = nil
	}

	ctx := context.Background()
	manifest, err := store.NewSQLiteStore(cfg.Artifacts.ManifestPath)
	if err != nil {
		fmt.Printf("Failed to open manifest: %v\n", err)
		os.Exit(1)
	}
	defer manifest.Close()

	cards, err := manifest.ListCards(ctx)
	if err != nil {
		fmt.Printf("Failed to load cards: %v\n", err)
		os.Exit(1)
	}
	labels := make(map[string]string, len(cards))
	for _, c := range cards {
		labels[c.ID] = c.Label
	}
	rejections, err := manifest.RejectionCounts(ctx)
	if err != nil {
		fmt.Printf("Failed to load rejection counts: %v\n", err)
		os.Exit(1)
	}

	summary := report.Summary{
		Assignments:    clusters.Assignments,
		Tags:           tags,
		Labels:         labels,
		Rejections:     rejections,
		FineSilhouette: clusters.FineSilhouette,
	}
	if err := report.Write(outPath, summary); err != nil {
		fmt.Printf("Export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Report written: %s\n", outPath)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	flags := addSetupFlags(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(flags)
	defer logger.Sync()
	defer components.Close()

	runner := runnerFor(cfg, logger, components, true)
	ctx := signalContext()

	w := watcher.New(
		cfg.Dataset.Directory,
		cfg.Dataset.Extensions,
		func(paths []string) {
			logger.Info("dataset changed, refreshing",
				zap.Int("changed_files", len(paths)))
			if err := runner.Run(ctx, models.StageFilter, models.StageEmbed); err != nil {
				logger.Warn("refresh failed", zap.Error(err))
			}
		},
		watcher.WithLogger(logger),
	)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()

	logger.Info("watching for dataset changes", zap.String("directory", cfg.Dataset.Directory))
	<-ctx.Done()
	logger.Info("Shutting down...")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	manifest, err := store.NewSQLiteStore(cfg.Artifacts.ManifestPath)
	if err != nil {
		fmt.Printf("Failed to open manifest: %v\n", err)
		os.Exit(1)
	}
	defer manifest.Close()

	cards, err := manifest.ListCards(ctx)
	if err != nil {
		fmt.Printf("Failed to load cards: %v\n", err)
		os.Exit(1)
	}
	accepted, err := manifest.AcceptedCards(ctx)
	if err != nil {
		fmt.Printf("Failed to load accepted cards: %v\n", err)
		os.Exit(1)
	}
	rejections, err := manifest.RejectionCounts(ctx)
	if err != nil {
		fmt.Printf("Failed to load rejection counts: %v\n", err)
		os.Exit(1)
	}
	runs, err := manifest.ListRuns(ctx, 10)
	if err != nil {
		fmt.Printf("Failed to load runs: %v\n", err)
		os.Exit(1)
	}
	lastStage, err := manifest.LastSuccessfulStage(ctx)
	if err != nil {
		fmt.Printf("Failed to load run log: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		out := map[string]interface{}{
			"cards":                 len(cards),
			"accepted":              len(accepted),
			"rejections":            rejections,
			"last_successful_stage": lastStage,
			"recent_runs":           runs,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Printf("Cards scanned:   %d\n", len(cards))
	fmt.Printf("Cards accepted:  %d\n", len(accepted))
	if len(rejections) > 0 {
		fmt.Println("Rejections:")
		for reason, n := range rejections {
			fmt.Printf("  %-18s %d\n", reason, n)
		}
	}
	if lastStage != "" {
		fmt.Printf("Last successful stage: %s\n", lastStage)
	}
	if len(runs) > 0 {
		fmt.Println("Recent runs:")
		for _, r := range runs {
			outcome := "failed"
			if r.Succeeded {
				outcome = "ok"
			}
			fmt.Printf("  %s  %-8s %-6s %s\n",
				r.StartedAt.Format(time.RFC3339), r.Stage, outcome, r.ID)
		}
	}
}

// confirmStdin asks the user on stdin; any answer other than y/yes refuses.
func confirmStdin(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx
}

// Components holds initialized services.
type Components struct {
	Manifest  *store.SQLiteStore
	Encoder   embedding.Encoder
	Scanner   *dataset.Scanner
	Filter    *filter.Filter
	Embedder  *embedding.Embedder
	Clusterer *cluster.Clusterer
	Tagger    *tagger.Tagger
}

func (c *Components) Close() {
	if c.Manifest != nil {
		_ = c.Manifest.Close()
	}
	if c.Encoder != nil {
		_ = c.Encoder.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	manifest, err := store.NewSQLiteStore(cfg.Artifacts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize manifest: %w", err)
	}

	var encoder embedding.Encoder
	onnxEncoder, err := embedding.NewONNXEncoder(
		cfg.Embedding.ImageModelPath,
		cfg.Embedding.TextModelPath,
		cfg.Embedding.Dimensions,
	)
	if err != nil {
		logger.Warn("CLIP models unavailable, using mock encoder", zap.Error(err))
		encoder = embedding.NewMockEncoder(cfg.Embedding.Dimensions)
	} else {
		encoder = onnxEncoder
	}

	scanner := dataset.NewScanner(cfg.Dataset.Directory, cfg.Dataset.Extensions, cfg.Dataset.LabelsFile)

	var filterOpts []filter.Option
	var embedOpts []embedding.EmbedderOption
	var clusterOpts []cluster.Option
	var tagOpts []tagger.Option
	if debug {
		filterOpts = append(filterOpts, filter.WithLogger(logger))
		embedOpts = append(embedOpts, embedding.WithLogger(logger))
		clusterOpts = append(clusterOpts, cluster.WithLogger(logger))
	}
	tagOpts = append(tagOpts, tagger.WithLogger(logger))

	pacer := tagger.NewPacer(
		time.Duration(cfg.Tagger.RequestDelayMs)*time.Millisecond,
		cfg.Tagger.MaxRetries,
	)
	client := tagger.NewOpenAIClient(&cfg.Tagger)

	return &Components{
		Manifest:  manifest,
		Encoder:   encoder,
		Scanner:   scanner,
		Filter:    filter.New(&cfg.Filter, filterOpts...),
		Embedder:  embedding.NewEmbedder(encoder, &cfg.Embedding, embedOpts...),
		Clusterer: cluster.New(&cfg.Cluster, clusterOpts...),
		Tagger:    tagger.New(client, pacer, cfg.Tagger.MaxRepresentatives, tagOpts...),
	}, nil
}

func printUsage() {
	fmt.Println(`cardprep - AAC card dataset preparation pipeline

Usage:
  cardprep run [flags]            Run the full pipeline (filter, embed, cluster, tag)
  cardprep filter [flags]         Scan the dataset and filter card images
  cardprep embed [flags]          Compute fused image+text embeddings
  cardprep cluster [flags]        Cluster embeddings into coarse/fine groups
  cardprep tag [flags]            Tag clusters via the vision API
  cardprep search [flags] <query> Search cluster tags
  cardprep export [flags]         Export a cluster summary workbook
  cardprep watch [flags]          Watch the dataset and refresh on changes
  cardprep status [flags]         Show manifest and run log status
  cardprep version                Show version
  cardprep help                   Show this help

Pipeline Flags (run and stage commands):
  --config string    Config file path (default: /usr/local/etc/cardprep/config.yaml)
  --debug            Enable debug logging
  --yes              Overwrite existing artifacts without prompting
  --from string      First stage to run (run command only)
  --until string     Last stage to run (run command only)

Search Flags:
  --config string    Config file path
  --limit int        Number of results (default: 10)
  --rebuild          Rebuild the tag index from artifacts before searching
  --output string    Output format: text or json (default: text)

Export Flags:
  --config string    Config file path
  --output string    Output xlsx path (default from config)

Status Flags:
  --config string    Config file path
  --output string    Output format: text or json (default: text)

Examples:
  cardprep run --yes
  cardprep run --from cluster
  cardprep embed --yes
  cardprep search animals
  cardprep export --output clusters.xlsx
  cardprep watch
  cardprep status --output json`)
}
