// dipreader is the command-line surface over the DIP archive core: index a
// package directory, search it semantically, verify file integrity, inspect
// or wipe the store, and watch a package for manifest changes.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/config"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/embedding"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/indexer"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/integrity"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/logging"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/semantic"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/store"
	"github.com/7-ZPUs/PoC-DIPReader-sub000/internal/vector"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string
	archiveDir string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dipreader",
	Short: "DIP archive reader - index, search and verify digital information packages",
	Long: `dipreader ingests a Digital Information Package (one manifest XML plus one
metadata sidecar per document) into a normalized SQLite archival model,
maintains a semantic vector index over it, and verifies file integrity
against the fingerprints captured at packaging time.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.Archive.DatabasePath = dbPath
		}
		if archiveDir != "" {
			cfg.Archive.Root = archiveDir
		}

		logOpts := logging.Options{
			DebugMode:  cfg.Logging.DebugMode,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}
		if err := logging.Initialize(cfg.Archive.Root, logOpts); err != nil {
			logger.Warn("Debug logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Index a package directory into the archive store",
	Long: `Locates the package manifest under the directory (default: the configured
archive root), builds the relational archival model, extracts each document's
metadata sidecar, and embeds every document for semantic search.

With --rebuild, all relational and vector tables are wiped first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Semantic search over indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [file-id]",
	Short: "Verify a file's integrity against its stored fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show archive store status",
	RunE:  runInfo,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe all relational and vector tables",
	RunE:  runClear,
}

var (
	rebuild     bool
	searchLimit int
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".dipreader/config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Archive store file (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&archiveDir, "root", "r", "", "Archive root directory (overrides config)")

	indexCmd.Flags().BoolVar(&rebuild, "rebuild", false, "Wipe all tables before indexing")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// =============================================================================
// WIRING
// =============================================================================

// session bundles the open store and engines one command runs against.
type session struct {
	store    *store.ArchiveStore
	vectors  *vector.Engine
	semantic *semantic.Service
}

func (s *session) close() {
	if s.vectors != nil {
		_ = s.vectors.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}

// openSession opens the store and vector engine; withEmbedder additionally
// constructs the embedding provider (skipped for commands that never embed).
func openSession(withEmbedder bool) (*session, error) {
	st, err := store.Open(cfg.Archive.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive store: %w", err)
	}

	eng := vector.New(vector.Options{
		Dimensions:    cfg.Vector.Dimensions,
		FallbackFloor: cfg.Vector.FallbackFloor,
		NativeFloor:   cfg.Vector.NativeFloor,
	})
	if cfg.Vector.ValidateDocID {
		eng.SetDocumentValidator(st.DocumentExists)
	}
	if err := eng.Open(st.Path()); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	s := &session{store: st, vectors: eng}
	if withEmbedder {
		embedder, err := embedding.NewEngine(cfg.Embedding)
		if err != nil {
			s.close()
			return nil, err
		}
		s.semantic = semantic.New(embedder, eng)
	}
	return s, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func runIndex(cmd *cobra.Command, args []string) error {
	root := cfg.Archive.Root
	if len(args) > 0 {
		root = args[0]
	}

	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	ix := indexer.New(s.store, s.semantic)
	var stats *indexer.RunStats
	if rebuild {
		stats, err = ix.Reindex(cmd.Context(), root)
	} else {
		stats, err = ix.Run(cmd.Context(), root)
	}
	if err != nil {
		return err
	}

	logger.Info("Index run complete",
		zap.Int("classes", stats.Classes),
		zap.Int("aips", stats.AIPs),
		zap.Int("documents", stats.Documents),
		zap.Int("files", stats.Files),
		zap.Int("sidecars", stats.Sidecars),
		zap.Int("embedded", stats.Embedded),
		zap.Int("failures", stats.Failures))
	fmt.Printf("Indexed %d documents (%d files, %d embedded, %d failures)\n",
		stats.Documents, stats.Files, stats.Embedded, stats.Failures)
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	s, err := openSession(true)
	if err != nil {
		return err
	}
	defer s.close()

	hits, err := s.semantic.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%2d. doc %-6d score %.4f\n", i+1, h.DocID, h.Score)
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	fileID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid file id %q: %w", args[0], err)
	}

	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := integrity.New(s.store, cfg.Archive.Root).Verify(fileID)
	if err != nil {
		return err
	}
	if result.Valid {
		fmt.Printf("file %d: VALID (%s)\n", fileID, result.Algorithm)
	} else {
		fmt.Printf("file %d: INVALID\n  stored:   %s\n  computed: %s\n",
			fileID, result.ExpectedDigest, result.ActualDigest)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	docs, err := s.store.DocumentCount()
	if err != nil {
		return err
	}
	files, err := s.store.FileCount()
	if err != nil {
		return err
	}
	info := s.vectors.Info()

	fmt.Printf("store:     %s\n", s.store.Path())
	fmt.Printf("documents: %d\n", docs)
	fmt.Printf("files:     %d\n", files)
	fmt.Printf("vectors:   %d (backend=%s)\n", info.VectorCount, info.Backend)
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	s, err := openSession(false)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.store.ClearAll(); err != nil {
		return err
	}
	if err := s.vectors.Clear(); err != nil {
		return err
	}
	fmt.Println("Archive store cleared.")
	return nil
}
