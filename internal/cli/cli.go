// Package cli wires the factory pipelines behind a cobra command tree. The
// interactive planner front-end lives elsewhere; these commands are the
// integration surface for scripts and CI.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvp-joe/code-factory/internal/config"
	"github.com/mvp-joe/code-factory/internal/embed"
	"github.com/mvp-joe/code-factory/internal/graph"
	"github.com/mvp-joe/code-factory/internal/indexer"
	"github.com/mvp-joe/code-factory/internal/llm"
	"github.com/mvp-joe/code-factory/internal/modify"
	"github.com/mvp-joe/code-factory/internal/patchapply"
	"github.com/mvp-joe/code-factory/internal/rag"
	"github.com/mvp-joe/code-factory/internal/sre"
	"github.com/mvp-joe/code-factory/internal/store"
)

// New builds the root command.
func New() *cobra.Command {
	var rootDir string
	var verbose bool

	root := &cobra.Command{
		Use:           "factory",
		Short:         "LLM-driven code modification and operations pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&rootDir, "project", "p", ".", "project root directory")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newIndexCmd(&rootDir, &verbose))
	root.AddCommand(newModifyCmd(&rootDir, &verbose))
	root.AddCommand(newSRECmd(&rootDir, &verbose))
	return root
}

// Execute runs the CLI; exit code 0 on a clean session end.
func Execute() {
	if err := New().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	provider embed.Provider
	budget   *llm.Budget
}

func openSession(rootDir string, verbose bool) (*session, error) {
	logger, err := newLogger(verbose)
	if err != nil {
		return nil, err
	}
	cfg, err := config.NewLoader(rootDir).Load()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Options{
		Dir:        rootDir + "/.factory",
		Persistent: true,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	provider, err := embed.NewHTTPProvider(embed.HTTPProviderOptions{
		Endpoint:       cfg.Embedding.Endpoint,
		Dimensions:     cfg.Embedding.Dimensions,
		MaxConcurrency: cfg.Embedding.Workers,
		Logger:         logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &session{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		provider: provider,
		budget:   llm.NewBudget(cfg.LLM.BudgetTokens),
	}, nil
}

func (s *session) close() {
	usage := s.budget.Finalize()
	if usage.Total() > 0 {
		fmt.Printf("Session consumed ~%s tokens (~$%.4f)\n",
			humanize.Comma(int64(usage.Total())), usage.CostEstimate)
	}
	s.provider.Close()
	s.store.Close()
	s.logger.Sync()
}

func newIndexCmd(rootDir *string, verbose *bool) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project into the retrieval store",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(*rootDir, *verbose)
			if err != nil {
				return err
			}
			defer sess.close()

			ix, err := indexer.New(indexer.Options{
				RootDir:  *rootDir,
				Store:    sess.store,
				Provider: sess.provider,
				Workers:  sess.cfg.Indexer.Workers,
				Logger:   sess.logger,
			})
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("indexing"),
				progressbar.OptionSpinnerType(14))
			report, err := ix.Index(cmd.Context())
			bar.Finish()
			if err != nil {
				return err
			}

			fmt.Printf("indexed %d files (%s chunks), %d unchanged, %d skipped, %d errors in %s\n",
				report.FilesIndexed,
				humanize.Comma(int64(report.ChunksIndexed)),
				report.FilesUnchanged,
				report.FilesSkipped,
				len(report.Errors),
				report.Duration.Round(10*time.Millisecond))
			for _, e := range report.Errors {
				fmt.Println("  !", e)
			}

			if watch {
				fmt.Println("watching for changes; ctrl-c to stop")
				return ix.Watch(cmd.Context())
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-index on file changes")
	return cmd
}

func newModifyCmd(rootDir *string, verbose *bool) *cobra.Command {
	var (
		action, file, what, how, function string
		apply, runSRE                     bool
	)
	cmd := &cobra.Command{
		Use:   "modify [free-text request]",
		Short: "Run the modification pipeline against the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(*rootDir, *verbose)
			if err != nil {
				return err
			}
			defer sess.close()

			client, err := llm.NewOpenAIClient(llm.OpenAIOptions{
				APIKey:  os.Getenv(sess.cfg.LLM.APIKeyEnv),
				BaseURL: sess.cfg.LLM.BaseURL,
				Model:   sess.cfg.LLM.Model,
				Charger: sess.budget,
				Logger:  sess.logger,
			})
			if err != nil {
				return err
			}

			req := modify.Request{ProjectRoot: *rootDir}
			if file != "" {
				req.Structured = &modify.StructuredPrompt{
					Action:   modify.Action(action),
					File:     file,
					What:     what,
					How:      how,
					Function: function,
				}
			} else if len(args) > 0 {
				req.Prompt = args[0]
			} else {
				return fmt.Errorf("either --file or a free-text request is required")
			}

			// Retrieval context for the request.
			builder := rag.NewBuilder(sess.store, sess.provider, sess.cfg.Pipeline.TokenBudget, sess.logger)
			if contextBlock, ragErr := builder.Build(cmd.Context(), req.TaskText(), nil, nil); ragErr == nil {
				req.RAGContext = contextBlock
			}

			interactor, err := modify.NewInteractor(modify.InteractorOptions{
				Analyzer:  modify.NewAnalyzer(client, sess.logger),
				Modifier:  modify.NewModifier(client, sess.logger),
				Validator: modify.NewValidator(client, sess.logger),
				Budget:    sess.budget,
				Retries:   sess.cfg.Pipeline.Retries,
				GraphFor: func(ctx context.Context, r modify.Request) (*graph.SemanticGraph, error) {
					discovery, dErr := indexer.NewFileDiscovery(r.ProjectRoot, nil)
					if dErr != nil {
						return nil, dErr
					}
					files, _, dErr := discovery.Discover()
					if dErr != nil {
						return nil, dErr
					}
					return graph.NewBuilder(sess.logger).Build(ctx, r.ProjectRoot, files)
				},
				Logger: sess.logger,
			})
			if err != nil {
				return err
			}

			result, err := interactor.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			printResult(result)

			if apply && result.Validation.OK && !result.Patch.Empty() {
				applier := patchapply.New(*rootDir, sess.logger)
				if err := applier.Apply(cmd.Context(), result.Patch); err != nil {
					return err
				}
				fmt.Println("patch applied")

				// Re-index only after a successful application.
				ix, ixErr := indexer.New(indexer.Options{
					RootDir:  *rootDir,
					Store:    sess.store,
					Provider: sess.provider,
					Logger:   sess.logger,
				})
				if ixErr == nil {
					ix.Index(cmd.Context())
				}

				if runSRE {
					lead := sre.NewLead(afero.NewOsFs(), *rootDir, sre.ProbeDockerCLI(), sess.logger)
					printJSON(lead.Run(cmd.Context()))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&action, "action", "modify", "create, modify, or delete")
	cmd.Flags().StringVar(&file, "file", "", "target file (project-relative)")
	cmd.Flags().StringVar(&what, "what", "", "what to change")
	cmd.Flags().StringVar(&how, "how", "", "how to change it")
	cmd.Flags().StringVar(&function, "function", "", "target function for function-level changes")
	cmd.Flags().BoolVar(&apply, "apply", false, "apply the patch on success")
	cmd.Flags().BoolVar(&runSRE, "sre", false, "run the SRE pipeline after applying")
	return cmd
}

func newSRECmd(rootDir *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "sre",
		Short: "Run the operational pipeline and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			lead := sre.NewLead(afero.NewOsFs(), *rootDir, sre.ProbeDockerCLI(), logger)
			printJSON(lead.Run(cmd.Context()))
			return nil
		},
	}
}

func printResult(result *modify.Result) {
	if result.Degraded {
		fmt.Println("degraded:", result.Reason)
	}
	fmt.Printf("risk: %.1f/10, validation ok: %v\n",
		result.Analysis.RiskAssessment.OverallRisk, result.Validation.OK)
	for _, msg := range result.Validation.Messages {
		fmt.Println("  -", msg)
	}
	if !result.Patch.Empty() {
		fmt.Println(result.Patch.Text)
	}
	if result.Docs != "" {
		fmt.Println(string(result.Docs))
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println("failed to render report:", err)
		return
	}
	fmt.Println(string(out))
}
