package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mfolio/internal/handler"
	"github.com/xxxsen/mfolio/internal/job"
	"github.com/xxxsen/mfolio/internal/middleware"
	"github.com/xxxsen/mfolio/internal/model"
	"github.com/xxxsen/mfolio/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "mfolio",
		Short:        "portfolio assistant retrieval backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	var force bool
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "embed all facts and projects once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			report, err := a.indexer.IndexAll(ctx, force)
			if report != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d skipped=%d failed=%d\n",
					report.Created, report.Updated, report.Skipped, report.Failed)
				for _, f := range report.Failures {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s:%s %s\n", f.ContentType, f.ContentID, f.Error)
				}
			}
			if err != nil {
				return err
			}
			_, err = a.indexer.Prune(ctx)
			return err
		},
	}
	indexCmd.Flags().BoolVar(&force, "force", false, "re-embed items that already have an embedding")

	var (
		threshold float64
		count     int
		types     string
		lexical   bool
	)
	searchCmd := &cobra.Command{
		Use:   "search [query]",
		Short: "run a hybrid search and print the prompt context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			opts := a.searchOpts
			if cmd.Flags().Changed("threshold") {
				opts.MatchThreshold = threshold
			}
			if cmd.Flags().Changed("count") {
				opts.MatchCount = count
			}
			if types != "" {
				opts.ContentTypes = nil
				for _, part := range strings.Split(types, ",") {
					t, err := model.ParseContentType(strings.TrimSpace(part))
					if err != nil {
						return err
					}
					opts.ContentTypes = append(opts.ContentTypes, t)
				}
			}
			opts.LexicalFallback = lexical
			resp, err := a.search.Search(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode=%s results=%d\n\n", resp.Mode, len(resp.Results))
			fmt.Fprintln(out, a.formatter.FormatContext(resp.Results))
			return nil
		},
	}
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum fused score")
	searchCmd.Flags().IntVar(&count, "count", 0, "maximum number of results")
	searchCmd.Flags().StringVar(&types, "types", "", "comma separated content types")
	searchCmd.Flags().BoolVar(&lexical, "lexical-fallback", false, "rank lexically when the query cannot be embedded")

	rootCmd.AddCommand(runCmd, indexCmd, searchCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("embed_provider", cfg.AI.EmbedProvider),
	)

	deps := handler.RouterDeps{
		Search:        handler.NewSearchHandler(a.search, a.formatter, a.searchOpts),
		Chat:          handler.NewChatHandler(a.chat),
		Admin:         handler.NewAdminHandler(a.indexer),
		AdminSecret:   []byte(cfg.AdminSecret),
		ChatRateLimit: time.Duration(cfg.Chat.RateLimitMs) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewReindexJob(a.indexer), cfg.Jobs.ReindexSpec); err != nil {
		return fmt.Errorf("schedule reindex: %w", err)
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Jobs.EmbeddingCacheMaxDays), cfg.Jobs.EmbeddingCacheCleanup); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	if scheduler.Len() > 0 {
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
