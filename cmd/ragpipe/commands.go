package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/ragpipe"
	"github.com/poiesic/ragpipe/config"
	"github.com/poiesic/ragpipe/core"
	"github.com/poiesic/ragpipe/ingestion"
	"github.com/poiesic/ragpipe/reembed"
	"github.com/poiesic/ragpipe/retrieval"
	"github.com/poiesic/ragpipe/retry"
	"github.com/poiesic/ragpipe/server"
	"github.com/poiesic/ragpipe/vectorstore"
	"github.com/urfave/cli/v2"
)

// loadConfig reads config and applies the global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.String("env-file"))
	if err != nil {
		return nil, err
	}
	if store := c.String("store"); store != "" {
		cfg.Store.Backend = store
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Badger.Path = db
		cfg.Store.Badger.InMemory = false
	}
	if ns := c.String("namespace"); ns != "" {
		cfg.Store.Namespace = ns
	}
	return cfg, nil
}

func openPipeline(c *cli.Context) (*ragpipe.Pipeline, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	p, err := ragpipe.Open(c.Context, cfg, ragpipe.WithProgress(c.App.ErrWriter))
	if err != nil {
		return nil, nil, err
	}
	return p, cfg, nil
}

func withRetry(c *cli.Context, op func(ctx context.Context) error) error {
	return retry.WithBackoff(c.Context, op, c.Int("max-retries"), c.Duration("retry-delay"))
}

// parseMeta turns key=value pairs into metadata. Values that parse as a
// bool or number are stored as such.
func parseMeta(pairs []string) (core.Metadata, error) {
	md := make(core.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q is not key=value", core.ErrInvalidMetadata, pair)
		}
		md[key] = core.ParseValue(value)
	}
	return md, nil
}

func queryOptions(c *cli.Context, cfg *config.Config, useConfigWindow bool) ([]retrieval.QueryOption, error) {
	var opts []retrieval.QueryOption
	if useConfigWindow {
		opts = append(opts,
			retrieval.WithTopK(cfg.Retrieval.TopK),
			retrieval.WithTopN(cfg.Retrieval.TopN),
			retrieval.WithMaxChars(cfg.Retrieval.MaxChars),
		)
	}
	opts = append(opts,
		retrieval.WithThreshold(cfg.Retrieval.Threshold),
		retrieval.WithRerank(cfg.Retrieval.RerankOrDefault() && !c.Bool("no-rerank")),
	)
	if c.IsSet("top-k") {
		opts = append(opts, retrieval.WithTopK(c.Int("top-k")))
	}
	if c.IsSet("top-n") {
		opts = append(opts, retrieval.WithTopN(c.Int("top-n")))
	}
	if c.IsSet("threshold") {
		opts = append(opts, retrieval.WithThreshold(c.Float64("threshold")))
	}
	if c.IsSet("max-chars") {
		opts = append(opts, retrieval.WithMaxChars(c.Int("max-chars")))
	}
	if raw := c.String("filter"); raw != "" {
		filter, err := parseFilter(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, retrieval.WithFilter(filter))
	}
	return opts, nil
}

func parseFilter(raw string) (vectorstore.Filter, error) {
	var filter vectorstore.Filter
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		return nil, fmt.Errorf("%w: %w", vectorstore.ErrInvalidFilter, err)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ensureIndexCommand(c *cli.Context) error {
	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	return withRetry(c, p.EnsureIndex)
}

func uploadCommand(c *cli.Context) error {
	file, text := c.String("file"), c.String("text")
	if (file == "") == (text == "") {
		return fmt.Errorf("exactly one of --file or --text is required")
	}
	md, err := parseMeta(c.StringSlice("meta"))
	if err != nil {
		return err
	}

	// Fix the id up front so retries write to the same document.
	docID := c.String("doc-id")
	if docID == "" {
		docID = core.NewDocumentID()
	}
	if err := core.ValidateDocumentID(docID); err != nil {
		return err
	}
	opts := []ingestion.UploadOption{ingestion.WithDocumentID(docID), ingestion.WithMetadata(md)}
	if c.Bool("replace") {
		opts = append(opts, ingestion.WithReplace())
	}

	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	err = withRetry(c, func(ctx context.Context) error {
		if file != "" {
			_, err := p.UploadFile(ctx, file, opts...)
			return err
		}
		_, err := p.Upload(ctx, text, opts...)
		return err
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	fmt.Fprintln(c.App.Writer, docID)
	return nil
}

func uploadDirCommand(c *cli.Context) error {
	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	results, err := p.UploadDirectory(c.Context, c.String("dir"), c.StringSlice("ext")...)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(c.App.Writer, "%s\tERROR\t%v\n", r.File, r.Err)
			continue
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", r.File, r.DocID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed to upload", failed, len(results))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	docID := c.String("doc-id")
	if err := core.ValidateDocumentID(docID); err != nil {
		return err
	}

	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	var result vectorstore.DeleteResult
	err = withRetry(c, func(ctx context.Context) error {
		var err error
		result, err = p.Delete(ctx, docID)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted %d vectors of document %s\n", result.Deleted, docID)
	return nil
}

func deleteAllCommand(c *cli.Context) error {
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to delete the whole namespace without --yes")
	}

	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := withRetry(c, p.DeleteAll); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "deleted namespace %s\n", p.Namespace())
	return nil
}

func updateMetadataCommand(c *cli.Context) error {
	docID := c.String("doc-id")
	if err := core.ValidateDocumentID(docID); err != nil {
		return err
	}
	delta, err := parseMeta(c.StringSlice("meta"))
	if err != nil {
		return err
	}

	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	var result vectorstore.UpdateResult
	err = withRetry(c, func(ctx context.Context) error {
		var err error
		result, err = p.UpdateMetadata(ctx, docID, delta)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "updated %d of %d vectors of document %s\n", result.Updated, result.Matched, docID)
	return nil
}

type retrieveOutput struct {
	Query             string           `json:"query"`
	RerankStatus      string           `json:"rerank_status"`
	RerankError       string           `json:"rerank_error,omitempty"`
	ThresholdFallback bool             `json:"threshold_fallback"`
	Candidates        []core.Candidate `json:"candidates"`
}

func retrieveCommand(c *cli.Context) error {
	p, cfg, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	opts, err := queryOptions(c, cfg, true)
	if err != nil {
		return err
	}
	query := c.String("query")

	var result retrieval.RetrieveResult
	err = withRetry(c, func(ctx context.Context) error {
		var err error
		result, err = p.Retrieve(ctx, query, opts...)
		return err
	})
	if err != nil {
		return err
	}

	out := retrieveOutput{
		Query:             query,
		RerankStatus:      result.RerankStatus.String(),
		ThresholdFallback: result.ThresholdFallback,
		Candidates:        result.Candidates,
	}
	if result.RerankErr != nil {
		out.RerankError = result.RerankErr.Error()
	}
	return printJSON(c, out)
}

func searchCommand(c *cli.Context) error {
	p, cfg, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	opts, err := queryOptions(c, cfg, false)
	if err != nil {
		return err
	}
	return printJSON(c, p.SearchDocuments(c.Context, c.String("query"), opts...))
}

func contextCommand(c *cli.Context) error {
	p, cfg, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	opts, err := queryOptions(c, cfg, true)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, p.Context(c.Context, c.String("query"), opts...))
	return nil
}

func reembedCommand(c *cli.Context) error {
	p, _, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Reembed(c.Context, &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Force:          c.Bool("force"),
	})
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "re-embedded %d, skipped %d of %d vectors\n", result.Reembedded, result.Skipped, result.Scanned)
	return nil
}

func serveCommand(c *cli.Context) error {
	p, cfg, err := openPipeline(c)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := cfg.Server.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	srv := server.New(p, addr,
		server.WithRequestTimeout(cfg.Server.RequestTimeout),
		server.WithRetry(c.Int("max-retries"), c.Duration("retry-delay")),
	)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		fmt.Fprintln(c.App.ErrWriter, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	}
}
