package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/watcher"
)

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &http.Client{Timeout: timeout}
}

func newServerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			engine := components.Engine

			if cfg.Watch.Enabled {
				w := watcher.NewWatcher(cfg.Storage.UploadDir,
					func(ctx context.Context, path, name string) {
						if _, err := engine.IndexFile(ctx, path, name); err != nil {
							logger.Warn("watch index file failed", zap.String("path", path), zap.Error(err))
						}
					},
					func(ctx context.Context, name string) {
						if err := engine.DeleteDocument(ctx, name); err != nil {
							logger.Warn("watch delete document failed", zap.String("document", name), zap.Error(err))
						}
					},
					watcher.WithExtensions(cfg.Indexing.AllowedExtensions),
					watcher.WithDebounce(cfg.Watch.Debounce),
					watcher.WithLogger(logger),
				)
				if err := w.Start(ctx); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}
				defer w.Stop()
				go func() {
					if err := w.SyncExistingFiles(ctx); err != nil {
						logger.Warn("initial sync failed", zap.Error(err))
					}
				}()
			}

			srv := server.NewServer(engine, components.Store, cfg, logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			select {
			case <-sigChan:
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			}

			logger.Info("Shutting down...")
			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			question := joinArgs(args)
			if question == "" {
				return fmt.Errorf("question cannot be empty")
			}

			var ans *models.Answer
			if a.serverURL != "" {
				ans = &models.Answer{}
				if err := postJSON(a.serverURL+"/chat", models.ChatRequest{Message: question}, ans); err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
			} else {
				cfg, logger, err := a.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				ctx := cmd.Context()
				components, err := initializeComponents(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer components.Close()
				if ans, err = components.Engine.AnswerQuestion(ctx, question); err != nil {
					return fmt.Errorf("ask failed: %w", err)
				}
			}
			return cli.WriteAnswer(cmd.OutOrStdout(), ans, format)
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the retrieval candidates for a query without asking the model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			req := models.SearchRequest{Query: joinArgs(args), TopK: topK}

			resp := &models.SearchResponse{}
			if a.serverURL != "" {
				if err := req.Validate(); err != nil {
					return err
				}
				if err := postJSON(a.serverURL+"/search", req, resp); err != nil {
					return fmt.Errorf("search failed: %w", err)
				}
				return cli.WriteCandidates(cmd.OutOrStdout(), resp, format)
			}

			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()
			if req.TopK <= 0 {
				req.TopK = components.Engine.TopK()
			}
			if err := req.Validate(); err != nil {
				return err
			}
			start := time.Now()
			candidates, err := components.Engine.Search(ctx, req.Query, req.TopK)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			resp = &models.SearchResponse{Query: req.Query, Candidates: candidates, QueryTime: time.Since(start).Milliseconds()}
			return cli.WriteCandidates(cmd.OutOrStdout(), resp, format)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of candidates (default: retrieval.top_k)")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	var noCopy bool
	cmd := &cobra.Command{
		Use:   "index [file|dir|glob]...",
		Short: "Index documents (globs like docs/**/*.pdf are expanded); no arguments re-indexes the upload directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if len(args) == 0 {
				return reindexUploads(cmd, cfg, logger)
			}

			paths, err := expandInputs(args, cfg.Indexing.AllowedExtensions)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no matching documents")
			}

			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			bar := progressbar.NewOptions(len(paths),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionSetDescription("Indexing"),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(cmd.ErrOrStderr()) }),
			)
			var entries, failed int
			for _, path := range paths {
				name := fileid.DocumentName(path)
				bar.Describe("Indexing " + name)
				target := path
				if !noCopy {
					if target, err = copyIntoStore(components.Store, path); err != nil {
						logger.Warn("copy into upload dir failed", zap.String("path", path), zap.Error(err))
						failed++
						_ = bar.Add(1)
						continue
					}
				}
				n, err := components.Engine.IndexFile(ctx, target, name)
				if err != nil {
					logger.Warn("indexing failed", zap.String("path", path), zap.Error(err))
					failed++
				}
				entries += n
				_ = bar.Add(1)
			}
			_ = bar.Finish()
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d file(s), %d page chunk(s)\n", len(paths)-failed, entries)
			if failed > 0 {
				return fmt.Errorf("%d file(s) failed to index", failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCopy, "no-copy", false, "index files in place instead of copying them into the upload directory")
	return cmd
}

func reindexUploads(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close()
	files, entries, err := components.Engine.IndexDirectory(ctx, components.Store.Dir(), cfg.Indexing.AllowedExtensions)
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d file(s), %d page chunk(s)\n", files, entries)
	if err != nil {
		return fmt.Errorf("re-index failed: %w", err)
	}
	return nil
}

// expandInputs resolves files, directories and doublestar globs to a sorted list of
// files. Directories and glob matches are filtered by allowed; explicit files are not.
func expandInputs(args []string, allowed []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, arg := range args {
		matches := []string{arg}
		isGlob := strings.ContainsAny(arg, "*?[{")
		if isGlob {
			var err error
			if matches, err = doublestar.FilepathGlob(arg); err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
			}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", m, err)
			}
			if !info.IsDir() {
				if !isGlob || indexer.ExtensionAllowed(filepath.Ext(m), allowed) {
					add(m)
				}
				continue
			}
			err = filepath.WalkDir(m, func(path string, d fs.DirEntry, walkErr error) error {
				if walkErr != nil {
					return walkErr
				}
				if d.Type().IsRegular() && indexer.ExtensionAllowed(filepath.Ext(path), allowed) {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func copyIntoStore(store *storage.FileStore, path string) (string, error) {
	if dst, err := store.Path(filepath.Base(path)); err == nil {
		if abs, err := filepath.Abs(dst); err == nil && abs == filepath.Clean(path) {
			return path, nil
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return store.Save(filepath.Base(path), f)
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a document file and its index entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if a.serverURL != "" {
				req, err := http.NewRequest(http.MethodDelete, a.serverURL+"/files/"+url.PathEscape(name), nil)
				if err != nil {
					return err
				}
				if err := doJSON(req, nil); err != nil {
					return fmt.Errorf("delete failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
				return nil
			}

			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()
			components, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Store.Delete(name); err != nil && !errors.Is(err, models.ErrNotFound) {
				return err
			}
			if err := components.Engine.DeleteDocument(ctx, name); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", name)
			return nil
		},
	}
}

func newFilesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			var files []string
			if a.serverURL != "" {
				var resp models.FilesResponse
				req, err := http.NewRequest(http.MethodGet, a.serverURL+"/files", nil)
				if err != nil {
					return err
				}
				if err := doJSON(req, &resp); err != nil {
					return err
				}
				files = resp.Files
			} else {
				cfg, logger, err := a.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				store, err := storage.NewFileStore(cfg.Storage.UploadDir, cfg.Indexing.AllowedExtensions)
				if err != nil {
					return err
				}
				if files, err = store.List(); err != nil {
					return err
				}
			}
			return cli.WriteFiles(cmd.OutOrStdout(), files, format)
		},
	}
}

// statusReport is the shape of GET /status.
type statusReport struct {
	Documents      int                    `json:"documents"`
	IndexEntries   int                    `json:"index_entries"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes"`
	UploadBytes    int64                  `json:"upload_bytes"`
	Config         map[string]interface{} `json:"config,omitempty"`
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show document, index and disk usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := a.format()
			if err != nil {
				return err
			}
			var st statusReport
			if a.serverURL != "" {
				req, err := http.NewRequest(http.MethodGet, a.serverURL+"/status", nil)
				if err != nil {
					return err
				}
				if err := doJSON(req, &st); err != nil {
					return err
				}
			} else {
				cfg, logger, err := a.setup()
				if err != nil {
					return err
				}
				defer logger.Sync()
				ctx := cmd.Context()
				components, err := initializeComponents(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer components.Close()
				files, err := components.Store.List()
				if err != nil {
					return err
				}
				if st.IndexEntries, err = components.Engine.Count(ctx); err != nil {
					return err
				}
				st.Documents = len(files)
				st.DiskUsageBytes, _ = storage.DiskUsageBytes(cfg.Storage.UploadDir, cfg.Storage.DataDir)
				st.UploadBytes, _ = components.Store.Usage()
				st.Config = map[string]interface{}{
					"embedding_provider": cfg.Embedding.Provider,
					"vector_type":        cfg.Vector.Type,
					"collection":         cfg.Vector.Collection,
					"llm_model":          cfg.LLM.Model,
				}
			}
			out := cmd.OutOrStdout()
			if format == cli.OutputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			fmt.Fprintf(out, "Documents:     %d\n", st.Documents)
			fmt.Fprintf(out, "Index entries: %d\n", st.IndexEntries)
			fmt.Fprintf(out, "Disk usage:    %s (uploads %s)\n", formatBytes(st.DiskUsageBytes), formatBytes(st.UploadBytes))
			keys := make([]string, 0, len(st.Config))
			for k := range st.Config {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "  %-20s %v\n", k+":", st.Config[k])
			}
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func postJSON(endpoint string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

func doJSON(req *http.Request, out interface{}) error {
	resp, err := newHTTPClient(0).Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
