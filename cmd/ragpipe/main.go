// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragpipe",
		Usage: "Index documents into a vector store and retrieve context for them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file; ignored when missing",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Vector store backend (pinecone, badger)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (badger store only)",
			},
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Namespace to read and write",
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts for failed operations",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: 1 * time.Second,
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ensure-index",
				Usage:  "Create the vector index if it does not exist",
				Action: ensureIndexCommand,
			},
			{
				Name:   "upload",
				Usage:  "Upload a file or a text as one document",
				Action: uploadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "File to upload"},
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Text to upload"},
					&cli.StringFlag{Name: "doc-id", Usage: "Document id (generated when omitted)"},
					&cli.StringSliceFlag{Name: "meta", Aliases: []string{"m"}, Usage: "Metadata as key=value, repeatable"},
					&cli.BoolFlag{Name: "replace", Usage: "Remove vectors left over from a previous upload of the document"},
				},
			},
			{
				Name:   "upload-dir",
				Usage:  "Upload every matching file under a directory",
				Action: uploadDirCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Usage: "Directory to walk", Required: true},
					&cli.StringSliceFlag{Name: "ext", Usage: "File extensions to include, repeatable (default .txt .md .py .js .ts .html .css .json)"},
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete every vector of a document",
				Action: deleteCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "doc-id", Usage: "Document id", Required: true},
				},
			},
			{
				Name:   "delete-all",
				Usage:  "Delete every vector in the namespace",
				Action: deleteAllCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm the deletion"},
				},
			},
			{
				Name:   "update-metadata",
				Usage:  "Merge metadata into every vector of a document",
				Action: updateMetadataCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "doc-id", Usage: "Document id", Required: true},
					&cli.StringSliceFlag{Name: "meta", Aliases: []string{"m"}, Usage: "Metadata as key=value, repeatable", Required: true},
				},
			},
			{
				Name:   "retrieve",
				Usage:  "Print the best matching chunks as JSON",
				Action: retrieveCommand,
				Flags:  queryFlags(),
			},
			{
				Name:   "search",
				Usage:  "Print a tool-shaped search response as JSON",
				Action: searchCommand,
				Flags:  queryFlags(),
			},
			{
				Name:   "context",
				Usage:  "Print prompt-ready context for a query",
				Action: contextCommand,
				Flags: append(queryFlags(),
					&cli.IntFlag{Name: "max-chars", Usage: "Maximum characters of context", Value: 2000},
				),
			},
			{
				Name:   "reembed",
				Usage:  "Re-embed stored chunks with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "batch-size", Usage: "Number of vectors to process in each batch", Value: 96},
					&cli.IntFlag{Name: "report-interval", Usage: "Report progress every N vectors", Value: 96},
					&cli.BoolFlag{Name: "force", Usage: "Also re-embed vectors already stamped with the current model"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Run the HTTP server",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address (default from config)"},
				},
			},
		},
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Query text", Required: true},
		&cli.IntFlag{Name: "top-k", Usage: "Candidates requested from the index (default from config)"},
		&cli.IntFlag{Name: "top-n", Usage: "Maximum results returned (default from config)"},
		&cli.Float64Flag{Name: "threshold", Usage: "Minimum rerank relevance (default from config)"},
		&cli.BoolFlag{Name: "no-rerank", Usage: "Skip reranking"},
		&cli.StringFlag{Name: "filter", Usage: "Metadata filter as JSON, e.g. '{\"source\":\"faq\"}'"},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
