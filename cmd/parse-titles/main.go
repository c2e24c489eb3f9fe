package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cardmarket-lab/internal/app"
	"cardmarket-lab/internal/config"
	"cardmarket-lab/internal/domain"
	"cardmarket-lab/internal/storage"
	"cardmarket-lab/internal/titleparse"
)

const usage = `Usage:
  parse-titles [flags] "raw title here"
  parse-titles [flags] -file titles.txt
  cat titles.txt | parse-titles [flags] -stdin

Flags:
`

// result is one output line. Misses carry only Error and Title.
type result struct {
	SetCode    string  `json:"setCode,omitempty"`
	Number     string  `json:"number,omitempty"`
	VariantKey string  `json:"variantKey,omitempty"`
	Language   string  `json:"language,omitempty"`
	Edition    string  `json:"edition,omitempty"`
	Foil       string  `json:"foil,omitempty"`
	Grade      string  `json:"grade,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Method     string  `json:"method,omitempty"`
	Fallback   bool    `json:"_fallback,omitempty"`
	Error      string  `json:"_error,omitempty"`
	Title      string  `json:"title"`
}

func main() {
	configPath := flag.String("config", "", "Optional TOML config file")
	file := flag.String("file", "", "Read titles from a file, one per line")
	stdin := flag.Bool("stdin", false, "Read titles from standard input, one per line")
	minConf := flag.Float64("min-conf", config.DefaultMinConfidence, "Minimum confidence to accept a model parse")
	fallback := flag.Bool("fallback", false, "Use the deterministic rules when the model parse is below -min-conf (adds _fallback)")
	pretty := flag.Bool("pretty", false, "Pretty-print a JSON array instead of NDJSON")
	postgresDSN := flag.String("postgres-dsn", "", "Read and write the title cache in PostgreSQL (default $DATABASE_URL; empty keeps it in memory)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := log.New(os.Stderr, "[parse-titles] ", log.LstdFlags)

	titles, err := inputTitles(*file, *stdin, flag.Args())
	if err != nil {
		logger.Fatalf("Input: %v", err)
	}
	if len(titles) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		logger.Fatalf("Config: %v", err)
	}
	set := config.Visited(flag.CommandLine)
	if set["postgres-dsn"] {
		cfg.Database.PostgresDSN = *postgresDSN
	}
	if set["min-conf"] {
		cfg.TitleCache.MinConfidence = *minConf
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := titleparse.Options{
		MinConfidence: cfg.TitleCache.MinConfidence,
		AllowFallback: *fallback,
		Mode:          titleparse.ModeBestEffort,
	}
	if err := run(ctx, logger, cfg, titles, opts, *pretty, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, logger *log.Logger, cfg *config.Config, titles []string, opts titleparse.Options, pretty bool, out io.Writer) error {
	var cache storage.TitleCacheStore
	if cfg.Database.PostgresDSN != "" {
		stores, cleanup, err := app.OpenStores(ctx, app.StoreOptions{PostgresDSN: cfg.Database.PostgresDSN, MaxConns: 2})
		if err != nil {
			return err
		}
		defer cleanup()
		cache = stores.TitleCache
	}

	parser, err := app.NewTitleParser(ctx, cfg, cache, nil, logger)
	if err != nil {
		return err
	}

	results := make([]result, 0, len(titles))
	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := toResult(title, parser.Parse(ctx, title, opts))
		if !pretty {
			if err := writeLine(out, r); err != nil {
				return err
			}
			continue
		}
		results = append(results, r)
	}
	if pretty {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

// toResult renders a parse. Low-confidence model parses are printed as is
// so the confidence can be inspected.
func toResult(title string, p *domain.ParsedTitle) result {
	if p == nil {
		return result{Error: "unparsed", Title: title}
	}
	return result{
		SetCode:    p.SetCode,
		Number:     p.Number,
		VariantKey: p.VariantKey,
		Language:   p.Language,
		Edition:    p.Edition,
		Foil:       p.Foil,
		Grade:      p.Grade,
		Confidence: p.Confidence,
		Method:     string(p.Method),
		Fallback:   p.Fallback,
		Title:      title,
	}
}

func writeLine(w io.Writer, r result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// inputTitles returns titles from -file, -stdin or the first argument.
func inputTitles(file string, stdin bool, args []string) ([]string, error) {
	switch {
	case file != "":
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readTitles(f)
	case stdin:
		return readTitles(os.Stdin)
	case len(args) > 0:
		if t := strings.TrimSpace(args[0]); t != "" {
			return []string{t}, nil
		}
	}
	return nil, nil
}

// readTitles returns the non-blank trimmed lines of r.
func readTitles(r io.Reader) ([]string, error) {
	var titles []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" {
			titles = append(titles, t)
		}
	}
	return titles, sc.Err()
}
