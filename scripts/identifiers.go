// Command identifiers is the operator tool for the identifier ledger.
//
//	go run ./scripts/identifiers.go import -file legacy.txt
//	go run ./scripts/identifiers.go cursors -format json
//	go run ./scripts/identifiers.go mint -year 26
//	go run ./scripts/identifiers.go hash-token
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prolearn/prolearn/internal/auth"
	"github.com/prolearn/prolearn/internal/idalloc"
	"github.com/prolearn/prolearn/internal/repository"
	"github.com/prolearn/prolearn/internal/service"
)

const usage = `usage: identifiers <command> [flags]

commands:
  import      record legacy identifiers in the issued ledger
  cursors     show the letter-pair floor of every year
  mint        allocate one identifier
  hash-token  print the ADMIN_TOKEN_HASH for a token read from stdin`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "import":
		err = runImport(args, logger)
	case "cursors":
		err = runCursors(args)
	case "mint":
		err = runMint(args, logger)
	case "hash-token":
		err = runHashToken(os.Stdin)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func databaseFlag(fs *flag.FlagSet) *string {
	return fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
}

func connect(ctx context.Context, databaseURL string) (*repository.Repository, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	repo, err := repository.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return repo, nil
}

func runImport(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	databaseURL := databaseFlag(fs)
	file := fs.String("file", "-", "file with one identifier per line, - for stdin")
	batch := fs.Int("batch", 1000, "identifiers per insert")
	workers := fs.Int("workers", 4, "concurrent inserts")
	_ = fs.Parse(args)

	if *batch < 1 || *batch > service.MaxImportBatch {
		return fmt.Errorf("batch must be between 1 and %d", service.MaxImportBatch)
	}

	in := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			return fmt.Errorf("open %s: %w", *file, err)
		}
		defer f.Close()
		in = f
	}
	codes, err := readCodes(in)
	if err != nil {
		return err
	}
	if len(codes) == 0 {
		return fmt.Errorf("no identifiers in input")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	repo, err := connect(ctx, *databaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := service.NewIdentifierService(repo, idalloc.New(repo, idalloc.WithLogger(logger)), logger)

	var imported atomic.Int64
	var existing atomic.Int64
	var invalid atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for _, chunk := range chunks(codes, *batch) {
		g.Go(func() error {
			res, err := svc.Import(gctx, chunk)
			if err != nil {
				return err
			}
			imported.Add(res.Imported)
			existing.Add(int64(res.AlreadyIssued))
			invalid.Add(int64(len(res.Invalid)))
			for _, code := range res.Invalid {
				fmt.Fprintln(os.Stderr, "invalid identifier:", code)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	fmt.Printf("read %d, imported %d, already issued %d, invalid %d\n",
		len(codes), imported.Load(), existing.Load(), invalid.Load())
	return nil
}

// readCodes returns the trimmed non-empty lines of r. Lines starting with
// # are skipped.
func readCodes(r io.Reader) ([]string, error) {
	var codes []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		codes = append(codes, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers: %w", err)
	}
	return codes, nil
}

func chunks(codes []string, size int) [][]string {
	out := make([][]string, 0, (len(codes)+size-1)/size)
	for len(codes) > size {
		out = append(out, codes[:size])
		codes = codes[size:]
	}
	if len(codes) > 0 {
		out = append(out, codes)
	}
	return out
}

func runCursors(args []string) error {
	fs := flag.NewFlagSet("cursors", flag.ExitOnError)
	databaseURL := databaseFlag(fs)
	format := fs.String("format", "plain", "output format: plain or json")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := connect(ctx, *databaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	cursors, err := repo.ListCursors(ctx)
	if err != nil {
		return err
	}

	switch strings.ToLower(*format) {
	case "plain":
		for _, c := range cursors {
			issued, err := repo.CountIssued(ctx, c.Year)
			if err != nil {
				return err
			}
			fmt.Printf("%02d  %s  issued=%d  updated=%s\n", c.Year, c.LetterSequence, issued, c.UpdatedAt.Format(time.RFC3339))
		}
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cursors)
	default:
		return fmt.Errorf("invalid format; use plain or json")
	}
	return nil
}

func runMint(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("mint", flag.ExitOnError)
	databaseURL := databaseFlag(fs)
	year := fs.Int("year", -1, "two-digit year, default current year")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := connect(ctx, *databaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()

	svc := service.NewIdentifierService(repo, idalloc.New(repo, idalloc.WithLogger(logger)), logger)

	var y *int
	if *year >= 0 {
		y = year
	}
	code, err := svc.Mint(ctx, y)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	fmt.Println(code)
	return nil
}

func runHashToken(in io.Reader) error {
	token, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read token: %w", err)
	}
	token = strings.TrimSpace(token)
	if len(token) < 16 {
		return fmt.Errorf("token must be at least 16 characters")
	}
	hash, err := auth.HashPassword(token)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
