// Command promo-ingest bulk-loads single-use promotion codes, either read
// from gzip-compressed code lists or freshly generated, into the promotions
// table. Every code shares one promotion template given by flags.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/internal/storage/postgres"
)

const (
	minCodeLen    = 4
	maxCodeLen    = 32
	batchSize     = 1000
	progressEvery = 100_000
)

type options struct {
	databaseURL string
	files       []string
	generate    int
	prefix      string
	codeLen     int
	capacity    uint
	fpRate      float64
	template    promotion.Promotion
}

func main() {
	var (
		opts                        options
		files, products, categories string
		promoType, value, minOrder  string
		startsAt, endsAt            string
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&files, "files", "", "comma-separated gzip files with one code per line")
	flag.IntVar(&opts.generate, "generate", 0, "number of random codes to generate instead of reading files")
	flag.StringVar(&opts.prefix, "prefix", "", "prefix for generated codes")
	flag.IntVar(&opts.codeLen, "code-length", 8, "random part length of generated codes")
	flag.UintVar(&opts.capacity, "bloom-capacity", 10_000_000, "expected number of distinct codes")
	flag.Float64Var(&opts.fpRate, "bloom-fpr", 1e-6, "bloom filter false positive rate")

	flag.StringVar(&opts.template.Name, "name", "Bulk promotion", "promotion display name")
	flag.StringVar(&opts.template.Description, "description", "", "promotion description")
	flag.StringVar(&promoType, "type", string(promotion.TypePercent), "percent, fixed or free_shipping")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&minOrder, "min-order", "0", "minimum eligible subtotal")
	flag.StringVar(&products, "products", "", "comma-separated product IDs the promotion is limited to")
	flag.StringVar(&categories, "categories", "", "comma-separated categories the promotion is limited to")
	flag.StringVar(&startsAt, "starts-at", "", "RFC3339 start of the validity window")
	flag.StringVar(&endsAt, "ends-at", "", "RFC3339 end of the validity window")
	flag.IntVar(&opts.template.UsageLimit, "usage-limit", 1, "total redemptions per code (0 = unlimited)")
	flag.IntVar(&opts.template.MaxUsesPerUser, "max-uses-per-user", 1, "redemptions per user per code (0 = unlimited)")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	opts.files = splitList(files)
	if len(opts.files) == 0 && opts.generate <= 0 {
		lg.Fatal("Nothing to ingest: set --files or --generate")
	}

	if err := opts.buildTemplate(promoType, value, minOrder, products, categories, startsAt, endsAt); err != nil {
		lg.Fatal("Invalid promotion template", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Promotion ingest failed", zap.Error(err))
	}
	lg.Info("Promotion ingest completed")
}

func (o *options) buildTemplate(promoType, value, minOrder, products, categories, startsAt, endsAt string) error {
	t := &o.template
	t.Type = promotion.Type(promoType)
	t.Active = true
	t.CreatedBy = "promo-ingest"
	t.AppliesToProducts = splitList(products)
	t.AppliesToCategories = splitList(categories)

	var err error
	if t.Value, err = decimal.NewFromString(value); err != nil {
		return errors.Wrap(err, "value")
	}
	if t.MinOrderValue, err = decimal.NewFromString(minOrder); err != nil {
		return errors.Wrap(err, "min-order")
	}
	if t.StartsAt, err = parseTime(startsAt); err != nil {
		return errors.Wrap(err, "starts-at")
	}
	if t.EndsAt, err = parseTime(endsAt); err != nil {
		return errors.Wrap(err, "ends-at")
	}

	// Validate needs a code; every ingested code is checked separately.
	probe := *t
	probe.Code = "PROBE"
	return probe.Validate()
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	seen := bloom.NewWithEstimates(opts.capacity, opts.fpRate)
	if err := loadExisting(ctx, pool, seen); err != nil {
		return errors.Wrap(err, "load existing codes")
	}

	raw := make(chan string, batchSize)
	unique := make(chan string, batchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(raw)
		if opts.generate > 0 {
			return generateCodes(ctx, opts.prefix, opts.codeLen, opts.generate, seen, raw)
		}
		return readFiles(ctx, lg, opts.files, raw)
	})
	g.Go(func() error {
		defer close(unique)
		return dedupe(ctx, lg, seen, raw, unique, opts.generate > 0)
	})
	g.Go(func() error {
		return writeCodes(ctx, lg, pool, opts.template, unique)
	})
	return g.Wait()
}

// loadExisting seeds the filter with codes already stored so re-runs skip
// them before reaching the database.
func loadExisting(ctx context.Context, pool *pgxpool.Pool, seen *bloom.BloomFilter) error {
	rows, err := pool.Query(ctx, `SELECT code FROM promotions`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var code string
	_, err = pgx.ForEachRow(rows, []any{&code}, func() error {
		seen.AddString(normalizeCode(code))
		return nil
	})
	return err
}

// readFiles streams every file sequentially into out.
func readFiles(ctx context.Context, lg *zap.Logger, files []string, out chan<- string) error {
	for i, path := range files {
		var count uint64
		if err := streamGzFile(ctx, path, func(code string) error {
			count++
			if count%progressEvery == 0 {
				lg.Info("Read progress", zap.Int("file", i+1), zap.Uint64("lines", count))
			}
			select {
			case out <- code:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}); err != nil {
			return errors.Wrapf(err, "read file %d", i+1)
		}
		lg.Info("File complete", zap.String("path", path), zap.Uint64("lines", count))
	}
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	return scanLines(ctx, gz, fn)
}

func scanLines(ctx context.Context, r io.Reader, fn func(string) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "scan")
}

// generateCodes emits n codes absent from seen. A false positive only costs
// a retry.
func generateCodes(ctx context.Context, prefix string, length, n int, seen *bloom.BloomFilter, out chan<- string) error {
	for emitted := 0; emitted < n; {
		code := normalizeCode(prefix + randomCode(length))
		if seen.TestAndAddString(code) {
			continue
		}
		select {
		case out <- code:
			emitted++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func randomCode(length int) string {
	return rand.Text()[:min(length, 26)]
}

// dedupe normalizes codes, drops malformed ones and skips codes the filter
// has already seen. Generated codes were registered in the filter upstream.
func dedupe(ctx context.Context, lg *zap.Logger, seen *bloom.BloomFilter, in <-chan string, out chan<- string, generated bool) error {
	var invalid, duplicates uint64
	for raw := range in {
		code := normalizeCode(raw)
		if !validCode(code) {
			invalid++
			continue
		}
		if !generated && seen.TestAndAddString(code) {
			duplicates++
			continue
		}
		select {
		case out <- code:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	lg.Info("Dedupe complete", zap.Uint64("invalid", invalid), zap.Uint64("duplicates", duplicates))
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string) bool {
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return false
	}
	for _, r := range code {
		if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// writeCodes inserts one promotion per code in batches. Codes that already
// exist are left untouched.
func writeCodes(ctx context.Context, lg *zap.Logger, pool *pgxpool.Pool, tmpl promotion.Promotion, in <-chan string) error {
	var inserted, skipped int64
	pending := make([]string, 0, batchSize)

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		n, err := insertBatch(ctx, pool, tmpl, pending)
		if err != nil {
			return err
		}
		inserted += n
		skipped += int64(len(pending)) - n
		pending = pending[:0]
		lg.Info("Write progress", zap.Int64("inserted", inserted), zap.Int64("skipped", skipped))
		return nil
	}

	for code := range in {
		pending = append(pending, code)
		if len(pending) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	lg.Info("Codes written", zap.Int64("inserted", inserted), zap.Int64("skipped", skipped))
	return nil
}

const insertPromotion = `INSERT INTO promotions (
	id, name, code, description, type, value, applies_to_products, applies_to_categories,
	min_order_value, starts_at, ends_at, usage_limit, max_uses_per_user, active, created_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT DO NOTHING`

func insertBatch(ctx context.Context, pool *pgxpool.Pool, tmpl promotion.Promotion, codes []string) (int64, error) {
	products := nonNil(tmpl.AppliesToProducts)
	categories := nonNil(tmpl.AppliesToCategories)

	batch := &pgx.Batch{}
	for _, code := range codes {
		batch.Queue(insertPromotion,
			uuid.NewString(), tmpl.Name, code, tmpl.Description, string(tmpl.Type), tmpl.Value,
			products, categories, tmpl.MinOrderValue, tmpl.StartsAt, tmpl.EndsAt,
			tmpl.UsageLimit, tmpl.MaxUsesPerUser, tmpl.Active, tmpl.CreatedBy,
		)
	}

	br := pool.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, code := range codes {
		tag, err := br.Exec()
		if err != nil {
			return inserted, errors.Wrapf(err, "insert %s", code)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func splitList(s string) []string {
	var out []string
	for v := range strings.SplitSeq(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
