package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"go-reconcile-pipeline/internal/model"
	"io"
	"iter"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReadOptions tunes how extracts are parsed
type ReadOptions struct {
	Comma      rune // field delimiter, ',' when zero
	TrimValues bool // trim whitespace around every value
}

// Extracts is the materialized batch of one run
type Extracts struct {
	Customers []model.Record
	Orders    []model.Record
	Items     []model.Record
}

// ------------------- Reading -------------------

// Records lazily parses a delimited extract. The sequence is finite,
// follows source row order and can only be ranged over once. An input
// without a header row yields nothing. Iteration stops at the first error.
func Records(r io.Reader, source string, rules *model.ValidationRules, opts ReadOptions) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		csvReader := csv.NewReader(skipBOM(r))
		if opts.Comma != 0 {
			csvReader.Comma = opts.Comma
		}

		header, err := csvReader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, readError(source, err))
			return
		}
		header = normalizeHeader(header)
		if err := validateHeader(header, rules); err != nil {
			yield(nil, &ExtractError{Path: source, Line: 1, Kind: ErrFormat, Err: err})
			return
		}

		for {
			row, err := csvReader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, readError(source, err))
				return
			}

			rec := make(model.Record, len(header))
			for i, h := range header {
				rec[h] = row[i]
			}
			if !yield(applyTransformations(rec, opts), nil) {
				return
			}
		}
	}
}

// skipBOM drops a leading UTF-8 byte order mark so a quoted first
// header cell still parses.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// readError classifies a csv failure: parse errors are format errors,
// anything else came from the underlying reader.
func readError(source string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &ExtractError{Path: source, Line: parseErr.Line, Kind: ErrFormat, Err: parseErr.Err}
	}
	return &ExtractError{Path: source, Kind: ErrIO, Err: err}
}

// ReadExtract opens one extract and materializes it in source order.
func ReadExtract(ctx context.Context, src model.Source, opts ReadOptions) ([]model.Record, error) {
	file, err := os.Open(src.Path)
	if err != nil {
		return nil, &ExtractError{Extract: src.Extract, Path: src.Path, Kind: ErrIO, Err: err}
	}
	defer file.Close()

	var records []model.Record
	for rec, err := range Records(file, src.Path, src.Validation, opts) {
		if err != nil {
			var extractErr *ExtractError
			if errors.As(err, &extractErr) {
				extractErr.Extract = src.Extract
			}
			return nil, err
		}
		records = append(records, rec)
		if len(records)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

// LoadExtracts reads every source concurrently and waits for all of
// them. The first failure wins; the other reads see a cancelled context
// and their results are discarded.
func LoadExtracts(ctx context.Context, sources []model.Source, opts ReadOptions, logger *zap.Logger) (Extracts, error) {
	results := make([][]model.Record, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			start := time.Now()
			logger.Info("reading extract", zap.String("extract", string(src.Extract)), zap.String("path", src.Path))

			records, err := ReadExtract(gctx, src, opts)
			if err != nil {
				logger.Error("extract read failed", zap.String("extract", string(src.Extract)), zap.Error(err))
				return err
			}

			// each goroutine owns its slot exclusively
			results[i] = records
			logger.Info("extract loaded",
				zap.String("extract", string(src.Extract)),
				zap.Int("records", len(records)),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Extracts{}, err
	}

	var out Extracts
	for i, src := range sources {
		switch src.Extract {
		case model.ExtractCustomers:
			out.Customers = results[i]
		case model.ExtractOrders:
			out.Orders = results[i]
		case model.ExtractItems:
			out.Items = results[i]
		}
	}
	return out, nil
}
