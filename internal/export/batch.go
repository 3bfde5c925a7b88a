// Package export runs utterances through a form in bulk and writes the
// results as an XLSX workbook.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/formflow/internal/domain"
)

// Extractor runs one extraction.
type Extractor interface {
	Execute(ctx context.Context, utterance, formID string) domain.Result
}

// Row is one utterance and its outcome.
type Row struct {
	Line      int
	Utterance string
	Result    domain.Result
}

// ReadLines returns the non-blank lines of r with their 1-based line numbers.
func ReadLines(r io.Reader) ([]Row, error) {
	var rows []Row
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		rows = append(rows, Row{Line: n, Utterance: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return rows, nil
}

// Run extracts every row with at most concurrency runs in flight. Results
// are stored in place, so output order matches input order.
func Run(ctx context.Context, ex Extractor, formID string, rows []Row, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := range rows {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			rows[i].Result = ex.Execute(gctx, rows[i].Utterance, formID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Summary counts outcomes.
func Summary(rows []Row) (succeeded, failed int) {
	for _, r := range rows {
		if r.Result.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
