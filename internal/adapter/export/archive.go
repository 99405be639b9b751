package export

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/V4T54L/fieldlog/internal/domain"
)

// ItemSource yields items until io.EOF.
type ItemSource interface {
	ReadLogItem(ctx context.Context) (domain.Item, error)
}

// Archive drains src into w as zstd-compressed NDJSON. Items rejected by keep
// are skipped; a nil keep exports everything. It returns the number of items
// written.
func Archive(ctx context.Context, src ItemSource, w io.Writer, keep func(domain.Item) bool) (int, error) {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	n, err := Copy(ctx, src, NewJSONWriter(enc), keep)
	if cerr := enc.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to finish archive: %w", cerr)
	}
	return n, err
}

// Copy drains src into jw and flushes it.
func Copy(ctx context.Context, src ItemSource, jw *JSONWriter, keep func(domain.Item) bool) (int, error) {
	n := 0
	for {
		item, err := src.ReadLogItem(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = jw.Flush()
			return n, err
		}
		if keep != nil && !keep(item) {
			continue
		}
		if err := jw.Write(item); err != nil {
			return n, fmt.Errorf("failed to write item: %w", err)
		}
		n++
	}
	if err := jw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush output: %w", err)
	}
	return n, nil
}
