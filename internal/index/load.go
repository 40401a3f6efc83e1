package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

// chunkRow is the tabular chunk layout. Numbers and timestamps are decoded
// by hand so blank cells do not fail the row.
type chunkRow struct {
	CompanyName     string `csv:"COMPANY_NAME"`
	Year            string `csv:"YEAR"`
	RelativePath    string `csv:"RELATIVE_PATH"`
	ChunkIndex      string `csv:"CHUNK_INDEX"`
	Chunk           string `csv:"CHUNK"`
	Language        string `csv:"LANGUAGE"`
	UploadTimestamp string `csv:"UPLOAD_TIMESTAMP"`
}

// ReadChunks decodes pre-extracted chunks from a .jsonl, .csv or .xlsx file.
func ReadChunks(path string) ([]model.DocumentChunk, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "index: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return DecodeJSONL(f)
	}

	r, closeFn, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeFn() //nolint:errcheck
	return DecodeRows(r)
}

// DecodeJSONL reads one DocumentChunk JSON object per line. Blank lines are
// skipped.
func DecodeJSONL(r io.Reader) ([]model.DocumentChunk, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var out []model.DocumentChunk
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var c model.DocumentChunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, eris.Wrapf(err, "index: decode jsonl line %d", line)
		}
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "index: jsonl line %d", line)
		}
		out = append(out, c)
	}
	return out, eris.Wrap(sc.Err(), "index: scan jsonl")
}

// DecodeRows reads chunks from a tabular reader whose header uses the
// COMPANY_NAME, YEAR, RELATIVE_PATH, CHUNK_INDEX, CHUNK, LANGUAGE and
// UPLOAD_TIMESTAMP columns. A missing CHUNK_INDEX counts rows per file.
func DecodeRows(r sheet.RowReader) ([]model.DocumentChunk, error) {
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "index: read header")
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(h))
	}

	dec, err := csvutil.NewDecoder(sheet.Pad(r, len(header)), header...)
	if err != nil {
		return nil, eris.Wrap(err, "index: create decoder")
	}

	perFile := make(map[string]int)
	var out []model.DocumentChunk
	line := 1
	for {
		var row chunkRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "index: decode line %d", line)
		}

		c, err := row.chunk(perFile)
		if err != nil {
			return nil, eris.Wrapf(err, "index: line %d", line)
		}
		out = append(out, c)
	}
	return out, nil
}

func (row chunkRow) chunk(perFile map[string]int) (model.DocumentChunk, error) {
	c := model.DocumentChunk{
		CompanyName:  strings.TrimSpace(row.CompanyName),
		RelativePath: strings.TrimSpace(row.RelativePath),
		ChunkText:    row.Chunk,
		Language:     strings.TrimSpace(row.Language),
	}

	if y := strings.TrimSpace(row.Year); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return c, eris.Errorf("invalid YEAR %q", y)
		}
		c.Year = year
	}

	if idx := strings.TrimSpace(row.ChunkIndex); idx != "" {
		n, err := strconv.Atoi(idx)
		if err != nil {
			return c, eris.Errorf("invalid CHUNK_INDEX %q", idx)
		}
		c.ChunkIndex = n
	} else {
		c.ChunkIndex = perFile[c.RelativePath]
	}
	perFile[c.RelativePath] = c.ChunkIndex + 1

	if ts := strings.TrimSpace(row.UploadTimestamp); ts != "" {
		parsed, err := parseTimestamp(ts)
		if err != nil {
			return c, err
		}
		c.UploadTimestamp = parsed
	}
	return c, c.Validate()
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("invalid UPLOAD_TIMESTAMP %q", s)
}

// LoadFiles reads every file and adds its chunks to idx, with up to
// concurrency files in flight. It returns the number of chunks written.
func LoadFiles(ctx context.Context, idx Index, paths []string, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	total := 0
	for _, path := range paths {
		g.Go(func() error {
			chunks, err := ReadChunks(path)
			if err != nil {
				return err
			}
			n, err := idx.AddChunks(gctx, chunks)
			if err != nil {
				return eris.Wrapf(err, "index: load %s", path)
			}
			zap.L().Info("index: loaded chunks", zap.String("file", path), zap.Int("chunks", n))

			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return total, err
}
