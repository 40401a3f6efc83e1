// Package mediascan imports media-scan disqualification notes and finds the
// notes that apply to a company.
package mediascan

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/resolve"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

type row struct {
	CompanyName string `csv:"COMPANY_NAME"`
	Topic       string `csv:"TOPIC_OF_DISQUALIFICATION"`
}

var requiredColumns = []string{"COMPANY_NAME", "TOPIC_OF_DISQUALIFICATION"}

// ImportResult holds the accepted records and the lines that were skipped.
type ImportResult struct {
	Records []model.DisqualificationRecord
	Skipped []int
}

// ImportFile decodes media-scan records from a CSV or XLSX file.
func ImportFile(path string) (*ImportResult, error) {
	r, closeFn, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeFn() //nolint:errcheck
	return Decode(r)
}

// Decode reads media-scan rows. Rows missing either field are skipped and
// their line numbers reported. A company repeated in the file keeps its last
// topic.
func Decode(r sheet.RowReader) (*ImportResult, error) {
	header, err := r.Read()
	if err == io.EOF {
		return nil, eris.New("mediascan: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "mediascan: read header")
	}
	present := make(map[string]bool, len(header))
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(h))
		present[header[i]] = true
	}
	for _, col := range requiredColumns {
		if !present[col] {
			return nil, eris.Errorf("mediascan: missing required column %s", col)
		}
	}

	dec, err := csvutil.NewDecoder(sheet.Pad(r, len(header)), header...)
	if err != nil {
		return nil, eris.Wrap(err, "mediascan: create decoder")
	}

	res := &ImportResult{}
	index := make(map[string]int)
	line := 1
	for {
		var rw row
		err := dec.Decode(&rw)
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if errors.Is(err, csvutil.ErrFieldCount) {
				res.Skipped = append(res.Skipped, line)
				continue
			}
			return nil, eris.Wrapf(err, "mediascan: decode line %d", line)
		}

		name := strings.TrimSpace(rw.CompanyName)
		topic := strings.TrimSpace(rw.Topic)
		if name == "" || topic == "" {
			res.Skipped = append(res.Skipped, line)
			continue
		}

		rec := model.DisqualificationRecord{CompanyName: name, Topic: topic}
		if i, ok := index[name]; ok {
			res.Records[i] = rec
			continue
		}
		index[name] = len(res.Records)
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// Lister returns every stored media-scan record.
type Lister interface {
	ListDisqualifications(ctx context.Context) ([]model.DisqualificationRecord, error)
}

// Finder looks up the records whose company name matches a target company.
type Finder struct {
	src     Lister
	matcher resolve.NameMatcher
}

// NewFinder creates a Finder. A nil matcher falls back to normalized
// name equality.
func NewFinder(src Lister, matcher resolve.NameMatcher) *Finder {
	if matcher == nil {
		matcher = resolve.NormalizedMatcher{}
	}
	return &Finder{src: src, matcher: matcher}
}

// Find returns all records matching company, in store order.
func (f *Finder) Find(ctx context.Context, company string) ([]model.DisqualificationRecord, error) {
	all, err := f.src.ListDisqualifications(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "mediascan: list records")
	}

	var out []model.DisqualificationRecord
	for _, rec := range all {
		ok, err := f.matcher.Matches(ctx, rec.CompanyName, company)
		if err != nil {
			return nil, eris.Wrapf(err, "mediascan: match %q", rec.CompanyName)
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
