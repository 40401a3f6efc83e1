package criteria

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

// row is the bulk import/export layout of a criterion.
type row struct {
	ID           string `csv:"ID"`
	Question     string `csv:"QUESTION"`
	Cluster      string `csv:"CLUSTER"`
	Role         string `csv:"ROLE"`
	Instructions string `csv:"INSTRUCTIONS"`
	Output       string `csv:"OUTPUT"`
	Prompt       string `csv:"CRITERIA_PROMPT"`
	Weight       string `csv:"WEIGHT"`
	Version      string `csv:"VERSION"`
	Active       string `csv:"ACTIVE"`
}

// RowError describes one rejected import row. Line counts the header as 1.
type RowError struct {
	Line int    `json:"line"`
	ID   string `json:"id,omitempty"`
	Err  error  `json:"-"`
}

func (e RowError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("line %d (%s): %v", e.Line, e.ID, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// ImportResult holds the accepted criteria and the rejected rows.
type ImportResult struct {
	Criteria []model.Criterion
	Errors   []RowError
}

// ImportFile decodes criteria from a CSV or XLSX file.
func ImportFile(path string) (*ImportResult, error) {
	r, closeFn, err := sheet.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeFn() //nolint:errcheck
	return Decode(r)
}

// Decode reads criteria rows from r. Header names are matched
// case-insensitively. Rows repeating an (id, version) pair replace the
// earlier row, and criteria without a prompt get a derived one.
func Decode(r sheet.RowReader) (*ImportResult, error) {
	header, err := r.Read()
	if err == io.EOF {
		return nil, eris.New("criteria: empty file")
	}
	if err != nil {
		return nil, eris.Wrap(err, "criteria: read header")
	}
	for i, h := range header {
		header[i] = strings.ToUpper(strings.TrimSpace(h))
	}
	if !contains(header, "ID") {
		return nil, eris.New("criteria: missing required column ID")
	}

	dec, err := csvutil.NewDecoder(sheet.Pad(r, len(header)), header...)
	if err != nil {
		return nil, eris.Wrap(err, "criteria: create decoder")
	}

	res := &ImportResult{}
	index := make(map[model.CriterionKey]int)
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
				res.Errors = append(res.Errors, RowError{Line: line, Err: err})
				continue
			}
			return nil, eris.Wrapf(err, "criteria: decode line %d", line)
		}

		c, err := rw.criterion()
		if err != nil {
			res.Errors = append(res.Errors, RowError{Line: line, ID: rw.ID, Err: err})
			continue
		}

		if i, ok := index[c.Key()]; ok {
			zap.L().Debug("criteria: duplicate row replaces earlier one",
				zap.String("criteria_id", c.ID), zap.Int("line", line))
			res.Criteria[i] = c
			continue
		}
		index[c.Key()] = len(res.Criteria)
		res.Criteria = append(res.Criteria, c)
	}

	FillPrompts(res.Criteria)
	return res, nil
}

func (rw row) criterion() (model.Criterion, error) {
	c := model.Criterion{
		ID:           strings.TrimSpace(rw.ID),
		Question:     strings.TrimSpace(rw.Question),
		Cluster:      ParseCluster(rw.Cluster),
		Role:         strings.TrimSpace(rw.Role),
		Instructions: strings.TrimSpace(rw.Instructions),
		OutputSpec:   strings.TrimSpace(rw.Output),
		Prompt:       strings.TrimSpace(rw.Prompt),
		Version:      strings.TrimSpace(rw.Version),
		Weight:       model.DefaultCriterionWeight,
		Active:       true,
	}
	if c.ID == "" {
		return c, eris.New("missing ID")
	}
	if c.Version == "" {
		c.Version = model.DefaultCriterionVersion
	}

	if w := strings.TrimSpace(rw.Weight); w != "" {
		f, err := strconv.ParseFloat(w, 64)
		if err != nil {
			return c, eris.Errorf("invalid WEIGHT %q", w)
		}
		c.Weight = f
	}

	if a := strings.TrimSpace(rw.Active); a != "" {
		active, err := parseBool(a)
		if err != nil {
			return c, err
		}
		c.Active = active
	}

	return c, Validate(c)
}

// ParseCluster accepts a JSON array or a comma-separated list.
func ParseCluster(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err == nil {
			return cleanList(tags)
		}
		raw = strings.Trim(raw, "[]")
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"'`)
	}
	return cleanList(parts)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "active":
		return true, nil
	case "false", "f", "no", "n", "0", "inactive":
		return false, nil
	default:
		return false, eris.Errorf("invalid ACTIVE %q", s)
	}
}

// Encode writes criteria in the import layout, so an export can be edited
// and imported again.
func Encode(w io.Writer, criteria []model.Criterion) error {
	rows := make([]row, 0, len(criteria))
	for _, c := range criteria {
		cluster := "[]"
		if len(c.Cluster) > 0 {
			b, err := json.Marshal(c.Cluster)
			if err != nil {
				return eris.Wrap(err, "criteria: marshal cluster")
			}
			cluster = string(b)
		}
		rows = append(rows, row{
			ID:           c.ID,
			Question:     c.Question,
			Cluster:      cluster,
			Role:         c.Role,
			Instructions: c.Instructions,
			Output:       c.OutputSpec,
			Prompt:       c.Prompt,
			Weight:       strconv.FormatFloat(c.Weight, 'f', -1, 64),
			Version:      c.Version,
			Active:       strconv.FormatBool(c.Active),
		})
	}

	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if len(rows) == 0 {
		if err := enc.EncodeHeader(row{}); err != nil {
			return eris.Wrap(err, "criteria: encode header")
		}
	} else if err := enc.Encode(rows); err != nil {
		return eris.Wrap(err, "criteria: encode rows")
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "criteria: flush csv")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
