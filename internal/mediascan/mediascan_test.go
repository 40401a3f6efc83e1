package mediascan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/annual-report-eval/internal/model"
	"github.com/sells-group/annual-report-eval/internal/sheet"
)

type staticLister struct {
	records []model.DisqualificationRecord
	err     error
}

func (s staticLister) ListDisqualifications(context.Context) ([]model.DisqualificationRecord, error) {
	return s.records, s.err
}

type failingMatcher struct{}

func (failingMatcher) Matches(context.Context, string, string) (bool, error) {
	return false, errors.New("model unavailable")
}

func TestDecode(t *testing.T) {
	input := "company_name,topic_of_disqualification\n" +
		"Acme Corp,Fined for spills\n" +
		",Orphan topic\n" +
		"Beta Ltd,\n" +
		"Acme Corp,Nothing negative\n"
	res, err := Decode(sheet.NewCSVReader(strings.NewReader(input), sheet.CSVOptions{}))
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	assert.Equal(t, "Acme Corp", res.Records[0].CompanyName)
	assert.Equal(t, "Nothing negative", res.Records[0].Topic)
	assert.Equal(t, []int{3, 4}, res.Skipped)
}

func TestDecode_MissingColumn(t *testing.T) {
	_, err := Decode(sheet.NewCSVReader(strings.NewReader("COMPANY_NAME\nAcme\n"), sheet.CSVOptions{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TOPIC_OF_DISQUALIFICATION")
}

func TestFinder_Find(t *testing.T) {
	src := staticLister{records: []model.DisqualificationRecord{
		{CompanyName: "Acme Corp (NZX:ACM)", Topic: "Fined"},
		{CompanyName: "Acme Capital Corp", Topic: "Lawsuit"},
		{CompanyName: "ACME CORPORATION", Topic: "Nothing negative"},
	}}

	got, err := NewFinder(src, nil).Find(context.Background(), "Acme Corp")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Fined", got[0].Topic)
	assert.Equal(t, "Nothing negative", got[1].Topic)
}

func TestFinder_Errors(t *testing.T) {
	_, err := NewFinder(staticLister{err: errors.New("db down")}, nil).Find(context.Background(), "Acme")
	assert.Error(t, err)

	src := staticLister{records: []model.DisqualificationRecord{{CompanyName: "Acme", Topic: "x"}}}
	_, err = NewFinder(src, failingMatcher{}).Find(context.Background(), "Acme")
	assert.Error(t, err)
}
