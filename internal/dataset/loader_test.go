package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cbsent/internal/config"
	"cbsent/internal/dataset"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_JSONL(t *testing.T) {
	path := writeFile(t, "speeches.jsonl",
		`{"speech_id":"fed-1","text":"Inflation is high.","speaker":"Powell","institution":"Federal Reserve","date":"2023-01-15"}`+"\n"+
			"\n"+
			`{"speech_id":7,"text":"Growth is slowing.","institution":"ECB","date":"2023-02-01 10:00:00"}`+"\n"+
			`{"speech_id":"empty","text":"  ","date":"2023-03-01"}`+"\n")

	docs, err := dataset.NewLoader(dataset.Filter{}, zap.NewNop()).Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "fed-1", docs[0].ID)
	assert.Equal(t, "Powell", docs[0].Author)
	assert.Equal(t, "Federal Reserve", docs[0].Institution)

	assert.Equal(t, "7", docs[1].ID)
	assert.Equal(t, dataset.Unknown, docs[1].Author)
	assert.Equal(t, "2023-02-01 10:00:00", docs[1].Date)
}

func TestLoader_CSV(t *testing.T) {
	path := writeFile(t, "speeches.csv",
		"content,country,date\n"+
			"\"Rates, for now, stay put.\",Japan,2022-06-01\n"+
			"Second speech,Canada,2022-07-01\n")

	docs, err := dataset.NewLoader(dataset.Filter{}, zap.NewNop()).Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "speech_0", docs[0].ID)
	assert.Equal(t, "speech_1", docs[1].ID)
	assert.Equal(t, "Rates, for now, stay put.", docs[0].Text)
	assert.Equal(t, "Japan", docs[0].Institution)
}

func TestLoader_DateFilter(t *testing.T) {
	path := writeFile(t, "speeches.jsonl",
		`{"id":"a","text":"x","date":"2019-12-31"}`+"\n"+
			`{"id":"b","text":"x","date":"2020-01-01"}`+"\n"+
			`{"id":"c","text":"x","date":"2020-12-31T09:00:00Z"}`+"\n"+
			`{"id":"d","text":"x","date":"2021-01-01"}`+"\n"+
			`{"id":"e","text":"x","date":"unknown"}`+"\n")

	filter, err := dataset.NewFilter(config.DatasetConfig{StartDate: "2020-01-01", EndDate: "2020-12-31"})
	require.NoError(t, err)

	docs, err := dataset.NewLoader(filter, zap.NewNop()).Load(path)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
}

func TestLoader_Errors(t *testing.T) {
	loader := dataset.NewLoader(dataset.Filter{}, zap.NewNop())

	_, err := loader.Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)

	_, err = loader.Load(writeFile(t, "bad.jsonl", "{not json}\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = loader.Load(writeFile(t, "notext.jsonl", `{"id":"a","title":"x"}`+"\n"))
	assert.ErrorIs(t, err, dataset.ErrNoTextColumn)

	docs, err := loader.Load(writeFile(t, "empty.csv", ""))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNewFilter_Invalid(t *testing.T) {
	_, err := dataset.NewFilter(config.DatasetConfig{StartDate: "01/02/2020"})
	assert.ErrorContains(t, err, "dataset.start_date")
}
