package history

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipwatch/internal/geo"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendFreshFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	w := &Writer{Now: fixedClock(time.Date(2024, 3, 15, 14, 30, 45, 123456000, time.UTC))}
	rec := geo.Normalize(geo.RawRecord{"ip": "1.2.3.4", "city": "X"})

	err := w.Append(path, []string{"ip", "version", "region"}, rec)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"timestamp", "ip", "version", "region"}, rows[0])
	assert.Equal(t, []string{"2024-03-15T14:30:45.123456Z", "1.2.3.4", "IPv4", ""}, rows[1])
}

func TestAppendSecondCallNoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	w := &Writer{Now: fixedClock(
		time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 14, 31, 0, 0, time.UTC),
	)}
	fields := []string{"ip", "city"}

	require.NoError(t, w.Append(path, fields, geo.Normalize(geo.RawRecord{"ip": "1.1.1.1", "city": "A"})))
	require.NoError(t, w.Append(path, fields, geo.Normalize(geo.RawRecord{"ip": "2.2.2.2", "city": "B"})))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "ip", "city"}, rows[0])
	assert.Equal(t, []string{"2024-03-15T14:30:00.000000Z", "1.1.1.1", "A"}, rows[1])
	assert.Equal(t, []string{"2024-03-15T14:31:00.000000Z", "2.2.2.2", "B"}, rows[2])
}

func TestAppendExistingFileKeepsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, os.WriteFile(path, []byte("timestamp,ip\n2020-01-01T00:00:00.000000Z,9.9.9.9\n"), 0644))

	err := Append(path, []string{"ip"}, geo.Normalize(geo.RawRecord{"ip": "8.8.8.8"}))
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "9.9.9.9", rows[1][1])
	assert.Equal(t, "8.8.8.8", rows[2][1])
	assert.True(t, strings.HasSuffix(rows[2][0], "Z"))
}

func TestAppendConvertsToUTC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")
	rome := time.FixedZone("CET", 3600)
	w := &Writer{Now: fixedClock(time.Date(2024, 1, 1, 1, 0, 0, 0, rome))}

	require.NoError(t, w.Append(path, []string{"ip"}, geo.Normalize(geo.RawRecord{})))

	rows := readCSV(t, path)
	assert.Equal(t, []string{"2024-01-01T00:00:00.000000Z", ""}, rows[1])
}

func TestAppendQuotesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")

	rec := geo.Normalize(geo.RawRecord{"org": "Example, Inc. \"Networks\""})
	require.NoError(t, Append(path, []string{"isp"}, rec))

	rows := readCSV(t, path)
	assert.Equal(t, "Example, Inc. \"Networks\"", rows[1][1])
}

func TestAppendUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.csv")

	require.NoError(t, Append(path, []string{"ip", "postal"}, geo.Normalize(geo.RawRecord{"ip": "1.2.3.4"})))

	rows := readCSV(t, path)
	assert.Equal(t, []string{"timestamp", "ip", "postal"}, rows[0])
	assert.Equal(t, "", rows[1][2])
}

func TestAppendCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "history.csv")

	require.NoError(t, Append(path, []string{"ip"}, geo.Normalize(geo.RawRecord{"ip": "1.2.3.4"})))

	rows := readCSV(t, path)
	assert.Len(t, rows, 2)
}

func TestAppendFailsOnDirectoryPath(t *testing.T) {
	dir := t.TempDir()

	err := Append(dir, []string{"ip"}, geo.Normalize(geo.RawRecord{}))
	assert.Error(t, err)
}

func TestWriteSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip_info.json")
	raw := geo.RawRecord{
		"ip":       "1.2.3.4",
		"latitude": json.Number("45.5"),
		"nested":   map[string]any{"a": "b"},
	}

	require.NoError(t, WriteSnapshot(path, raw))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n    \"ip\": \"1.2.3.4\"")

	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	var got geo.RawRecord
	require.NoError(t, dec.Decode(&got))
	assert.Equal(t, "1.2.3.4", got["ip"])
	assert.Equal(t, json.Number("45.5"), got["latitude"])
	assert.Equal(t, map[string]any{"a": "b"}, got["nested"])
}

func TestWriteSnapshotKeepsProviderText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip_info.json")
	raw := geo.RawRecord{
		"org":  "AT&T <Services>",
		"city": "Turin",
		"asn":  "AS7018",
	}

	require.NoError(t, WriteSnapshot(path, raw))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"org": "AT&T <Services>"`)

	// stable key order across runs
	asn := strings.Index(out, `"asn"`)
	city := strings.Index(out, `"city"`)
	org := strings.Index(out, `"org"`)
	assert.True(t, asn < city && city < org, "unexpected key order in %s", out)
	assert.True(t, strings.HasSuffix(out, "}\n"))
}

func TestWriteSnapshotOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")

	require.NoError(t, WriteSnapshot(path, geo.RawRecord{"ip": "1.1.1.1", "city": "Old"}))
	require.NoError(t, WriteSnapshot(path, geo.RawRecord{"ip": "2.2.2.2"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Old")
	assert.Contains(t, string(data), "2.2.2.2")
}
