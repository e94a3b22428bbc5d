package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRecords_RowsInFileOrderWithHeaderKeys(t *testing.T) {
	path := writeCSV(t, "sku,name,stock\nA-1,Milk,4\nB-2,Coffee Beans,45\nC-3,\"Cups, large\",80\n")

	snap, err := ReadRecords(path)
	require.NoError(t, err)

	assert.Equal(t, path, snap.Path)
	assert.Equal(t, 0, snap.Skipped)
	require.Len(t, snap.Records, 3)

	wantNames := []string{"Milk", "Coffee Beans", "Cups, large"}
	for i, rec := range snap.Records {
		assert.Equal(t, []string{"sku", "name", "stock"}, rec.Keys())
		name, ok := rec.Get("name")
		assert.True(t, ok)
		assert.Equal(t, wantNames[i], name)
	}
}

func TestReadRecords_NotFound(t *testing.T) {
	snap, err := ReadRecords(filepath.Join(t.TempDir(), "missing.csv"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound), "error = %v, want ErrNotFound", err)
	assert.Empty(t, snap.Records)
}

func TestReadRecords_Directory(t *testing.T) {
	_, err := ReadRecords(t.TempDir())

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound), "a directory is not a missing file")
}

func TestReadRecords_EmptyFile(t *testing.T) {
	snap, err := ReadRecords(writeCSV(t, ""))

	require.NoError(t, err)
	assert.NotNil(t, snap.Records)
	assert.Empty(t, snap.Records)
}

func TestReadRecords_HeaderOnly(t *testing.T) {
	snap, err := ReadRecords(writeCSV(t, "driver,score\n"))

	require.NoError(t, err)
	assert.Empty(t, snap.Records)
}

func TestReadRecords_StripsBOM(t *testing.T) {
	snap, err := ReadRecords(writeCSV(t, "\ufeffdriver,score\nTom,72\n"))

	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, []string{"driver", "score"}, snap.Records[0].Keys())
}

func TestDecode_SkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"name,stock",
		"a,1",
		"b",         // too few fields
		"c,3,extra", // too many fields
		"d,x\"y",    // bare quote
		"e,\xff",    // invalid UTF-8
		"f,6",
	}, "\n") + "\n"

	snap, err := Decode(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Skipped)
	require.Len(t, snap.Records, 2)
	first, _ := snap.Records[0].Get("name")
	last, _ := snap.Records[1].Get("name")
	assert.Equal(t, "a", first)
	assert.Equal(t, "f", last)
}

func TestDecode_ReaderErrorFailsRead(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := Decode(iotest.ErrReader(boom))

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
}
