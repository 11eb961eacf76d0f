package results

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	trimmed := strings.TrimSuffix(string(data), "\n")
	if trimmed == "" {
		return nil
	}

	return strings.Split(trimmed, "\n")
}

func TestWriteConstantFile(t *testing.T) {
	dir := t.TempDir()

	deltas := []uint64{120, 95, 300, 110}
	require.NoError(t, WriteConstantFile(dir, 3, deltas))

	lines := readLines(t, filepath.Join(dir, ConstantFileName(3)))

	require.Len(t, lines, 5)
	assert.Equal(t, "4", lines[0])
	assert.Equal(t, []string{"120", "95", "300", "110"}, lines[1:])
}

func TestPerBankMatchesConstantWithoutVictims(t *testing.T) {
	dir := t.TempDir()

	deltas := []uint64{42, 43, 44}
	require.NoError(t, WriteConstantFile(dir, 0, deltas))
	require.NoError(t, WritePerBankFlat(dir, 0, deltas))

	constant, err := os.ReadFile(filepath.Join(dir, ConstantFileName(0)))
	require.NoError(t, err)

	perBank, err := os.ReadFile(filepath.Join(dir, PerBankFileName(0)))
	require.NoError(t, err)

	assert.Equal(t, constant, perBank)
}

func TestWritePerBankBuckets(t *testing.T) {
	dir := t.TempDir()

	perBank := [][]uint64{
		{10, 11},
		nil,
		{20, 21, 22},
	}

	require.NoError(t, WritePerBankBuckets(dir, 2, perBank))

	lines := readLines(t, filepath.Join(dir, PerBankFileName(2)))

	require.Len(t, lines, 8)
	assert.Equal(t, "2", lines[0])
	assert.Equal(t, []string{"10", "11"}, lines[1:3])
	assert.Equal(t, "0", lines[3])
	assert.Equal(t, "3", lines[4])
	assert.Equal(t, []string{"20", "21", "22"}, lines[5:8])
}

func TestBucketCountsMatchHeaders(t *testing.T) {
	dir := t.TempDir()

	perBank := [][]uint64{{1}, {2, 3}, {4, 5, 6}}
	require.NoError(t, WritePerBankBuckets(dir, 1, perBank))

	lines := readLines(t, filepath.Join(dir, PerBankFileName(1)))

	i := 0
	for bank := 0; bank < len(perBank); bank++ {
		require.Less(t, i, len(lines))
		assert.Equal(t, len(perBank[bank]), atoiOrFail(t, lines[i]))
		i += 1 + len(perBank[bank])
	}

	assert.Equal(t, len(lines), i)
}

func atoiOrFail(t *testing.T, s string) int {
	t.Helper()

	n := 0
	for _, r := range s {
		require.True(t, r >= '0' && r <= '9')
		n = n*10 + int(r-'0')
	}

	return n
}

func TestFileNames(t *testing.T) {
	assert.Equal(t, "constant_access_times_0_threads.txt", ConstantFileName(0))
	assert.Equal(t, "per_bank_access_times_10_threads.txt", PerBankFileName(10))
}
