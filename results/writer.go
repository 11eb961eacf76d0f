// Package results persists experiment output: the line-oriented timing
// trace files and an optional, condensed SQLite recording (per-sweep
// summaries, per-bank deltas and victim traversal times).
package results

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ConstantFileName returns the name of the unbucketed trace file for a
// victim-thread count.
func ConstantFileName(victimThreads int) string {
	return fmt.Sprintf("constant_access_times_%d_threads.txt", victimThreads)
}

// PerBankFileName returns the name of the bank-bucketed trace file for
// a victim-thread count.
func PerBankFileName(victimThreads int) string {
	return fmt.Sprintf("per_bank_access_times_%d_threads.txt", victimThreads)
}

// WriteConstantFile writes the unbucketed epoch deltas: a count line
// followed by one decimal delta per line.
func WriteConstantFile(dir string, victimThreads int, deltas []uint64) error {
	return writeFlat(filepath.Join(dir, ConstantFileName(victimThreads)),
		deltas)
}

// WritePerBankFlat writes the per-bank file for a run without victims,
// which carries the full delta stream in the same shape as the constant
// file.
func WritePerBankFlat(dir string, victimThreads int, deltas []uint64) error {
	return writeFlat(filepath.Join(dir, PerBankFileName(victimThreads)),
		deltas)
}

// WritePerBankBuckets writes the per-bank file for a run with victims:
// for each bank, a count line followed by that bank's deltas in
// timestamp order.
func WritePerBankBuckets(
	dir string,
	victimThreads int,
	perBank [][]uint64,
) error {
	f, err := os.Create(filepath.Join(dir, PerBankFileName(victimThreads)))
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)

	for _, deltas := range perBank {
		writeLine(w, uint64(len(deltas)))

		for _, d := range deltas {
			writeLine(w, d)
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func writeFlat(path string, deltas []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)

	writeLine(w, uint64(len(deltas)))
	for _, d := range deltas {
		writeLine(w, d)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func writeLine(w *bufio.Writer, v uint64) {
	var buf [20]byte

	w.Write(strconv.AppendUint(buf[:0], v, 10))
	w.WriteByte('\n')
}
