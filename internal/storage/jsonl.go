package storage

import (
	"bufio"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/matsen/paperrec/internal/paper"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// ReadPapers reads papers from a JSONL file, one JSON object per line.
// Embeddings are never part of the file format.
func ReadPapers(path string) ([]paper.Paper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening papers file: %w", err)
	}
	defer f.Close()

	var papers []paper.Paper
	scanner := bufio.NewScanner(f)

	// Increase buffer size for long abstracts
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var p paper.Paper
		if err := json.Unmarshal(line, &p); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		papers = append(papers, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading papers file: %w", err)
	}

	return papers, nil
}

// WritePapers writes papers to a JSONL file, replacing existing content.
func WritePapers(path string, papers []paper.Paper) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating papers file: %w", err)
	}

	w := bufio.NewWriter(f)
	for i, p := range papers {
		data, err := json.Marshal(p)
		if err != nil {
			f.Close()
			return fmt.Errorf("encoding paper %d: %w", i, err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("writing papers: %w", err)
	}
	return f.Close()
}
