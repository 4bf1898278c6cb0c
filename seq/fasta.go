package seq

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Record is one named sequence from a FASTA file.
type Record struct {
	ID  string
	Seq string
}

var whitespace = regexp.MustCompile(`\s+`)

// ReadFasta parses the multi-FASTA file at path.
func ReadFasta(path string) ([]Record, error) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create path to input file: %s", err)
		}
		path = abs
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := ParseFasta(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return records, nil
}

// ParseFasta reads multi-FASTA records from r. Sequence lines are joined,
// stripped of whitespace and uppercased; the ID is the header up to the first
// space.
func ParseFasta(r io.Reader) ([]Record, error) {
	dat, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	contents := string(dat)
	if strings.TrimSpace(contents) == "" {
		return nil, nil
	}

	lines := strings.Split(contents, "\n")

	var headerIndices []int
	var ids []string
	for i, line := range lines {
		if strings.HasPrefix(line, ">") {
			headerIndices = append(headerIndices, i)
			header := strings.TrimSpace(line[1:])
			if fields := strings.Fields(header); len(fields) > 0 {
				header = fields[0]
			}
			ids = append(ids, header)
		}
	}
	if len(headerIndices) == 0 || strings.TrimSpace(strings.Join(lines[:headerIndices[0]], "")) != "" {
		return nil, fmt.Errorf("not a FASTA file: sequence data before the first header")
	}

	records := make([]Record, 0, len(ids))
	for i, headerIndex := range headerIndices {
		nextLine := len(lines)
		if i < len(headerIndices)-1 {
			nextLine = headerIndices[i+1]
		}
		seqJoined := strings.Join(lines[headerIndex+1:nextLine], "")
		s := strings.ToUpper(whitespace.ReplaceAllString(seqJoined, ""))
		if ids[i] == "" {
			ids[i] = fmt.Sprintf("seq%d", i)
		}
		records = append(records, Record{ID: ids[i], Seq: s})
	}
	return records, nil
}
