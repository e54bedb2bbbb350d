// Package roster parses the list of hypervisors targeted by a run.
package roster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hvmigrate/hvmigrate/internal/result"
)

// HostRecord is one roster entry.
type HostRecord struct {
	Hostname string
	TicketID string
}

// Roster is an ordered, read-only list of host records.
type Roster struct {
	records []HostRecord
}

// Load reads and parses the roster file at path.
// Any malformed line fails the whole load with a *result.ConfigError.
func Load(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, result.NewConfigError("roster", fmt.Errorf("failed to open hypervisors file: %w", err))
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, result.NewConfigError("roster", fmt.Errorf("%s: %w", path, err))
	}
	return r, nil
}

// Parse reads roster lines of the form "<hostname> <ticketId>".
// Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) (*Roster, error) {
	var records []HostRecord
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected \"<hostname> <ticket>\", got %d field(s): %q", lineNo, len(fields), line)
		}
		records = append(records, HostRecord{Hostname: fields[0], TicketID: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	return &Roster{records: records}, nil
}

// Records returns a copy of the records in file order.
func (r *Roster) Records() []HostRecord {
	out := make([]HostRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records.
func (r *Roster) Len() int { return len(r.records) }

// Duplicates returns hostnames listed more than once, in order of their second appearance.
// The parser accepts duplicates; callers decide what to do about them.
func (r *Roster) Duplicates() []string {
	seen := make(map[string]int, len(r.records))
	var dups []string
	for _, rec := range r.records {
		seen[rec.Hostname]++
		if seen[rec.Hostname] == 2 {
			dups = append(dups, rec.Hostname)
		}
	}
	return dups
}
