// Package patfile loads pattern collections from YAML files, so a batch of
// named patterns can be scanned in one invocation.
//
// A pattern file is a YAML list:
//
//	- name: mov-rbp-prologue
//	  pattern: "48 8B EC"
//	- name: call-target
//	  pattern: '\xE8\x00\x00\x00\x00'
//	  mask: "x????"
package patfile

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/aobscan/aobscan/pattern"
)

// Entry is one named pattern in a pattern file. A non-empty Mask selects the
// masked byte-string form; otherwise Pattern is the mixed hex/wildcard form.
type Entry struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`
	Mask    string `json:"mask,omitempty"`

	// Compiled is populated during Load so every entry is known-valid
	// before any scanning starts.
	Compiled *pattern.Pattern `json:"-"`
}

// Load reads and validates a pattern file. Every entry is compiled up front;
// a file with a malformed entry, a missing name, or a duplicate name is
// rejected as a whole.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid pattern file: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("pattern file contains no entries")
	}

	seen := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d: missing name", i+1)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate pattern name %q", e.Name)
		}
		seen[e.Name] = true

		var err error
		if e.Mask == "" {
			e.Compiled, err = pattern.Parse(e.Pattern)
		} else {
			e.Compiled, err = pattern.ParseMasked(e.Pattern, e.Mask)
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", e.Name, err)
		}
	}
	return entries, nil
}
