package splitget

import (
	"fmt"

	"github.com/replicate/splitget/pkg/client"
)

type ManifestEntry struct {
	URL  string
	Dest string
}

// A Manifest is a set of files to download, grouped by scheme://host.
type Manifest map[string][]ManifestEntry

func (m Manifest) AddEntry(url string, destination string) (Manifest, error) {
	schemeHost, err := client.GetSchemeHostKey(url)
	if err != nil {
		return nil, fmt.Errorf("error parsing url %s: %w", url, err)
	}
	m[schemeHost] = append(m[schemeHost], ManifestEntry{URL: url, Dest: destination})
	return m, nil
}

// Len is the number of entries across all hosts.
func (m Manifest) Len() int {
	n := 0
	for _, entries := range m {
		n += len(entries)
	}
	return n
}
