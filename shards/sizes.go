package shards

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DatasetSize reports how many samples sit behind a shard pattern, when
// the dataset ships size metadata next to its shards.
//
// Two sidecar forms are recognized, checked in order in the directory of
// the first shard:
//
//	sizes.json  an object mapping shard basename to its sample count;
//	            counts may be JSON numbers or numeric strings
//	__len__     a bare integer, the total for the whole set
//
// Shards absent from sizes.json contribute zero. Without either file the
// total is unknown and sized is false; numShards is valid either way.
func DatasetSize(pattern string) (total int, sized bool, numShards int, err error) {
	urls := Expand(pattern)
	numShards = len(urls)
	if numShards == 0 || urls[0] == "" {
		return 0, false, numShards, fmt.Errorf("shard pattern %q expands to nothing", pattern)
	}
	dir := filepath.Dir(urls[0])

	raw, rerr := os.ReadFile(filepath.Join(dir, "sizes.json"))
	switch {
	case rerr == nil:
		var sizes map[string]any
		if err := json.Unmarshal(raw, &sizes); err != nil {
			return 0, false, numShards, fmt.Errorf("failed to parse sizes.json in %s: %w", dir, err)
		}
		for _, url := range urls {
			base := filepath.Base(url)
			n, err := sidecarCount(sizes[base])
			if err != nil {
				return 0, false, numShards, fmt.Errorf("bad sizes.json entry for %s: %w", base, err)
			}
			total += n
		}
		return total, true, numShards, nil
	case !os.IsNotExist(rerr):
		return 0, false, numShards, fmt.Errorf("failed to read sizes.json in %s: %w", dir, rerr)
	}

	raw, rerr = os.ReadFile(filepath.Join(dir, "__len__"))
	switch {
	case rerr == nil:
		n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
		if err != nil {
			return 0, false, numShards, fmt.Errorf("failed to parse __len__ in %s: %w", dir, err)
		}
		return n, true, numShards, nil
	case !os.IsNotExist(rerr):
		return 0, false, numShards, fmt.Errorf("failed to read __len__ in %s: %w", dir, rerr)
	}

	return 0, false, numShards, nil
}

// sidecarCount accepts the two count encodings seen in the wild, JSON
// numbers and numeric strings. A missing entry counts as zero.
func sidecarCount(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported count type %T", v)
	}
}
