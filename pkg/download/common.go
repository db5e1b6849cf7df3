package download

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var (
	contentRangeRegexp = regexp.MustCompile(`^bytes ([0-9]+)-([0-9]+)/([0-9]+|\*)$`)
	unsatisfiedRegexp  = regexp.MustCompile(`^bytes \*/([0-9]+)$`)

	errMalformedContentRange = errors.New("malformed content range")
	errContentRangeMismatch  = errors.New("content range does not match request")
)

// contentRange is a parsed Content-Range response header. Total is -1 when
// the server sent "*" for the complete length.
type contentRange struct {
	Start int64
	End   int64
	Total int64
}

func rangeHeader(start, end int64) string {
	return fmt.Sprintf("bytes=%d-%d", start, end)
}

func parseContentRange(header string) (contentRange, error) {
	groups := contentRangeRegexp.FindStringSubmatch(header)
	if groups == nil {
		return contentRange{}, fmt.Errorf("%w: %q", errMalformedContentRange, header)
	}
	start, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return contentRange{}, fmt.Errorf("%w: %q", errMalformedContentRange, header)
	}
	end, err := strconv.ParseInt(groups[2], 10, 64)
	if err != nil || end < start {
		return contentRange{}, fmt.Errorf("%w: %q", errMalformedContentRange, header)
	}
	total := int64(-1)
	if groups[3] != "*" {
		total, err = strconv.ParseInt(groups[3], 10, 64)
		if err != nil || total <= end {
			return contentRange{}, fmt.Errorf("%w: %q", errMalformedContentRange, header)
		}
	}
	return contentRange{Start: start, End: end, Total: total}, nil
}

// parseUnsatisfiedRange reads the complete length out of the
// "bytes */<length>" form sent with 416 responses.
func parseUnsatisfiedRange(header string) (int64, error) {
	groups := unsatisfiedRegexp.FindStringSubmatch(header)
	if groups == nil {
		return -1, fmt.Errorf("%w: %q", errMalformedContentRange, header)
	}
	return strconv.ParseInt(groups[1], 10, 64)
}

// checkContentRange verifies that a 206 response covers exactly the requested span.
func checkContentRange(header string, start, end int64) error {
	cr, err := parseContentRange(header)
	if err != nil {
		return err
	}
	if cr.Start != start || cr.End != end {
		return fmt.Errorf("%w: requested %d-%d, got %q", errContentRangeMismatch, start, end, header)
	}
	return nil
}
