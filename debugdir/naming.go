package debugdir

import (
	"fmt"
	"strings"
	"time"
)

// filenameTimestampFormat sorts lexicographically in creation order, which
// keeps directory listings readable during debugging.
const filenameTimestampFormat = "2006-01-02_15-04-05"

// GenerateFilename builds a timestamped debug filename. With a non-blank
// prefix the result is "prefix_2006-01-02_15-04-05.ext"; otherwise the
// "debug" prefix is used. Two names generated within the same second collide,
// which is accepted: the last writer wins at the filesystem level.
func GenerateFilename(prefix, extension string) string {
	timestamp := time.Now().Format(filenameTimestampFormat)

	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "debug"
	}

	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, extension)
}
