package theme

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeHex converts "#1A2B3C" to the channel triplet "26 43 60".
// Three-digit and unprefixed forms are accepted.
func DecodeHex(s string) (string, bool) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return "", false
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("%d %d %d", v>>16&0xff, v>>8&0xff, v&0xff), true
}
