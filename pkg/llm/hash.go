package llm

import "strconv"

// ContentHash is the cheap rolling hash used for embedding-cache
// keys and bot content fingerprints, rendered in base 36.
func ContentHash(text string) string {
	var hash int32
	for _, r := range text {
		hash = (hash << 5) - hash + int32(r)
	}
	return strconv.FormatInt(int64(hash), 36)
}
