package catalog

import "strings"

// Limits for user supplied tags. Anything longer or with other characters
// is silently dropped during normalization.
const (
	MaxTagLength   = 50
	MaxTagsPerFile = 20
)

// NormalizeTags lowercases tags, strips a leading '#', rejects anything that
// is not letters, digits, '-' or '_', deduplicates while preserving order,
// and caps the result at MaxTagsPerFile.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.TrimPrefix(tag, "#")
		if !validTag(tag) {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == MaxTagsPerFile {
			break
		}
	}
	return out
}

func validTag(tag string) bool {
	if tag == "" || len(tag) > MaxTagLength {
		return false
	}
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// ExtractHashtags pulls #tag tokens out of free text, normalized.
func ExtractHashtags(text string) []string {
	var raw []string
	for _, token := range strings.Fields(text) {
		if strings.HasPrefix(token, "#") && len(token) > 1 {
			raw = append(raw, token)
		}
	}
	return NormalizeTags(raw)
}
