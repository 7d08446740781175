package ollama

import (
	"fmt"
	"strings"
)

func buildVariantPrompt(question string, n int) string {
	return fmt.Sprintf(`Rewrite the user question below in %d different ways to improve document retrieval.
Keep the meaning identical. Return only the rewritten questions, one per line, no numbering, no commentary.

Question:
%s`, n, question)
}

// parseVariants extracts up to n paraphrases from model output, stripping
// bullet and numbering prefixes the model sometimes adds anyway. The original
// question is never returned as a variant.
func parseVariants(raw, question string, n int) []string {
	out := make([]string, 0, n)
	seen := map[string]struct{}{strings.ToLower(strings.TrimSpace(question)): {}}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		if i := numberingPrefixLen(line); i > 0 {
			line = strings.TrimSpace(line[i:])
		}
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

// numberingPrefixLen reports the length of a leading "1." / "2)" style
// prefix, or 0 when the line has none.
func numberingPrefixLen(line string) int {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return 0
	}
	if line[i] == '.' || line[i] == ')' {
		return i + 1
	}
	return 0
}
