package engine

import (
	"fmt"
	"strings"

	"github.com/contextlens/contextlens/internal/core"
)

// MaxAugmentResults is the most search results merged into a prompt.
const MaxAugmentResults = 5

const augmentInstruction = "Use the search results above to inform your answer. " +
	"Cite the sources you rely on by their URL. " +
	"If the results are not relevant, answer from your own knowledge and say so."

// AugmentPrompt appends up to MaxAugmentResults labeled search results and a
// citation instruction to prompt. With no results it returns prompt unchanged.
func AugmentPrompt(prompt string, results []core.SearchResult) string {
	if len(results) == 0 {
		return prompt
	}
	if len(results) > MaxAugmentResults {
		results = results[:MaxAugmentResults]
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n--- Search results ---\n")
	for i, result := range results {
		fmt.Fprintf(&b, "\n[%d] %s\nSource: %s\n", i+1, strings.TrimSpace(result.Title), strings.TrimSpace(result.URL))
		if desc := strings.TrimSpace(result.Description); desc != "" {
			fmt.Fprintf(&b, "Summary: %s\n", desc)
		}
	}
	b.WriteString("\n--- End of search results ---\n\n")
	b.WriteString(augmentInstruction)
	return b.String()
}
