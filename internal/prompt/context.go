package prompt

import (
	"sort"
	"strings"

	"github.com/promptwatch/visibility/internal/model"
)

// Snapshot assembly caps. One snapshot is built per sampling job and
// reused by every request in it.
const (
	maxSnapshotClaims  = 10
	maxSnapshotContent = 5
	maxChunkChars      = 2000
	maxSnapshotChars   = 6000
	maxContentSnippet  = 300
)

// BuildSnapshot condenses a brand's claims, content and chunk text
// into a bounded context block: top claims by confidence, top content
// snippets by length, then chunk extracts, truncated to fixed caps.
func BuildSnapshot(brand *model.Brand, claims []model.BrandClaim, content []model.BrandContent, chunks []model.BrandChunk) string {
	var sb strings.Builder

	sb.WriteString("Brand: ")
	sb.WriteString(brand.Name)
	if brand.Domain != "" {
		sb.WriteString(" (")
		sb.WriteString(brand.Domain)
		sb.WriteString(")")
	}
	sb.WriteString("\n")
	if brand.ServiceType != "" {
		sb.WriteString("Service: ")
		sb.WriteString(brand.ServiceType)
		sb.WriteString("\n")
	}
	if brand.Location != "" {
		sb.WriteString("Location: ")
		sb.WriteString(brand.Location)
		sb.WriteString("\n")
	}

	if len(claims) > 0 {
		sorted := make([]model.BrandClaim, len(claims))
		copy(sorted, claims)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Confidence > sorted[j].Confidence
		})
		if len(sorted) > maxSnapshotClaims {
			sorted = sorted[:maxSnapshotClaims]
		}

		sb.WriteString("\nKnown facts:\n")
		for _, c := range sorted {
			sb.WriteString("- ")
			sb.WriteString(strings.TrimSpace(c.Text))
			sb.WriteString("\n")
		}
	}

	if len(content) > 0 {
		sorted := make([]model.BrandContent, len(content))
		copy(sorted, content)
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].Body) > len(sorted[j].Body)
		})
		if len(sorted) > maxSnapshotContent {
			sorted = sorted[:maxSnapshotContent]
		}

		sb.WriteString("\nSite content:\n")
		for _, c := range sorted {
			if c.Title != "" {
				sb.WriteString("[")
				sb.WriteString(c.Title)
				sb.WriteString("] ")
			}
			sb.WriteString(truncateRunes(strings.TrimSpace(c.Body), maxContentSnippet))
			sb.WriteString("\n")
		}
	}

	if len(chunks) > 0 {
		var extract strings.Builder
		for _, ch := range chunks {
			if extract.Len() >= maxChunkChars {
				break
			}
			if extract.Len() > 0 {
				extract.WriteString(" ")
			}
			extract.WriteString(strings.TrimSpace(ch.Text))
		}

		sb.WriteString("\nExtracts:\n")
		sb.WriteString(truncateRunes(extract.String(), maxChunkChars))
		sb.WriteString("\n")
	}

	return truncateRunes(sb.String(), maxSnapshotChars)
}

// truncateRunes cuts s to at most n runes without splitting a
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
