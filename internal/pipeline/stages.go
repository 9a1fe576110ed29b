package pipeline

import (
	"context"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/promptwatch/visibility/internal/model"
	"github.com/promptwatch/visibility/internal/store"
)

const (
	stageFetchLimit  = 500
	chunkTargetChars = 500
)

// OnboardResult is the onboard stage's job result: what was verified
// or inferred, and the context inventory available to later stages.
type OnboardResult struct {
	BrandID             string `json:"brand_id"`
	ServiceType         string `json:"service_type,omitempty"`
	Location            string `json:"location,omitempty"`
	InferredServiceType bool   `json:"inferred_service_type,omitempty"`
	Claims              int    `json:"claims"`
	Content             int    `json:"content"`
	Chunks              int    `json:"chunks"`
}

// NormalizeResult is the normalize stage's job result.
type NormalizeResult struct {
	ClaimsNormalized  int `json:"claims_normalized"`
	ContentNormalized int `json:"content_normalized"`
}

// EmbedResult is the embed stage's job result.
type EmbedResult struct {
	ContentChunked int `json:"content_chunked"`
	ChunksCreated  int `json:"chunks_created"`
}

// runOnboard verifies the brand record is usable, fills a blank
// service type from the name and domain when possible, and reports the
// context inventory the sampling snapshot will draw from.
func runOnboard(ctx context.Context, st store.Store, job *model.Job) (*OnboardResult, error) {
	brand, err := st.GetBrand(ctx, job.BrandID)
	if err != nil {
		return nil, err
	}
	if brand.Name == "" || brand.Domain == "" {
		return nil, eris.Errorf("pipeline: brand %s is missing a name or domain", brand.ID)
	}

	inferred := false
	if brand.ServiceType == "" {
		if t := inferServiceType(brand.Name + " " + brand.Domain); t != "" {
			brand.ServiceType = t
			inferred = true
		}
	}
	if inferred {
		if err := st.UpsertBrand(ctx, brand); err != nil {
			return nil, err
		}
	}

	claims, err := st.ListClaims(ctx, brand.ID, stageFetchLimit)
	if err != nil {
		return nil, err
	}
	content, err := st.ListContent(ctx, brand.ID, stageFetchLimit)
	if err != nil {
		return nil, err
	}
	chunks, err := st.ListChunks(ctx, brand.ID, stageFetchLimit)
	if err != nil {
		return nil, err
	}

	zap.L().Info("brand onboarded",
		zap.String("brand_id", brand.ID),
		zap.String("service_type", brand.ServiceType),
		zap.Bool("inferred_service_type", inferred),
		zap.Int("claims", len(claims)),
		zap.Int("content", len(content)),
	)

	return &OnboardResult{
		BrandID:             brand.ID,
		ServiceType:         brand.ServiceType,
		Location:            brand.Location,
		InferredServiceType: inferred,
		Claims:              len(claims),
		Content:             len(content),
		Chunks:              len(chunks),
	}, nil
}

// serviceKeywords maps name and domain substrings to a service type.
// Order matters: "lawn" must win over "law".
var serviceKeywords = []struct {
	needle  string
	service string
}{
	{"plumb", "plumbing"},
	{"hvac", "hvac"},
	{"heating", "hvac"},
	{"cooling", "hvac"},
	{"roof", "roofing"},
	{"electric", "electrical"},
	{"lawn", "landscaping"},
	{"landscap", "landscaping"},
	{"pest", "pest control"},
	{"clean", "cleaning"},
	{"dental", "dental care"},
	{"law", "legal services"},
	{"legal", "legal services"},
	{"market", "marketing"},
	{"software", "software"},
	{"insur", "insurance"},
}

func inferServiceType(s string) string {
	lower := strings.ToLower(s)
	for _, kw := range serviceKeywords {
		if strings.Contains(lower, kw.needle) {
			return kw.service
		}
	}
	return ""
}

// runNormalize canonicalizes claim and content text to NFC with
// collapsed whitespace, rewriting only the rows that change.
func runNormalize(ctx context.Context, st store.Store, job *model.Job) (*NormalizeResult, error) {
	claims, err := st.ListClaims(ctx, job.BrandID, stageFetchLimit)
	if err != nil {
		return nil, err
	}
	res := &NormalizeResult{}
	for _, c := range claims {
		clean := normalizeLine(c.Text)
		if clean == c.Text {
			continue
		}
		if err := st.UpdateClaimText(ctx, c.ID, clean); err != nil {
			return nil, err
		}
		res.ClaimsNormalized++
	}

	items, err := st.ListContent(ctx, job.BrandID, stageFetchLimit)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		clean := normalizeBody(item.Body)
		if clean == item.Body {
			continue
		}
		if err := st.UpdateContentBody(ctx, item.ID, clean); err != nil {
			return nil, err
		}
		res.ContentNormalized++
	}

	zap.L().Info("brand text normalized",
		zap.String("brand_id", job.BrandID),
		zap.Int("claims_normalized", res.ClaimsNormalized),
		zap.Int("content_normalized", res.ContentNormalized),
	)
	return res, nil
}

// normalizeLine applies NFC and collapses all whitespace runs to
// single spaces.
func normalizeLine(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

// normalizeBody applies NFC, collapses spaces and tabs within lines,
// and caps blank runs at one empty line so paragraph breaks survive.
func normalizeBody(s string) string {
	lines := strings.Split(norm.NFC.String(s), "\n")
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// runEmbed cuts each content body into sentence-boundary chunks of
// roughly chunkTargetChars and replaces the content's chunk set.
func runEmbed(ctx context.Context, st store.Store, job *model.Job) (*EmbedResult, error) {
	items, err := st.ListContent(ctx, job.BrandID, stageFetchLimit)
	if err != nil {
		return nil, err
	}

	res := &EmbedResult{}
	for _, item := range items {
		pieces := chunkText(item.Body, chunkTargetChars)
		if len(pieces) == 0 {
			continue
		}
		chunks := make([]model.BrandChunk, len(pieces))
		for i, text := range pieces {
			chunks[i] = model.BrandChunk{
				BrandID:   job.BrandID,
				ContentID: item.ID,
				Seq:       i,
				Text:      text,
			}
		}
		if err := st.ReplaceChunks(ctx, item.ID, chunks); err != nil {
			return nil, err
		}
		res.ContentChunked++
		res.ChunksCreated += len(chunks)
	}

	zap.L().Info("brand content chunked",
		zap.String("brand_id", job.BrandID),
		zap.Int("content_chunked", res.ContentChunked),
		zap.Int("chunks_created", res.ChunksCreated),
	)
	return res, nil
}

// chunkText packs sentences into chunks of roughly target characters.
// A single sentence longer than the target becomes its own oversized
// chunk rather than being split mid-sentence.
func chunkText(text string, target int) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}
	var chunks []string
	var cur strings.Builder
	for _, s := range sentences {
		if cur.Len() > 0 && cur.Len()+1+len(s) > target {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// splitSentences cuts on terminal punctuation followed by whitespace,
// and on line breaks.
func splitSentences(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		cur.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}
