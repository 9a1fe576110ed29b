package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParaphrase_IdentityAtZero(t *testing.T) {
	base := "What are the best plumbing providers in Austin, TX?"
	assert.Equal(t, base, Paraphrase(base, 0))
}

func TestParaphrase_Deterministic(t *testing.T) {
	base := "What do customer reviews say about Acme?"
	for i := 0; i < ParaphraseCount(); i++ {
		assert.Equal(t, Paraphrase(base, i), Paraphrase(base, i), "index %d", i)
	}
}

func TestParaphrase_DistinctVariants(t *testing.T) {
	base := "What are the best alternatives to Budget Pipes?"
	seen := make(map[string]int)
	for i := 0; i < ParaphraseCount(); i++ {
		out := Paraphrase(base, i)
		prev, dup := seen[out]
		assert.False(t, dup, "index %d collides with index %d: %q", i, prev, out)
		seen[out] = i
	}
}

func TestParaphrase_Wraparound(t *testing.T) {
	base := "Who are the top-rated movers near Denver?"
	n := ParaphraseCount()
	assert.Equal(t, Paraphrase(base, 0), Paraphrase(base, n))
	assert.Equal(t, Paraphrase(base, 1), Paraphrase(base, n+1))
}

func TestParaphrase_NegativeIndex(t *testing.T) {
	base := "How does Acme compare to Budget Pipes?"
	assert.Equal(t, base, Paraphrase(base, -1))
	assert.Equal(t, base, Paraphrase(base, -7))
}

func TestParaphrase_KeepsQuestionIntent(t *testing.T) {
	base := "What are the best plumbing providers in Austin, TX?"
	for i := 0; i < ParaphraseCount(); i++ {
		out := Paraphrase(base, i)
		assert.Contains(t, out, "plumbing providers in Austin, TX", "index %d", i)
	}
}

func TestParaphrase_QuestionPrefixLowersFirstRune(t *testing.T) {
	out := Paraphrase("Which provider would you recommend?", 1)
	assert.Equal(t, "Quick question: which provider would you recommend?", out)
}

func TestParaphrase_SuffixVariantsTerminateSentence(t *testing.T) {
	// A base without trailing punctuation gains a period before the
	// suffix is appended.
	out := Paraphrase("Tell me about Acme", 2)
	assert.Equal(t, "Tell me about Acme. Keep the answer short.", out)

	out = Paraphrase("Tell me about Acme.", 2)
	assert.Equal(t, "Tell me about Acme. Keep the answer short.", out)

	out = Paraphrase("Who is the best?", 4)
	assert.Equal(t, "Who is the best? Please name specific companies or products.", out)
}
