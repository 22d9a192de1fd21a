package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentenceChunker(t *testing.T) {
	t.Run("Groups sentences up to the limit", func(t *testing.T) {
		chunker := SentenceChunker(2)

		chunks, err := chunker("First sentence. Second sentence. Third sentence. Fourth sentence.")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "First sentence. Second sentence.", chunks[0])
		assert.Equal(t, "Third sentence. Fourth sentence.", chunks[1])
	})

	t.Run("Keeps a trailing partial chunk", func(t *testing.T) {
		chunker := SentenceChunker(2)

		chunks, err := chunker("One. Two. Three.")
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, "Three.", chunks[1])
	})

	t.Run("Splits on question and exclamation marks", func(t *testing.T) {
		chunker := SentenceChunker(1)

		chunks, err := chunker("Any chest pain? None reported! Continue monitoring.")
		require.NoError(t, err)
		assert.Len(t, chunks, 3)
	})

	t.Run("Empty text produces no chunks", func(t *testing.T) {
		chunker := SentenceChunker(3)

		chunks, err := chunker("   \n  ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Invalid limit is an error", func(t *testing.T) {
		chunker := SentenceChunker(0)

		_, err := chunker("Some text.")
		assert.Error(t, err)
	})
}

func TestSectionChunker(t *testing.T) {
	t.Run("One chunk per blank-line section", func(t *testing.T) {
		chunker := SectionChunker(500)

		text := "History of Present Illness:\nStable on current regimen.\n\nAssessment and Plan:\nContinue metformin."
		chunks, err := chunker(text)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.True(t, strings.HasPrefix(chunks[0], "History of Present Illness:"))
		assert.True(t, strings.HasPrefix(chunks[1], "Assessment and Plan:"))
	})

	t.Run("Long sections fall back to sentence splitting", func(t *testing.T) {
		chunker := SectionChunker(50)

		long := "First long sentence here. Second long sentence here. Third long sentence here. Fourth long sentence here."
		chunks, err := chunker(long)
		require.NoError(t, err)
		assert.Greater(t, len(chunks), 1, "Expected an oversized section split further")
	})

	t.Run("Blank sections are skipped", func(t *testing.T) {
		chunker := SectionChunker(500)

		chunks, err := chunker("Section one.\n\n\n\nSection two.")
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})

	t.Run("Invalid limit is an error", func(t *testing.T) {
		chunker := SectionChunker(0)

		_, err := chunker("Some text.")
		assert.Error(t, err)
	})
}

func TestDefaultChunker(t *testing.T) {
	chunker := DefaultChunker()

	chunks, err := chunker("Short note.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Short note.", chunks[0])
}
