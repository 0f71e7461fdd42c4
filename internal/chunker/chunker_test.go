package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 0, EstimateTokenCount("   \t\n "))
	assert.Equal(t, 3, EstimateTokenCount("a b c"))
	assert.Equal(t, 3, EstimateTokenCount("  a\tb \n c  "))
}

func TestChunkTextEmptyInput(t *testing.T) {
	assert.Empty(t, ChunkText("", 512, 50))
	assert.Empty(t, ChunkText("   \n\t  ", 512, 50))
}

func TestChunkTextSingleSmallSentence(t *testing.T) {
	chunks := ChunkText("hello world.", 512, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "hello world.", chunks[0].Content)
	assert.Equal(t, 2, chunks[0].TokenCount)
}

func TestChunkTextKeepsSentencesWhole(t *testing.T) {
	a := "alpha bravo charlie delta."
	b := "echo foxtrot golf hotel."
	c := "india juliet kilo lima."
	d := "mike november oscar papa."
	text := strings.Join([]string{a, b, c, d}, " ")

	chunks := ChunkText(text, 10, 4)
	require.Len(t, chunks, 3)

	assert.Equal(t, a+" "+b, chunks[0].Content)
	assert.Equal(t, b+" "+c, chunks[1].Content)
	assert.Equal(t, c+" "+d, chunks[2].Content)

	// 下标连续且从 0 开始
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}

	// 相邻分块共享重叠句子
	assert.True(t, strings.HasSuffix(chunks[0].Content, b))
	assert.True(t, strings.HasPrefix(chunks[1].Content, b))
}

func TestChunkText700WordParagraph(t *testing.T) {
	words := make([]string, 700)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	text := strings.Join(words, " ")

	chunks := ChunkText(text, 512, 50)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, 512, chunks[0].TokenCount)

	// 第二块以第一块的最后 50 个词开头
	overlap := strings.Join(words[462:512], " ")
	assert.True(t, strings.HasPrefix(chunks[1].Content, overlap))
	assert.Equal(t, 238, chunks[1].TokenCount)
}

func TestChunkTextOversizedSentenceLeftoverFoldsBack(t *testing.T) {
	long := make([]string, 12)
	for i := range long {
		long[i] = fmt.Sprintf("w%d", i+1)
	}
	text := strings.Join(long, " ") + ". short tail."

	chunks := ChunkText(text, 8, 2)
	require.Len(t, chunks, 2)

	// 超长句先按词切出一个满块
	assert.Equal(t, 8, chunks[0].TokenCount)
	assert.Equal(t, strings.Join(long[:8], " "), chunks[0].Content)

	// 剩余词折回缓冲区，与后续短句合并为最后一块
	assert.True(t, strings.HasPrefix(chunks[1].Content, "w7 w8"))
	assert.True(t, strings.HasSuffix(chunks[1].Content, "short tail."))
}

func TestChunkTextNewlineIsBoundary(t *testing.T) {
	chunks := ChunkText("first line\nsecond line\n", 512, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first line second line", chunks[0].Content)
	assert.Equal(t, 4, chunks[0].TokenCount)
}
