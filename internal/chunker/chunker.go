// Package chunker 实现了句子感知的文本分块算法。
package chunker

import "strings"

// sentenceEndings 是句子边界字符集合。
var sentenceEndings = map[byte]bool{'.': true, '!': true, '?': true, '\n': true}

// TextChunk 是一个分块结果，Index 从 0 开始按产出顺序递增。
type TextChunk struct {
	Index      int
	Content    string
	TokenCount int
}

// EstimateTokenCount 用空白分词的单词数近似 token 数，
// 全系统的 token 预算检查都使用同一个近似。
func EstimateTokenCount(text string) int {
	return len(strings.Fields(text))
}

// ChunkText 将原始文本切分为带重叠的句子级分块。
// 句子按边界字符 . ! ? \n 切分；缓冲区按 token 预算填充，
// 超出 chunkSize 时产出一个分块，并把尾部约 overlap 个 token
// 的句子作为下一个分块的开头。单句超过 chunkSize 时退化为按词切分。
func ChunkText(text string, chunkSize, overlap int) []TextChunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	sentences := splitIntoSentences(text)
	var chunks []TextChunk
	var currentSentences []string
	var overlapSentences []string
	currentTokens := 0
	chunkIndex := 0

	flush := func() {
		content := strings.TrimSpace(strings.Join(currentSentences, " "))
		if content != "" {
			chunks = append(chunks, TextChunk{Index: chunkIndex, Content: content, TokenCount: EstimateTokenCount(content)})
			chunkIndex++
		}
	}

	for _, sentence := range sentences {
		sentenceTokens := EstimateTokenCount(sentence)

		// 单句超长，先冲刷缓冲区再按词切分
		if sentenceTokens > chunkSize {
			if len(currentSentences) > 0 {
				flush()
				overlapSentences = overlapSuffix(currentSentences, overlap)
				currentSentences = nil
				currentTokens = 0
			}

			words := strings.Fields(sentence)
			var wordBuffer []string
			wordTokenCount := 0

			for _, os := range overlapSentences {
				wordBuffer = append(wordBuffer, os)
				wordTokenCount += EstimateTokenCount(os)
			}
			overlapSentences = nil

			for _, word := range words {
				wordBuffer = append(wordBuffer, word)
				wordTokenCount++

				if wordTokenCount >= chunkSize {
					content := strings.TrimSpace(strings.Join(wordBuffer, " "))
					chunks = append(chunks, TextChunk{Index: chunkIndex, Content: content, TokenCount: EstimateTokenCount(content)})
					chunkIndex++

					// 保留尾部 overlap 个词进入下一个子块
					keep := len(wordBuffer) - overlap
					if keep < 0 {
						keep = 0
					}
					wordBuffer = append([]string(nil), wordBuffer[keep:]...)
					wordTokenCount = len(wordBuffer)
				}
			}

			// 剩余的词折回句子缓冲区，后续句子继续填充同一逻辑分块
			if len(wordBuffer) > 0 {
				currentSentences = append(currentSentences, wordBuffer...)
				currentTokens = wordTokenCount
			}
			continue
		}

		if currentTokens+sentenceTokens > chunkSize && len(currentSentences) > 0 {
			flush()

			overlapSentences = overlapSuffix(currentSentences, overlap)
			currentSentences = nil
			currentTokens = 0

			for _, os := range overlapSentences {
				currentSentences = append(currentSentences, os)
				currentTokens += EstimateTokenCount(os)
			}
		}

		currentSentences = append(currentSentences, sentence)
		currentTokens += sentenceTokens
	}

	if len(currentSentences) > 0 {
		flush()
	}

	return chunks
}

// splitIntoSentences 按边界字符切句，边界后的行内空白并入当前句，
// 换行不被吞掉，以便空行仍然构成边界。
func splitIntoSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])

		if sentenceEndings[text[i]] {
			for i+1 < len(text) && isSpace(text[i+1]) && text[i+1] != '\n' {
				i++
				current.WriteByte(text[i])
			}

			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}

// overlapSuffix 从尾部向前累计句子 token 数，直到再加一句会超过
// overlap 为止；一旦已有候选则至少保留一句。
func overlapSuffix(sentences []string, overlap int) []string {
	var result []string
	tokens := 0

	for i := len(sentences) - 1; i >= 0; i-- {
		sentenceTokens := EstimateTokenCount(sentences[i])
		if tokens+sentenceTokens > overlap && len(result) > 0 {
			break
		}
		result = append([]string{sentences[i]}, result...)
		tokens += sentenceTokens
	}

	return result
}
