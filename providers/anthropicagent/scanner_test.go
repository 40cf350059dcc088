package anthropicagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThinkingScanner_PlainTextPassesThroughAsContent(t *testing.T) {
	s := newThinkingScanner(true)
	c1, r1 := s.Feed("hello world")
	c2, r2 := s.Flush()
	assert.Equal(t, "hello world", c1+c2)
	assert.Empty(t, r1+r2)
}

func TestThinkingScanner_WholeTagsInOneChunk(t *testing.T) {
	s := newThinkingScanner(true)
	c1, r1 := s.Feed("before <thinking>reasoning here</thinking> after")
	c2, r2 := s.Flush()
	assert.Equal(t, "before  after", c1+c2)
	assert.Equal(t, "reasoning here", r1+r2)
}

func TestThinkingScanner_TagSplitAcrossChunkBoundary(t *testing.T) {
	s := newThinkingScanner(true)
	var content, reasoning string

	c1, r1 := s.Feed("start <think")
	content += c1
	reasoning += r1
	c2, r2 := s.Feed("ing>inner</thinking> end")
	content += c2
	reasoning += r2
	c3, r3 := s.Flush()
	content += c3
	reasoning += r3

	assert.Equal(t, "start  end", content)
	assert.Equal(t, "inner", reasoning)
}

func TestThinkingScanner_CloseTagSplitAcrossChunkBoundary(t *testing.T) {
	s := newThinkingScanner(true)
	var content, reasoning string

	c1, r1 := s.Feed("<thinking>partial</think")
	content += c1
	reasoning += r1
	c2, r2 := s.Feed("ing> rest")
	content += c2
	reasoning += r2
	c3, r3 := s.Flush()
	content += c3
	reasoning += r3

	assert.Equal(t, " rest", content)
	assert.Equal(t, "partial", reasoning)
}

func TestThinkingScanner_DropsReasoningWhenNotWanted(t *testing.T) {
	s := newThinkingScanner(false)
	c1, r1 := s.Feed("before <thinking>secret</thinking> after")
	c2, r2 := s.Flush()
	assert.Equal(t, "before  after", c1+c2)
	assert.Empty(t, r1+r2)
}

func TestThinkingScanner_FlushDrainsBufferedContent(t *testing.T) {
	s := newThinkingScanner(true)
	c1, r1 := s.Feed("trailing te")
	c2, r2 := s.Flush()
	assert.Equal(t, "trailing te", c1+c2)
	assert.Empty(t, r1+r2)
}

func TestThinkingScanner_FlushDrainsBufferedReasoning(t *testing.T) {
	s := newThinkingScanner(true)
	c1, r1 := s.Feed("<thinking>unterminated reasoning")
	c2, r2 := s.Flush()
	assert.Empty(t, c1+c2)
	assert.Equal(t, "unterminated reasoning", r1+r2)
}

func TestThinkingScanner_MultipleThinkingBlocks(t *testing.T) {
	s := newThinkingScanner(true)
	c1, r1 := s.Feed("a <thinking>r1</thinking> b <thinking>r2</thinking> c")
	c2, r2 := s.Flush()
	assert.Equal(t, "a  b  c", c1+c2)
	assert.Equal(t, "r1r2", r1+r2)
}
