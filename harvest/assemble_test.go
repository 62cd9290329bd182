package harvest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(contents ...string) []Record {
	out := make([]Record, 0, len(contents))
	for i, c := range contents {
		out = append(out, Record{ID: string(rune('a' + i)), Content: c})
	}
	return out
}

func contentsOf(rs []Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Content)
	}
	return out
}

func TestAssemble_KeyPrefixCollapse(t *testing.T) {
	base := strings.Repeat("这", 30)
	got, stats := NewAssembler().Assemble(records(base+"后面不一样A", base+"后面不一样B"))

	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID, "first seen survives")
	assert.Equal(t, 1, stats.Duplicates)
}

func TestAssemble_DifferentBeforeKeyEnd(t *testing.T) {
	got, _ := NewAssembler().Assemble(records("first comment here", "second comment here"))
	assert.Equal(t, []string{"first comment here", "second comment here"}, contentsOf(got))
}

func TestAssemble_DropsShort(t *testing.T) {
	got, stats := NewAssembler().Assemble(records("abc", "  好的  ", "abcd", "👍👍👍"))

	assert.Equal(t, []string{"abcd"}, contentsOf(got))
	assert.Equal(t, 3, stats.Short)
}

func TestAssemble_ShortRecordsDoNotRegisterKeys(t *testing.T) {
	got, _ := NewAssembler().Assemble(records("abc", "abcdef"))
	assert.Equal(t, []string{"abcdef"}, contentsOf(got))
}

func TestAssemble_PrefixOverlapBothWays(t *testing.T) {
	got, stats := NewAssembler().Assemble(records(
		"Great post! 👍 (dup)",
		"Great post! 👍",
		"Totally different",
		"Totally different, really",
	))

	assert.Equal(t, []string{"Great post! 👍 (dup)", "Totally different"}, contentsOf(got))
	assert.Equal(t, 2, stats.Duplicates)
}

func TestAssemble_ShortKeyDoesNotAbsorbLongerComments(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want int
	}{
		{"short reply then longer comment", []string{"哈哈哈哈", "哈哈哈哈 这个教程救了我的论文，作者太强了"}, 2},
		{"longer comment then short reply", []string{"哈哈哈哈 这个教程救了我的论文，作者太强了", "哈哈哈哈"}, 2},
		{"eleven runes stay apart", []string{"12345678901", "12345678901 and more"}, 2},
		{"twelve runes collapse", []string{"123456789012", "123456789012 and more"}, 1},
		{"equal short keys collapse", []string{"哈哈哈哈", "哈哈哈哈"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := NewAssembler().Assemble(records(tt.in...))
			assert.Len(t, got, tt.want)
		})
	}
}

func TestAssemble_PreservesOrder(t *testing.T) {
	in := []string{"第三条评论内容", "第一条评论内容", "第二条评论内容"}
	got, _ := NewAssembler().Assemble(records(in...))
	assert.Equal(t, in, contentsOf(got))
}

func TestAssemble_ConfigurableKey(t *testing.T) {
	a := NewAssembler()
	a.KeyRunes = 4
	got, _ := a.Assemble(records("abcdXXXX", "abcdYYYY", "abceZZZZ"))
	assert.Equal(t, []string{"abcdXXXX", "abceZZZZ"}, contentsOf(got))
}

func TestAssemble_NearDuplicatePass(t *testing.T) {
	long := strings.Repeat("今天去了一家很好吃的火锅店，环境不错服务也很热情，", 3)
	in := records(long+"强烈推荐", "完全不相关的另一条评论，讲的是数码产品和耳机音质对比", "X"+long+"强烈推荐")

	off, _ := NewAssembler().Assemble(in)
	assert.Len(t, off, 3, "near-duplicate pass is off by default")

	a := NewAssembler()
	a.SimilarityThreshold = 64
	on, stats := a.Assemble(in)
	assert.Len(t, on, 1, "threshold 64 treats every fingerprint as similar")
	assert.Equal(t, 2, stats.NearDuplicates)
}

func TestEndToEnd_ExtractAndAssemble(t *testing.T) {
	dom := &stubDOM{nodes: map[string][]CandidateNode{
		`[class*="comment"]`: textNodes("Great post! 👍", "Great post! 👍 (dup)", "ab", "登录"),
	}}

	rep := testExtractor().Extract(context.Background(), dom)
	got, stats := NewAssembler().Assemble(rep.Records)

	require.Len(t, got, 1)
	assert.Equal(t, "Great post! 👍", got[0].Content)
	assert.Equal(t, 1, rep.Rejected, "login chrome is rejected by the extractor")
	assert.Equal(t, 1, stats.Short)
	assert.Equal(t, 1, stats.Duplicates)
}
