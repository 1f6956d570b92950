package hotlist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return data
}

func TestParseBoard(t *testing.T) {
	t.Parallel()

	entries, err := New().ParseBoard(readFixture(t, "board.json"))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, "541234", first.ExternalID.V)
	assert.True(t, first.ExternalID.Valid)
	assert.Equal(t, "2139067", first.Heat)
	assert.Equal(t, "https://www.zhihu.com/question/541234", first.URL)
	assert.Equal(t, time.Unix(1657248657, 0).UTC(), first.Hints.CreatedAt.V)
	assert.Equal(t, int64(5980), first.Hints.FollowerCount.V)
	assert.Equal(t, int64(2512), first.Hints.AnswerCount.V)

	second := entries[1]
	assert.Equal(t, "541300", second.ExternalID.V, "id falls back to the url")
	assert.False(t, second.Hints.ViewCount.Valid, "non-numeric counters stay unresolved")
	assert.False(t, second.Hints.CreatedAt.Valid)

	third := entries[2]
	assert.False(t, third.ExternalID.Valid)
	assert.Equal(t, "一个没有编号的问题", third.Title)
	assert.Empty(t, third.Heat)
}

func TestParseBoardRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{name: "html error page", body: "<html>403 Forbidden</html>"},
		{name: "missing data", body: `{"error":{"code":40352,"message":"please verify"}}`},
		{name: "data is an object", body: `{"data":{"question":{}}}`},
		{name: "empty body", body: ""},
		{name: "rows without question", body: `{"data":[{"target":{"title_area":{"text":"x"}}},{"foo":1}]}`},
		{name: "question is a string", body: `{"data":[{"question":"541234"}]}`},
		{name: "question without url", body: `{"data":[{"question":{"title":"t","id":"1"}}]}`},
		{name: "question without title", body: `{"data":[{"question":{"url":"https://www.zhihu.com/question/1"}}]}`},
		{name: "one drifted row among valid ones", body: `{"data":[{"question":{"title":"t","url":"https://www.zhihu.com/question/1"}},{"foo":1}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().ParseBoard([]byte(tc.body))
			require.ErrorIs(t, err, crawler.ErrMalformedBoard)
		})
	}
}

func TestParseBoardEmptyList(t *testing.T) {
	t.Parallel()

	entries, err := New().ParseBoard([]byte(`{"data":[]}`))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestParseDetail(t *testing.T) {
	t.Parallel()

	detail, err := New().ParseDetail(readFixture(t, "question.html"))
	require.NoError(t, err)
	assert.Equal(t, int64(2512), detail.AnswerCount.V)
	assert.Equal(t, int64(5980), detail.FollowerCount.V)
	assert.Equal(t, int64(2139067), detail.ViewCount.V, "views come from the number board")
	assert.Equal(t, time.Date(2022, 7, 8, 2, 50, 57, 0, time.UTC), detail.CreatedAt.V)
	assert.Contains(t, detail.RawExcerpt.V, "据央视新闻")
	assert.Empty(t, detail.Unresolved())
}

func TestParseDetailPartialPage(t *testing.T) {
	t.Parallel()

	page := `<html><head>
<meta itemprop="answerCount" content="many">
<meta itemprop="zhihu:followerCount" content="12">
<meta itemprop="dateCreated" content="yesterday">
</head><body><div class="Question">no excerpt here</div></body></html>`

	detail, err := New().ParseDetail([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, int64(12), detail.FollowerCount.V)
	assert.Equal(t, []string{
		crawler.FieldCreatedAt,
		crawler.FieldViewCount,
		crawler.FieldAnswerCount,
		crawler.FieldRawExcerpt,
	}, detail.Unresolved())
}

func TestParseCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(2139067), parseCount("2,139,067").V)
	assert.False(t, parseCount("").Valid)
	assert.False(t, parseCount("-3").Valid)
	assert.False(t, parseCount("1.2万").Valid)
}
