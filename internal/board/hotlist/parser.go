// Package hotlist parses the hot-list board API and question detail pages.
//
// Every counter is read on its own: a missing or malformed value leaves that
// one field unresolved and never fails the entry or the page.
package hotlist

import (
	"bytes"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/boardwatch/internal/crawler"
)

var questionIDPattern = regexp.MustCompile(`/questions?/(\d+)`)

// Parser implements board.Parser for the hot-list format.
type Parser struct{}

// New returns a Parser.
func New() *Parser {
	return &Parser{}
}

// ParseBoard reads data[].question and data[].reaction in board order. A row
// without a question title and url means the board changed shape, and the
// whole board is rejected.
func (Parser) ParseBoard(body []byte) ([]crawler.BoardEntry, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: not valid json", crawler.ErrMalformedBoard)
	}
	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, fmt.Errorf("%w: data array missing", crawler.ErrMalformedBoard)
	}

	rows := data.Array()
	entries := make([]crawler.BoardEntry, 0, len(rows))
	for i, row := range rows {
		question := row.Get("question")
		if !question.IsObject() {
			return nil, fmt.Errorf("%w: row %d has no question object", crawler.ErrMalformedBoard, i)
		}
		title := question.Get("title")
		url := question.Get("url").String()
		if title.Type != gjson.String || strings.TrimSpace(title.String()) == "" || url == "" {
			return nil, fmt.Errorf("%w: row %d lacks question title or url", crawler.ErrMalformedBoard, i)
		}
		reaction := row.Get("reaction")
		entries = append(entries, crawler.BoardEntry{
			ExternalID: externalID(question.Get("id"), url),
			Title:      title.String(),
			Heat:       reaction.Get("new_pv_yesterday").String(),
			URL:        url,
			Hints: crawler.Detail{
				CreatedAt:     unixTime(question.Get("created")),
				ViewCount:     count(reaction.Get("pv")),
				FollowerCount: count(reaction.Get("follow_num")),
				AnswerCount:   count(reaction.Get("answer_num")),
			},
		})
	}
	return entries, nil
}

// ParseDetail reads the question page counters, creation date, and excerpt.
func (Parser) ParseDetail(body []byte) (crawler.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Detail{}, fmt.Errorf("parse html: %w", err)
	}

	var detail crawler.Detail
	detail.AnswerCount = parseCount(metaContent(doc, "answerCount"))
	detail.FollowerCount = parseCount(metaContent(doc, "zhihu:followerCount"))
	detail.ViewCount = parseCount(metaContent(doc, "zhihu:visitsCount"))
	if !detail.ViewCount.Valid {
		detail.ViewCount = parseCount(numberBoardValue(doc, "被浏览"))
	}
	if !detail.FollowerCount.Valid {
		detail.FollowerCount = parseCount(numberBoardValue(doc, "关注者"))
	}
	detail.CreatedAt = parseTimestamp(metaContent(doc, "dateCreated"))
	detail.RawExcerpt = excerpt(doc)
	return detail, nil
}

func externalID(id gjson.Result, url string) sql.Null[string] {
	if raw := strings.TrimSpace(id.String()); id.Exists() && raw != "" && raw != "0" {
		return sql.Null[string]{V: raw, Valid: true}
	}
	if match := questionIDPattern.FindStringSubmatch(url); match != nil {
		return sql.Null[string]{V: match[1], Valid: true}
	}
	return sql.Null[string]{}
}

func count(value gjson.Result) sql.Null[int64] {
	if value.Type != gjson.Number {
		return sql.Null[int64]{}
	}
	return sql.Null[int64]{V: value.Int(), Valid: true}
}

func unixTime(value gjson.Result) sql.Null[time.Time] {
	if value.Type != gjson.Number || value.Int() <= 0 {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: time.Unix(value.Int(), 0).UTC(), Valid: true}
}

func metaContent(doc *goquery.Document, itemprop string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[itemprop=%q]`, itemprop)).First().Attr("content")
	return strings.TrimSpace(content)
}

// numberBoardValue reads the counter labelled name from the question header.
// The exact value lives in the title attribute; the text is abbreviated.
func numberBoardValue(doc *goquery.Document, name string) string {
	var value string
	doc.Find(".NumberBoard-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if strings.TrimSpace(item.Find(".NumberBoard-itemName").Text()) != name {
			return true
		}
		node := item.Find(".NumberBoard-itemValue")
		if title, ok := node.Attr("title"); ok {
			value = title
		} else {
			value = node.Text()
		}
		return false
	})
	return strings.TrimSpace(value)
}

func excerpt(doc *goquery.Document) sql.Null[string] {
	for _, selector := range []string{".QuestionRichText .RichText", ".QuestionRichText", ".QuestionHeader-detail"} {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return sql.Null[string]{V: text, Valid: true}
		}
	}
	return sql.Null[string]{}
}

func parseCount(raw string) sql.Null[int64] {
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return sql.Null[int64]{}
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return sql.Null[int64]{}
	}
	return sql.Null[int64]{V: n, Valid: true}
}

func parseTimestamp(raw string) sql.Null[time.Time] {
	if raw == "" {
		return sql.Null[time.Time]{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return sql.Null[time.Time]{}
	}
	return sql.Null[time.Time]{V: ts.UTC(), Valid: true}
}
