package invoice

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubChatClient returns a canned response, error or delay.
type stubChatClient struct {
	content string
	err     error
	delay   time.Duration
	noReply bool
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	if s.noReply {
		return openai.ChatCompletionResponse{}, nil
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

// stubReader serves fixed text for any path.
type stubReader struct {
	text string
	err  error
}

func (s *stubReader) ExtractText(path string) (string, string, error) {
	return s.text, "", s.err
}

func newTestExtractor(client ChatClient, reader TextReader, timeout time.Duration) *Extractor {
	return NewExtractorWithClient(client, "test-model", timeout, reader, zap.NewNop())
}

func TestExtractSuccess(t *testing.T) {
	client := &stubChatClient{content: `{"Lieferantename": "Acme GmbH", "Rechnungsnummer": "RE-001"}`}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung RE-001")
	require.True(t, res.Success)
	assert.Equal(t, "Acme GmbH", res.Fields["Lieferantename"])
	assert.Equal(t, "RE-001", res.Fields["Rechnungsnummer"])
}

func TestExtractStripsCodeFence(t *testing.T) {
	client := &stubChatClient{content: "```json\n{\"Rechnungsnummer\": \"RE-002\"}\n```"}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung")
	require.True(t, res.Success)
	assert.Equal(t, "RE-002", res.Fields["Rechnungsnummer"])
}

func TestExtractTimeoutReturnsPlaceholder(t *testing.T) {
	client := &stubChatClient{
		content: `{"Rechnungsnummer": "LATE"}`,
		delay:   200 * time.Millisecond,
	}
	e := newTestExtractor(client, nil, 20*time.Millisecond)

	start := time.Now()
	res := e.Extract(context.Background(), "Rechnung")
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 150*time.Millisecond, "must not wait for the slow call")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, "Not available - AI timeout", res.Fields["Lieferantename"])
	assert.Equal(t, "0", res.Fields["Gesamtbetrag"])
	assert.Equal(t, "0", res.Fields["Mehrwertsteuerbetrag"])
}

func TestExtractModelErrorReturnsPlaceholder(t *testing.T) {
	client := &stubChatClient{err: errors.New("connection refused")}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")
	assert.Equal(t, "Not available - AI error", res.Fields["Lieferantename"])
}

func TestExtractEmptyReplyReturnsPlaceholder(t *testing.T) {
	client := &stubChatClient{noReply: true}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung")
	require.False(t, res.Success)
	assert.Equal(t, "Not available - No result", res.Fields["Lieferantename"])
}

func TestExtractMalformedJSONReturnsPlaceholder(t *testing.T) {
	client := &stubChatClient{content: "the invoice number is RE-001"}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "parse")
	assert.Equal(t, "Not available - JSON parsing error", res.Fields["Lieferantename"])
}

func TestExtractPlaceholderIsWellShaped(t *testing.T) {
	client := &stubChatClient{err: errors.New("boom")}
	e := newTestExtractor(client, nil, time.Second)

	res := e.Extract(context.Background(), "Rechnung")
	for _, key := range []string{
		"Lieferantename", "Rechnungsdatum", "Gesamtbetrag", "Empfängerfirma",
		"Rechnungsnummer", "Mehrwertsteuerbetrag", "Leistungsbeschreibung",
	} {
		_, ok := res.Fields[key]
		assert.True(t, ok, "placeholder missing key %s", key)
	}
}

func TestExtractFromFileNoText(t *testing.T) {
	e := newTestExtractor(&stubChatClient{}, &stubReader{text: "   "}, time.Second)

	res := e.ExtractFromFile(context.Background(), "doc.pdf")
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "no text")
	assert.NotNil(t, res.Fields)
}

func TestExtractFromFileNotAnInvoice(t *testing.T) {
	e := newTestExtractor(&stubChatClient{}, &stubReader{text: "meeting agenda for Monday"}, time.Second)

	res := e.ExtractFromFile(context.Background(), "/tmp/agenda.pdf")
	require.False(t, res.Success)
	assert.True(t, res.Skipped)
	assert.Equal(t, "agenda", res.Fields["invoice_number"])
	assert.Equal(t, "Unknown Supplier", res.Fields["supplier_name"])
	assert.Equal(t, time.Now().Format("2006-01-02"), res.Fields["invoice_date"])
}

func TestExtractFromFileKeywordReachesModel(t *testing.T) {
	client := &stubChatClient{content: `{"Rechnungsnummer": "RE-003"}`}
	e := newTestExtractor(client, &stubReader{text: "Rechnung Nr. RE-003"}, time.Second)

	res := e.ExtractFromFile(context.Background(), "/tmp/re003.pdf")
	require.True(t, res.Success)
	assert.Equal(t, "RE-003", res.Fields["Rechnungsnummer"])
	assert.Equal(t, "Rechnung Nr. RE-003", res.RawText)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"Here you go: {\"a\":1} done", `{"a":1}`},
		{"no json at all", "no json at all"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripCodeFence(tt.in))
	}
}
