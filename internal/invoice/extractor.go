package invoice

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// invoiceKeywords: a document containing none of these is not treated as an
// invoice and never reaches the model.
var invoiceKeywords = []string{"rechnung", "invoice", "faktura"}

// Result is the uniform envelope every extraction produces. Fields is
// always a well-shaped field bag, even on failure, so downstream
// reconciliation and UI code never needs a nil check.
type Result struct {
	Fields  RawExtraction `json:"fields"`
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Skipped bool          `json:"skipped,omitempty"`
	RawText string        `json:"-"`
	OCRText string        `json:"-"`
}

// ChatClient is the slice of the OpenAI-compatible client the extractor
// needs. *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TextReader extracts the text layer (and OCR text, when available) from a
// document on disk.
type TextReader interface {
	ExtractText(path string) (text string, ocrText string, err error)
}

// ExtractorConfig configures the model endpoint. BaseURL may point at any
// OpenAI-compatible server, including a local Ollama instance.
type ExtractorConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// Extractor wraps the opaque LLM call and handles its failure modes:
// missing text, non-invoice documents, timeouts, model errors and
// malformed JSON all produce a placeholder Result instead of an error.
type Extractor struct {
	client  ChatClient
	model   string
	temp    float32
	timeout time.Duration
	reader  TextReader
	logger  *zap.Logger
}

// NewExtractor creates an extractor backed by an OpenAI-compatible endpoint.
func NewExtractor(cfg ExtractorConfig, reader TextReader, logger *zap.Logger) *Extractor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Extractor{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: cfg.Timeout,
		reader:  reader,
		logger:  logger,
	}
}

// NewExtractorWithClient injects a prebuilt client; used by tests.
func NewExtractorWithClient(client ChatClient, model string, timeout time.Duration, reader TextReader, logger *zap.Logger) *Extractor {
	return &Extractor{client: client, model: model, timeout: timeout, reader: reader, logger: logger}
}

// ExtractFromFile runs the per-document state machine: read text, check the
// invoice keyword set, then run the model with a bounded wall-clock timeout.
func (e *Extractor) ExtractFromFile(ctx context.Context, path string) Result {
	text, ocrText, err := e.reader.ExtractText(path)
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("no extractable text", zap.String("path", path), zap.Error(err))
		return Result{
			Fields:  RawExtraction{},
			Success: false,
			Error:   "no text could be extracted from document",
			OCRText: ocrText,
		}
	}

	combined := strings.ToLower(text + " " + ocrText)
	if !containsAny(combined, invoiceKeywords) {
		e.logger.Info("document does not contain invoice keywords, skipping model",
			zap.String("path", path))
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		return Result{
			Fields: RawExtraction{
				"invoice_number": base,
				"invoice_date":   time.Now().Format("2006-01-02"),
				"supplier_name":  "Unknown Supplier",
				"description":    "This file does not appear to be an invoice",
			},
			Success: false,
			Skipped: true,
			Error:   "document does not appear to be an invoice",
			RawText: text,
			OCRText: ocrText,
		}
	}

	res := e.Extract(ctx, text)
	res.RawText = text
	res.OCRText = ocrText
	return res
}

// Extract runs the model call against already-extracted text. The call is
// raced against a wall-clock timer; on expiry the in-flight call is
// abandoned (not cancelled, the server may not support cancellation) and a
// placeholder result is returned immediately.
func (e *Extractor) Extract(ctx context.Context, text string) Result {
	type outcome struct {
		content string
		err     error
	}
	ch := make(chan outcome, 1)

	// Detached context: the abandoned call may still finish on its own.
	callCtx := context.WithoutCancel(ctx)
	start := time.Now()
	go func() {
		resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       e.model,
			Temperature: e.temp,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text)},
			},
		})
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		if len(resp.Choices) == 0 {
			ch <- outcome{}
			return
		}
		ch <- outcome{content: resp.Choices[0].Message.Content}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.err != nil {
			e.logger.Error("model call failed", zap.Error(out.err))
			return placeholderResult("Not available - AI error",
				"AI processing error. Please input data manually.",
				"error during model processing: "+out.err.Error())
		}
		if out.content == "" {
			e.logger.Error("model returned no result")
			return placeholderResult("Not available - No result",
				"AI returned no result. Please input data manually.",
				"no result returned from model")
		}
		return e.parseModelOutput(out.content, time.Since(start))
	case <-timer.C:
		e.logger.Warn("model call timed out, abandoning",
			zap.Duration("timeout", e.timeout))
		return placeholderResult("Not available - AI timeout",
			"AI processing timed out. Please input data manually.",
			"model processing timed out after "+e.timeout.String())
	case <-ctx.Done():
		e.logger.Warn("extraction aborted by caller", zap.Error(ctx.Err()))
		return placeholderResult("Not available - AI timeout",
			"AI processing timed out. Please input data manually.",
			ctx.Err().Error())
	}
}

// parseModelOutput tolerates markdown code-fence wrapping around the JSON.
func (e *Extractor) parseModelOutput(content string, elapsed time.Duration) Result {
	jsonText := stripCodeFence(content)

	var fields RawExtraction
	if err := json.Unmarshal([]byte(jsonText), &fields); err != nil {
		e.logger.Error("failed to parse model JSON",
			zap.Error(err), zap.String("content", content))
		return placeholderResult("Not available - JSON parsing error",
			"Error parsing AI result. Please input data manually.",
			"failed to parse JSON: "+err.Error())
	}

	e.logger.Info("model extraction successful", zap.Duration("elapsed", elapsed))
	return Result{Fields: fields, Success: true}
}

// stripCodeFence removes a surrounding markdown code block and trims the
// content down to the outermost JSON object.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// placeholderResult builds the well-shaped failure record: supplier carries
// the short reason, description the operator-facing instruction.
func placeholderResult(supplier, description, errMsg string) Result {
	return Result{
		Fields: RawExtraction{
			"Lieferantename":        supplier,
			"Rechnungsdatum":        "",
			"Gesamtbetrag":          "0",
			"Empfängerfirma":        "",
			"Rechnungsnummer":       "",
			"Mehrwertsteuerbetrag":  "0",
			"Leistungsbeschreibung": description,
		},
		Success: false,
		Error:   errMsg,
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

const systemPrompt = `Du bist ein spezialisierter KI-Assistent für die Extraktion von Daten aus deutschen Geschäftsrechnungen. Gib NUR gültiges JSON zurück, ohne zusätzlichen Text.`

func buildPrompt(text string) string {
	return `Extrahiere folgende Informationen aus der Rechnung und gib sie in genau diesem JSON-Format zurück:

{
    "Lieferantename": "Name des Unternehmens, das die Rechnung ausgestellt hat",
    "Rechnungsdatum": "Datum im Format DD.MM.YYYY oder YYYY-MM-DD",
    "Gesamtbetrag": "Betrag mit Währung, z.B. 1.234,56 EUR",
    "Empfängerfirma": "Name des Empfängerunternehmens",
    "Rechnungsnummer": "Rechnungsnummer/Kennung",
    "Mehrwertsteuerbetrag": "MwSt-Betrag mit Währung",
    "Leistungsbeschreibung": "Beschreibung der Waren oder Dienstleistungen"
}

Wichtige Hinweise:
1. Achte auf deutsche Datumsformate (oft TT.MM.JJJJ).
2. Bei Geldbeträgen beachte das deutsche Format (Komma als Dezimaltrennzeichen, z.B. 1.234,56 €).
3. Die Mehrwertsteuer kann als "MwSt.", "USt.", "Umsatzsteuer" oder "19%" gekennzeichnet sein.
4. Die Rechnung kann "Rechnung", "Faktura" oder "Invoice" genannt werden.
5. Falls eine Information nicht gefunden werden kann, gib "Nicht gefunden" zurück.

INVOICE TEXT:
` + text
}
