package webhook

import (
	"encoding/json"
	"fmt"
)

// Envelope holds the fields shared by every payload variant.
type Envelope struct {
	Success  bool
	JobID    string
	ID       string // v1 alias for JobID
	Metadata map[string]string
}

// Document is a scraped page as delivered to subscribers.
type Document struct {
	Content  string         `json:"content"`
	Markdown string         `json:"markdown,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// DocumentLink pairs a document with the URL it was crawled from.
type DocumentLink struct {
	Content Document `json:"content"`
	Source  string   `json:"source"`
}

// Payload is the closed set of webhook bodies. Each variant fixes its event
// type and the shape of its data field.
type Payload interface {
	json.Marshaler
	Type() EventType
	envelope() Envelope
	withEnvelope(Envelope) Payload
}

// CrawlStarted announces a crawl has begun.
type CrawlStarted struct{ Envelope }

// CrawlPage carries documents scraped during a crawl.
type CrawlPage struct {
	Envelope
	Data  []Document
	Error string
}

// CrawlCompleted carries the crawl results as document links.
type CrawlCompleted struct {
	Envelope
	Data []DocumentLink
}

// CrawlCompletedV1 carries the crawl results as plain documents.
type CrawlCompletedV1 struct {
	Envelope
	Data []Document
}

// CrawlFailed reports a crawl failure.
type CrawlFailed struct {
	Envelope
	Error string
}

// BatchScrapeStarted announces a batch scrape has begun.
type BatchScrapeStarted struct{ Envelope }

// BatchScrapePage carries documents scraped during a batch scrape.
type BatchScrapePage struct {
	Envelope
	Data  []Document
	Error string
}

// BatchScrapeCompleted carries the batch results as document links.
type BatchScrapeCompleted struct {
	Envelope
	Data []DocumentLink
}

// BatchScrapeCompletedV1 carries the batch results as plain documents.
type BatchScrapeCompletedV1 struct {
	Envelope
	Data []Document
}

// ExtractStarted announces an extract job has begun.
type ExtractStarted struct{ Envelope }

// ExtractCompleted carries arbitrary extraction output.
type ExtractCompleted struct {
	Envelope
	Data json.RawMessage
}

// ExtractFailed reports an extract failure.
type ExtractFailed struct {
	Envelope
	Error string
}

var (
	_ Payload = CrawlStarted{}
	_ Payload = CrawlPage{}
	_ Payload = CrawlCompleted{}
	_ Payload = CrawlCompletedV1{}
	_ Payload = CrawlFailed{}
	_ Payload = BatchScrapeStarted{}
	_ Payload = BatchScrapePage{}
	_ Payload = BatchScrapeCompleted{}
	_ Payload = BatchScrapeCompletedV1{}
	_ Payload = ExtractStarted{}
	_ Payload = ExtractCompleted{}
	_ Payload = ExtractFailed{}
)

// Type implements Payload.
func (CrawlStarted) Type() EventType { return EventCrawlStarted }

// Type implements Payload.
func (CrawlPage) Type() EventType { return EventCrawlPage }

// Type implements Payload.
func (CrawlCompleted) Type() EventType { return EventCrawlCompleted }

// Type implements Payload.
func (CrawlCompletedV1) Type() EventType { return EventCrawlCompleted }

// Type implements Payload.
func (CrawlFailed) Type() EventType { return EventCrawlFailed }

// Type implements Payload.
func (BatchScrapeStarted) Type() EventType { return EventBatchScrapeStarted }

// Type implements Payload.
func (BatchScrapePage) Type() EventType { return EventBatchScrapePage }

// Type implements Payload.
func (BatchScrapeCompleted) Type() EventType { return EventBatchScrapeCompleted }

// Type implements Payload.
func (BatchScrapeCompletedV1) Type() EventType { return EventBatchScrapeCompleted }

// Type implements Payload.
func (ExtractStarted) Type() EventType { return EventExtractStarted }

// Type implements Payload.
func (ExtractCompleted) Type() EventType { return EventExtractCompleted }

// Type implements Payload.
func (ExtractFailed) Type() EventType { return EventExtractFailed }

func (p CrawlStarted) envelope() Envelope           { return p.Envelope }
func (p CrawlPage) envelope() Envelope              { return p.Envelope }
func (p CrawlCompleted) envelope() Envelope         { return p.Envelope }
func (p CrawlCompletedV1) envelope() Envelope       { return p.Envelope }
func (p CrawlFailed) envelope() Envelope            { return p.Envelope }
func (p BatchScrapeStarted) envelope() Envelope     { return p.Envelope }
func (p BatchScrapePage) envelope() Envelope        { return p.Envelope }
func (p BatchScrapeCompleted) envelope() Envelope   { return p.Envelope }
func (p BatchScrapeCompletedV1) envelope() Envelope { return p.Envelope }
func (p ExtractStarted) envelope() Envelope         { return p.Envelope }
func (p ExtractCompleted) envelope() Envelope       { return p.Envelope }
func (p ExtractFailed) envelope() Envelope          { return p.Envelope }

func (p CrawlStarted) withEnvelope(e Envelope) Payload           { p.Envelope = e; return p }
func (p CrawlPage) withEnvelope(e Envelope) Payload              { p.Envelope = e; return p }
func (p CrawlCompleted) withEnvelope(e Envelope) Payload         { p.Envelope = e; return p }
func (p CrawlCompletedV1) withEnvelope(e Envelope) Payload       { p.Envelope = e; return p }
func (p CrawlFailed) withEnvelope(e Envelope) Payload            { p.Envelope = e; return p }
func (p BatchScrapeStarted) withEnvelope(e Envelope) Payload     { p.Envelope = e; return p }
func (p BatchScrapePage) withEnvelope(e Envelope) Payload        { p.Envelope = e; return p }
func (p BatchScrapeCompleted) withEnvelope(e Envelope) Payload   { p.Envelope = e; return p }
func (p BatchScrapeCompletedV1) withEnvelope(e Envelope) Payload { p.Envelope = e; return p }
func (p ExtractStarted) withEnvelope(e Envelope) Payload         { p.Envelope = e; return p }
func (p ExtractCompleted) withEnvelope(e Envelope) Payload       { p.Envelope = e; return p }
func (p ExtractFailed) withEnvelope(e Envelope) Payload          { p.Envelope = e; return p }

// MarshalJSON implements json.Marshaler.
func (p CrawlStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), emptyData{}, "")
}

// MarshalJSON implements json.Marshaler.
func (p CrawlPage) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), documents(p.Data), p.Error)
}

// MarshalJSON implements json.Marshaler.
func (p CrawlCompleted) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), links(p.Data), "")
}

// MarshalJSON implements json.Marshaler.
func (p CrawlCompletedV1) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), documents(p.Data), "")
}

// MarshalJSON implements json.Marshaler.
func (p CrawlFailed) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), emptyData{}, p.Error)
}

// MarshalJSON implements json.Marshaler.
func (p BatchScrapeStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), emptyData{}, "")
}

// MarshalJSON implements json.Marshaler.
func (p BatchScrapePage) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), documents(p.Data), p.Error)
}

// MarshalJSON implements json.Marshaler.
func (p BatchScrapeCompleted) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), links(p.Data), "")
}

// MarshalJSON implements json.Marshaler.
func (p BatchScrapeCompletedV1) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), documents(p.Data), "")
}

// MarshalJSON implements json.Marshaler.
func (p ExtractStarted) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), emptyData{}, "")
}

// MarshalJSON implements json.Marshaler.
func (p ExtractCompleted) MarshalJSON() ([]byte, error) {
	var data any = p.Data
	if len(p.Data) == 0 {
		data = nil
	}
	return marshalWire(p.Envelope, p.Type(), data, "")
}

// MarshalJSON implements json.Marshaler.
func (p ExtractFailed) MarshalJSON() ([]byte, error) {
	return marshalWire(p.Envelope, p.Type(), emptyData{}, p.Error)
}

// emptyData always encodes as [].
type emptyData struct{}

func (emptyData) MarshalJSON() ([]byte, error) { return []byte("[]"), nil }

type wireMessage struct {
	Success  bool              `json:"success"`
	Type     EventType         `json:"type"`
	ID       string            `json:"id,omitempty"`
	JobID    string            `json:"jobId,omitempty"`
	Data     any               `json:"data"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func marshalWire(env Envelope, t EventType, data any, errMsg string) ([]byte, error) {
	out, err := json.Marshal(wireMessage{
		Success:  env.Success,
		Type:     t,
		ID:       env.ID,
		JobID:    env.JobID,
		Data:     data,
		Error:    errMsg,
		Metadata: env.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return out, nil
}

func documents(in []Document) []Document {
	if in == nil {
		return []Document{}
	}
	return in
}

func links(in []DocumentLink) []DocumentLink {
	if in == nil {
		return []DocumentLink{}
	}
	return in
}

// DecodePayload builds the variant matching t from a raw data field. It is
// used by ingress adapters that receive events as JSON.
func DecodePayload(t EventType, env Envelope, data json.RawMessage, errMsg string) (Payload, error) {
	switch t {
	case EventCrawlStarted:
		return CrawlStarted{Envelope: env}, nil
	case EventBatchScrapeStarted:
		return BatchScrapeStarted{Envelope: env}, nil
	case EventExtractStarted:
		return ExtractStarted{Envelope: env}, nil
	case EventCrawlFailed:
		return CrawlFailed{Envelope: env, Error: errMsg}, nil
	case EventExtractFailed:
		return ExtractFailed{Envelope: env, Error: errMsg}, nil
	case EventExtractCompleted:
		return ExtractCompleted{Envelope: env, Data: data}, nil
	case EventCrawlPage, EventBatchScrapePage:
		docs, err := decodeList[Document](data)
		if err != nil {
			return nil, fmt.Errorf("decode %s data: %w", t, err)
		}
		if t == EventCrawlPage {
			return CrawlPage{Envelope: env, Data: docs, Error: errMsg}, nil
		}
		return BatchScrapePage{Envelope: env, Data: docs, Error: errMsg}, nil
	case EventCrawlCompleted, EventBatchScrapeCompleted:
		return decodeCompleted(t, env, data)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

// decodeCompleted picks the link shape when the first element carries a
// "source" key, and the plain document shape otherwise.
func decodeCompleted(t EventType, env Envelope, data json.RawMessage) (Payload, error) {
	var elems []map[string]json.RawMessage
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", t, err)
		}
	}
	asLinks := len(elems) == 0
	if len(elems) > 0 {
		_, asLinks = elems[0]["source"]
	}
	if asLinks {
		items, err := decodeList[DocumentLink](data)
		if err != nil {
			return nil, fmt.Errorf("decode %s data: %w", t, err)
		}
		if t == EventCrawlCompleted {
			return CrawlCompleted{Envelope: env, Data: items}, nil
		}
		return BatchScrapeCompleted{Envelope: env, Data: items}, nil
	}
	docs, err := decodeList[Document](data)
	if err != nil {
		return nil, fmt.Errorf("decode %s data: %w", t, err)
	}
	if t == EventCrawlCompleted {
		return CrawlCompletedV1{Envelope: env, Data: docs}, nil
	}
	return BatchScrapeCompletedV1{Envelope: env, Data: docs}, nil
}

func decodeList[T any](data json.RawMessage) ([]T, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	return out, nil
}
