// Package docai calls the Document AI entity-extraction REST API.
package docai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/resilience"
)

const defaultEndpoint = "https://us-documentai.googleapis.com/v1"

// Client runs entity extraction on a card image. Failures are not retried
// here; classification and retry belong to the job orchestrator.
type Client interface {
	Process(ctx context.Context, image []byte, mimeType, processorID string) (*Document, error)
}

// Document is the normalized extraction response.
type Document struct {
	Entities []Entity
	Pages    []PageGeometry
}

// Entity is one detected logical field on the card.
type Entity struct {
	Type       string
	Text       string
	Confidence float64
	// Vertices are pixel-space polygon corners; empty when the processor
	// returned no geometry for the entity.
	Vertices [][2]float64
}

// PageGeometry carries the pixel dimensions of one page.
type PageGeometry struct {
	Width  float64
	Height float64
}

// Option configures the client.
type Option func(*restClient)

// WithEndpoint overrides the API endpoint (used by tests). An empty value is
// ignored so unset config keeps the default endpoint.
func WithEndpoint(u string) Option {
	return func(c *restClient) {
		if u != "" {
			c.endpoint = u
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *restClient) {
		c.client = hc
	}
}

type restClient struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewClient creates a REST-backed extraction client with a bounded timeout.
func NewClient(apiKey string, timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &restClient{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type processRequest struct {
	RawDocument rawDocument `json:"rawDocument"`
}

type rawDocument struct {
	Content  string `json:"content"`
	MimeType string `json:"mimeType"`
}

type processResponse struct {
	Document wireDocument `json:"document"`
}

type wireDocument struct {
	Entities []wireEntity `json:"entities"`
	Pages    []wirePage   `json:"pages"`
}

type wireEntity struct {
	Type        string     `json:"type"`
	MentionText string     `json:"mentionText"`
	Confidence  float64    `json:"confidence"`
	PageAnchor  pageAnchor `json:"pageAnchor"`
}

type pageAnchor struct {
	PageRefs []pageRef `json:"pageRefs"`
}

type pageRef struct {
	Page         json.Number  `json:"page"`
	BoundingPoly boundingPoly `json:"boundingPoly"`
}

type boundingPoly struct {
	NormalizedVertices []vertex `json:"normalizedVertices"`
	Vertices           []vertex `json:"vertices"`
}

type vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type wirePage struct {
	Dimension struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"dimension"`
}

// Process sends the image to the named processor and normalizes the response.
func (c *restClient) Process(ctx context.Context, image []byte, mimeType, processorID string) (*Document, error) {
	if processorID == "" {
		return nil, resilience.NewPermanentError(eris.New("docai: processor id not configured"))
	}
	if len(image) == 0 {
		return nil, resilience.NewPermanentError(eris.New("docai: empty image"))
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	reqBody := processRequest{
		RawDocument: rawDocument{
			Content:  base64.StdEncoding.EncodeToString(image),
			MimeType: mimeType,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "docai: marshal request")
	}

	reqURL := fmt.Sprintf("%s/%s:process", c.endpoint, processorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "docai: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "docai: process call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "docai: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("docai: status %d: %s", resp.StatusCode, truncate(respBody, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, resilience.NewPermanentError(err)
	}

	var pr processResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return nil, eris.Wrap(err, "docai: parse response")
	}

	return normalizeDocument(pr.Document), nil
}

// normalizeDocument converts the wire format into pixel-space entities.
func normalizeDocument(wd wireDocument) *Document {
	doc := &Document{
		Pages: make([]PageGeometry, len(wd.Pages)),
	}
	for i, p := range wd.Pages {
		doc.Pages[i] = PageGeometry{Width: p.Dimension.Width, Height: p.Dimension.Height}
	}

	for _, we := range wd.Entities {
		e := Entity{
			Type:       we.Type,
			Text:       we.MentionText,
			Confidence: we.Confidence,
		}
		for _, ref := range we.PageAnchor.PageRefs {
			pageIdx, _ := ref.Page.Int64()
			if int(pageIdx) >= len(doc.Pages) {
				continue
			}
			page := doc.Pages[pageIdx]
			switch {
			case len(ref.BoundingPoly.NormalizedVertices) > 0:
				for _, v := range ref.BoundingPoly.NormalizedVertices {
					e.Vertices = append(e.Vertices, [2]float64{v.X * page.Width, v.Y * page.Height})
				}
			case len(ref.BoundingPoly.Vertices) > 0:
				for _, v := range ref.BoundingPoly.Vertices {
					e.Vertices = append(e.Vertices, [2]float64{v.X, v.Y})
				}
			}
		}
		doc.Entities = append(doc.Entities, e)
	}

	return doc
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
