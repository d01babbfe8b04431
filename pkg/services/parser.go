package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"

	"github.com/fathomresearch/fathom/pkg/research"
)

// ErrParseFailed classifies parser failures in the evidence pipeline.
var ErrParseFailed = errors.New("parse failed")

// ParsedDocument is the parser's normalized output for one source.
type ParsedDocument struct {
	SourceURL string
	Markdown  string
	Metadata  map[string]string
	Assets    []research.Asset
}

// FileRef pairs a stored file id with the URL it was downloaded from.
type FileRef struct {
	FileID string
	URL    string
}

// DocumentParser turns stored files into markdown plus assets.
type DocumentParser interface {
	Parse(ctx context.Context, fileID, sourceURL string) (*ParsedDocument, error)

	// ParseFiles parses a batch, returning successfully parsed documents and
	// the URLs that failed.
	ParseFiles(ctx context.Context, refs []FileRef) ([]ParsedDocument, []string)
}

// LocalParser parses files retrieved from a FileStore with format-specific
// decoders (HTML, PDF, DOCX, XLSX, CSV). Unknown formats fall back to HTML.
type LocalParser struct {
	store FileStore
}

// NewLocalParser creates a parser over the given store.
func NewLocalParser(store FileStore) *LocalParser {
	return &LocalParser{store: store}
}

// Parse implements DocumentParser.
func (p *LocalParser) Parse(ctx context.Context, fileID, sourceURL string) (*ParsedDocument, error) {
	content, filename, err := p.store.Retrieve(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, sourceURL, err)
	}

	var doc *ParsedDocument
	switch classify(filename) {
	case "pdf":
		doc, err = parsePDF(content)
	case "docx":
		doc, err = parseDOCX(content)
	case "xlsx":
		doc, err = parseXLSX(content)
	case "csv":
		doc, err = parseCSV(content)
	default:
		doc, err = parseHTML(content, sourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, sourceURL, err)
	}
	if strings.TrimSpace(doc.Markdown) == "" {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrParseFailed, sourceURL)
	}

	doc.SourceURL = sourceURL
	if doc.Metadata == nil {
		doc.Metadata = map[string]string{}
	}
	for i := range doc.Assets {
		doc.Assets[i].ID = fmt.Sprintf("asset-%d", i+1)
	}
	return doc, nil
}

// ParseFiles implements DocumentParser.
func (p *LocalParser) ParseFiles(ctx context.Context, refs []FileRef) ([]ParsedDocument, []string) {
	var docs []ParsedDocument
	var failed []string
	for _, ref := range refs {
		doc, err := p.Parse(ctx, ref.FileID, ref.URL)
		if err != nil {
			slog.Warn("document parse failed", "url", ref.URL, "error", err)
			failed = append(failed, ref.URL)
			continue
		}
		docs = append(docs, *doc)
	}
	return docs, failed
}

func classify(filename string) string {
	lowered := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lowered, ".pdf"):
		return "pdf"
	case strings.HasSuffix(lowered, ".docx"):
		return "docx"
	case strings.HasSuffix(lowered, ".xlsx"):
		return "xlsx"
	case strings.HasSuffix(lowered, ".csv"):
		return "csv"
	default:
		return "html"
	}
}

func parseHTML(content []byte, sourceURL string) (*ParsedDocument, error) {
	root, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	doc := &ParsedDocument{Metadata: map[string]string{}}
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if n.FirstChild != nil && doc.Metadata["title"] == "" {
					doc.Metadata["title"] = strings.TrimSpace(n.FirstChild.Data)
				}
			case "img":
				if src := attr(n, "src"); src != "" {
					doc.Assets = append(doc.Assets, research.Asset{
						Type:        research.AssetImage,
						URL:         src,
						Description: attr(n, "alt"),
					})
				}
			case "a":
				if href := attr(n, "href"); href != "" {
					switch {
					case strings.HasSuffix(strings.ToLower(href), ".csv"):
						doc.Assets = append(doc.Assets, research.Asset{Type: research.AssetTableCSV, URL: href})
					case hasDownloadSuffix(href):
						doc.Assets = append(doc.Assets, research.Asset{Type: research.AssetFile, URL: href})
					}
				}
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
				text.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				text.WriteString(trimmed)
				text.WriteString(" ")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	doc.Markdown = collapseBlankLines(text.String())
	return doc, nil
}

func hasDownloadSuffix(href string) bool {
	lowered := strings.ToLower(href)
	for _, suffix := range []string{".pdf", ".zip", ".xlsx", ".docx", ".tar.gz"} {
		if strings.HasSuffix(lowered, suffix) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func parsePDF(content []byte) (*ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for page := 1; page <= reader.NumPage(); page++ {
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		pageText, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text.WriteString(pageText)
		text.WriteString("\n\n")
	}

	return &ParsedDocument{
		Markdown: strings.TrimSpace(text.String()),
		Metadata: map[string]string{"format": "pdf"},
	}, nil
}

func parseDOCX(content []byte) (*ParsedDocument, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw := reader.Editable().GetContent()
	text, err := xmlText(raw)
	if err != nil {
		return nil, err
	}

	return &ParsedDocument{
		Markdown: text,
		Metadata: map[string]string{"format": "docx"},
	}, nil
}

// xmlText extracts character data from WordprocessingML, inserting line
// breaks at paragraph boundaries.
func xmlText(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := token.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local == "p" {
				text.WriteString("\n")
			}
		}
	}
	return collapseBlankLines(text.String()), nil
}

func parseXLSX(content []byte) (*ParsedDocument, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer workbook.Close()

	var md strings.Builder
	for _, sheet := range workbook.GetSheetList() {
		rows, err := workbook.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		fmt.Fprintf(&md, "## %s\n\n", sheet)
		md.WriteString(markdownTable(rows))
		md.WriteString("\n")
	}

	return &ParsedDocument{
		Markdown: strings.TrimSpace(md.String()),
		Metadata: map[string]string{"format": "xlsx"},
	}, nil
}

func parseCSV(content []byte) (*ParsedDocument, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	return &ParsedDocument{
		Markdown: markdownTable(rows),
		Metadata: map[string]string{"format": "csv"},
	}, nil
}

func markdownTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("| " + strings.Join(rows[0], " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(rows[0])) + "\n")
	for _, row := range rows[1:] {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	return sb.String()
}
