package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"records-rag/internal/models"
)

// MIME types with a registered converter.
const (
	MIMEText     = "text/plain"
	MIMECSV      = "text/csv"
	MIMEJSON     = "application/json"
	MIMEMarkdown = "text/markdown"
	MIMEPDF      = "application/pdf"
	MIMEDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEPPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MIMEXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Extractor converts raw file bytes to plain text.
type Extractor interface {
	// Extract returns the text of data. Bytes of a type it cannot handle
	// yield an error wrapping models.ErrUnsupportedFormat.
	Extract(ctx context.Context, data []byte, mimeType string) (string, error)
}

type convertFunc func(data []byte) (string, error)

var errMalformed = errors.New("malformed document")

// Parser is the default Extractor, dispatching on MIME type.
type Parser struct {
	converters map[string]convertFunc
}

var _ Extractor = (*Parser)(nil)

func New() *Parser {
	return &Parser{
		converters: map[string]convertFunc{
			MIMEText:     parseText,
			MIMECSV:      parseText,
			MIMEJSON:     parseText,
			MIMEMarkdown: parseMarkdown,
			MIMEPDF:      parsePDF,
			MIMEDOCX:     parseDOCX,
			MIMEPPTX:     parsePPTX,
			MIMEXLSX:     parseXLSX,
		},
	}
}

// DetectMIME sniffs the media type of data, without parameters.
func DetectMIME(data []byte) string {
	detected := mimetype.Detect(data).String()
	mediaType, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return detected
	}
	return mediaType
}

// Supports reports whether mimeType has a converter.
func (p *Parser) Supports(mimeType string) bool {
	_, ok := p.converters[mimeType]
	return ok
}

func (p *Parser) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = DetectMIME(data)
	}
	convert, ok := p.converters[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, mimeType)
	}
	out, err := safeConvert(convert, data)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", mimeType, err)
	}
	return strings.TrimSpace(out), nil
}

// safeConvert turns a converter panic into an error. The pdf reader
// panics on malformed cross-reference tables.
func safeConvert(convert convertFunc, data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: %v", errMalformed, r)
		}
	}()
	return convert(data)
}

func parseText(data []byte) (string, error) {
	return string(bytes.ToValidUTF8(data, []byte("�"))), nil
}

func parsePDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), nil
}

var (
	wordParagraphRe = regexp.MustCompile(`</w:p>`)
	slideNumberRe   = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

func parseDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range wordParagraphRe.Split(content, -1) {
		if t := strings.TrimSpace(extractTextFromXML(p, "w:t")); t != "" {
			paragraphs = append(paragraphs, t)
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

func parsePPTX(data []byte) (string, error) {
	f, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNumberRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var texts []string
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			continue
		}
		xml, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(extractTextFromXML(string(xml), "a:t")); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n"), nil
}

// parseXLSX renders every sheet as tab-separated rows. Workbooks excelize
// rejects are retried with tealeg/xlsx.
func parseXLSX(data []byte) (string, error) {
	out, err := parseXLSXExcelize(data)
	if err == nil {
		return out, nil
	}
	log.Debug().Err(err).Msg("excelize could not read workbook, falling back to xlsx")
	return parseXLSXLegacy(data)
}

func parseXLSXExcelize(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func parseXLSXLegacy(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, sheet := range f.Sheets {
		fmt.Fprintf(&b, "## Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// parseMarkdown drops markup and keeps the text of every block, one block
// per line.
func parseMarkdown(data []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(data))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(data))
				}
			}
		default:
			if !entering && n.Type() == ast.TypeBlock && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteString("\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// extractTextFromXML concatenates the contents of every <tag> element.
func extractTextFromXML(xmlContent, tag string) string {
	var b strings.Builder
	open, closing := "<"+tag, "</"+tag+">"
	for _, part := range strings.Split(xmlContent, open)[1:] {
		// Skip longer tag names sharing the prefix, e.g. <w:tab> for <w:t.
		if part == "" || (part[0] != '>' && part[0] != ' ') {
			continue
		}
		start := strings.Index(part, ">")
		end := strings.Index(part, closing)
		if start < 0 || end < start {
			continue
		}
		b.WriteString(unescapeXML(part[start+1 : end]))
		b.WriteString(" ")
	}
	return b.String()
}

var xmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&")

func unescapeXML(s string) string {
	return xmlUnescaper.Replace(s)
}
