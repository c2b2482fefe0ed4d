package extract

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/usecase-cli/internal/model"
	"github.com/sells-group/usecase-cli/internal/textutil"
)

// DocumentExtractor handles plain-text-like documents and xlsx workbooks.
type DocumentExtractor struct{}

func (e *DocumentExtractor) Kind() model.SourceKind { return model.SourceDocument }

func (e *DocumentExtractor) Extract(ctx context.Context, file File) (string, string, error) {
	var raw string
	var err error

	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".xlsx":
		raw, err = extractXLSX(ctx, file)
	default:
		raw, err = extractPlain(file)
	}
	if err != nil {
		return "", "", err
	}
	return raw, CleanText(raw), nil
}

func extractPlain(file File) (string, error) {
	if !utf8.Valid(file.Content) {
		return "", eris.Errorf("extract: %q is not valid UTF-8 text", file.Name)
	}
	return string(file.Content), nil
}

// extractXLSX flattens every sheet into tab-separated rows, one sheet per
// paragraph, so the analysis prompt sees tabular requirements as text.
func extractXLSX(ctx context.Context, file File) (string, error) {
	f, err := xlsx.OpenBinary(file.Content)
	if err != nil {
		return "", eris.Wrapf(err, "extract: open xlsx %q", file.Name)
	}

	var sb strings.Builder
	for _, sheet := range f.Sheets {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(sheet.Name)
		for _, row := range sheet.Rows {
			cells := make([]string, len(row.Cells))
			for j, cell := range row.Cells {
				cells[j] = cell.String()
			}
			line := strings.TrimRight(strings.Join(cells, "\t"), "\t ")
			if strings.TrimSpace(line) == "" {
				continue
			}
			sb.WriteString("\n")
			sb.WriteString(line)
		}
	}
	return sb.String(), nil
}

// CleanText normalizes line endings, strips control characters, and
// collapses runs of blank lines.
func CleanText(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, textutil.NormalizeWhitespace(line))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
