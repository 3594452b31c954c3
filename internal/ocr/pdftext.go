package ocr

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// TextFromPDF pulls the embedded text layer out of a PDF. Scanned documents
// usually have none, in which case it returns an empty string and no error.
// This is the last-resort raw-text source when the external service is down.
func TextFromPDF(content []byte) (string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return strings.TrimSpace(sb.String()), nil
}
