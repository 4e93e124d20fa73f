package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
)

// odfContentPath is the main content part of OpenDocument packages.
const odfContentPath = "content.xml"

var (
	// odpPageTag starts a slide in an OpenDocument presentation.
	odpPageTag = regexp.MustCompile(`<draw:page[\s>]`)
	// odsPageTag starts a sheet in an OpenDocument spreadsheet.
	odsPageTag = regexp.MustCompile(`<table:table[\s>]`)
	// odfText matches leaf text elements in document order.
	odfText = regexp.MustCompile(`<text:(?:p|span|h)(?:\s[^>]*)?>([^<]*)</text:(?:p|span|h)>`)
)

// extractOpenDocument splits content.xml at each pageTag and returns the text of every
// page (slide or sheet). Text before the first page is ignored.
func extractOpenDocument(content []byte, pageTag *regexp.Regexp) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract OpenDocument: not a zip: %w", err)
	}
	raw, err := readZipFile(zr, odfContentPath)
	if err != nil {
		return nil, fmt.Errorf("extract OpenDocument: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("extract OpenDocument: %s not found", odfContentPath)
	}
	s := string(raw)
	starts := pageTag.FindAllStringIndex(s, -1)
	if len(starts) == 0 {
		return []string{joinMatches(odfText, s)}, nil
	}
	pages := make([]string, len(starts))
	for i, loc := range starts {
		end := len(s)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		pages[i] = joinMatches(odfText, s[loc[0]:end])
	}
	return pages, nil
}
