package pdf

import (
	"fmt"
	"os"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"pdf-translator/internal/logger"
)

// Info summarizes a PDF before translation starts.
type Info struct {
	Path      string
	PageCount int
	FileSize  int64
	HasText   bool
}

// Preflight opens a PDF and reports its page count and whether it
// carries an extractable text layer. Scanned documents without text are
// rejected by the caller before any translation cost is paid.
func Preflight(path string) (*Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info := &Info{
		Path:      path,
		PageCount: r.NumPage(),
		FileSize:  st.Size(),
		HasText:   hasTextLayer(r),
	}
	logger.Debug("preflight",
		zap.String("path", path),
		zap.Int("pages", info.PageCount),
		zap.Bool("has_text", info.HasText))
	return info, nil
}

// hasTextLayer samples the first pages for extractable text. A handful
// of non-space characters is enough; scanned PDFs yield none.
func hasTextLayer(r *pdf.Reader) (ok bool) {
	// The underlying reader panics on some malformed files; treat that
	// as an absent text layer rather than crashing the batch.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	pages := r.NumPage()
	if pages > 3 {
		pages = 3
	}

	found := 0
	for p := 1; p <= pages; p++ {
		page := r.Page(p)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, c := range text {
			if !unicode.IsSpace(c) {
				found++
			}
		}
		if found > 50 {
			return true
		}
	}
	return found > 0
}
