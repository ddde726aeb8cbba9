package documents

import (
	"io"
	"path/filepath"
	"strings"

	"rsc.io/pdf"
)

const (
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extToMime = map[string]string{
	".pdf":  mimePDF,
	".doc":  mimeDOC,
	".docx": mimeDOCX,
}

var allowedMimes = map[string]bool{
	mimePDF:  true,
	mimeDOC:  true,
	mimeDOCX: true,
}

// resolveDocumentType decides the stored MIME type for an upload from its
// file extension, falling back to the declared content type when the
// extension is unknown. Returns "" for anything outside the PDF/DOC/DOCX
// allowlist.
func resolveDocumentType(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := extToMime[ext]; ok {
		return m
	}
	declared := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if allowedMimes[declared] {
		return declared
	}
	return ""
}

// pdfPageCount parses a PDF and returns its page count. Best-effort: any
// parse failure reports ok=false and the upload proceeds without a count.
// rsc.io/pdf panics on some malformed inputs, hence the recover.
func pdfPageCount(r io.ReaderAt, size int64) (n int, ok bool) {
	defer func() {
		if recover() != nil {
			n, ok = 0, false
		}
	}()
	doc, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, false
	}
	return doc.NumPage(), true
}
