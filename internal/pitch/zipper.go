package pitch

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZipEntry is one rendered pitch destined for a bulk download archive.
type ZipEntry struct {
	BusinessName string
	PitchID      string
	HTML         string
}

var entryNameRe = regexp.MustCompile(`[^a-z0-9]+`)

// entryName derives a filesystem-safe archive member name from the business
// name and pitch ID: lowercased, runs of non-alphanumerics collapsed to "-".
func entryName(businessName, pitchID string) string {
	slug := entryNameRe.ReplaceAllString(strings.ToLower(businessName), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "pitch"
	}
	return fmt.Sprintf("%s-%s.html", slug, pitchID)
}

// BuildZip writes the given pitches into a ZIP archive, preserving input
// order so the archive lists rows in the order they were uploaded.
func BuildZip(entries []ZipEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for _, entry := range entries {
		f, err := w.Create(entryName(entry.BusinessName, entry.PitchID))
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("creating archive entry for pitch %s: %w", entry.PitchID, err)
		}
		if _, err := f.Write([]byte(entry.HTML)); err != nil {
			w.Close()
			return nil, fmt.Errorf("writing archive entry for pitch %s: %w", entry.PitchID, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing archive: %w", err)
	}
	return buf.Bytes(), nil
}
