package export

import (
	"fmt"
	"os"
	"path/filepath"

	"legalcore/internal/errs"
)

// WriteFiles renders snap in each requested format and writes a fixed
// filename per format into outputDir, returning the paths written. This
// mirrors the original export engine's orchestration: one snapshot, many
// renderings, one call per export request.
func WriteFiles(snap *Snapshot, outputDir string, formats []string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o700); err != nil {
		return nil, errs.Wrap(errs.Availability, "create export output dir", err)
	}

	var written []string
	for _, format := range formats {
		path, data, err := renderFormat(snap, outputDir, format)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return nil, errs.Wrap(errs.Availability, "write export file "+path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func renderFormat(snap *Snapshot, outputDir, format string) (string, []byte, error) {
	switch format {
	case "json":
		data, err := RenderJSON(snap)
		if err != nil {
			return "", nil, errs.Wrap(errs.Fatal, "render json export", err)
		}
		return filepath.Join(outputDir, "legalcore_export.json"), data, nil
	case "markdown", "md":
		return filepath.Join(outputDir, "legalcore_export.md"), RenderMarkdown(snap), nil
	case "txt", "text":
		return filepath.Join(outputDir, "legalcore_export.txt"), RenderText(snap), nil
	case "pdf":
		data, err := RenderPDF(snap)
		if err != nil {
			return "", nil, err
		}
		return filepath.Join(outputDir, "legalcore_export.pdf"), data, nil
	case "docx":
		data, err := RenderDocx(snap)
		if err != nil {
			return "", nil, err
		}
		return filepath.Join(outputDir, "legalcore_export.docx"), data, nil
	default:
		return "", nil, errs.New(errs.Validation, fmt.Sprintf("unsupported export format %q", format))
	}
}
