package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/amrlab/amrflow/internal/amr"
)

// WriteFile materializes a payload under dir and returns the written path.
// The json format writes a single pretty-printed file; manifest+json writes
// a ZIP archive with data.json and, when a manifest is present,
// manifest.json at the archive root.
func WriteFile(payload *Payload, req Request, dir string,
	jobID *int64) (string, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create export dir: %w", err)
	}

	baseName := fmt.Sprintf("project-%d-%s", payload.ProjectID, req.Level)
	if jobID != nil {
		baseName += fmt.Sprintf("-job-%d", *jobID)
	}
	baseName += "-" + time.Now().UTC().Format("20060102-150405")

	switch req.Format {
	case amr.FormatJSON:
		path := filepath.Join(dir, baseName+".json")
		raw, err := marshalPretty(payload)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return "", fmt.Errorf("unable to write export file: %w",
				err)
		}
		return path, nil

	case amr.FormatManifestJSON:
		path := filepath.Join(dir, baseName+".zip")
		if err := writeArchive(path, payload); err != nil {
			return "", err
		}
		return path, nil
	}

	return "", amr.NewError(amr.CodeExportFormatUnsupported,
		"Desteklenmeyen export formatı: %s", req.Format)
}

// writeArchive writes the ZIP layout: data.json holds the records and failed
// submissions, manifest.json the manifest.
func writeArchive(path string, payload *Payload) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create archive: %w", err)
	}
	defer f.Close()

	archive := zip.NewWriter(f)

	data := struct {
		ProjectID         int64          `json:"project_id"`
		ExportedAt        string         `json:"exported_at"`
		Records           []Record       `json:"records"`
		FailedSubmissions []FailedRecord `json:"failed_submissions"`
	}{
		ProjectID:         payload.ProjectID,
		ExportedAt:        payload.ExportedAt,
		Records:           payload.Records,
		FailedSubmissions: payload.FailedSubmissions,
	}
	if err := addArchiveFile(archive, "data.json", data); err != nil {
		return err
	}

	if payload.Manifest != nil {
		err := addArchiveFile(archive, "manifest.json", payload.Manifest)
		if err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("unable to finalize archive: %w", err)
	}
	return f.Close()
}

func addArchiveFile(archive *zip.Writer, name string, v any) error {
	raw, err := marshalPretty(v)
	if err != nil {
		return err
	}

	w, err := archive.Create(name)
	if err != nil {
		return fmt.Errorf("unable to add %s: %w", name, err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("unable to write %s: %w", name, err)
	}
	return nil
}

// marshalPretty renders JSON with two-space indentation and without HTML
// escaping, keeping Turkish text readable in the output.
func marshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("unable to encode export payload: %w",
			err)
	}
	return buf.Bytes(), nil
}
