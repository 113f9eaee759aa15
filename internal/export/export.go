// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/util"
)

// Errors returned by the export layer.
var (
	ErrUnknownFormat = errors.New("unknown export format")
	ErrInvalidName   = errors.New("invalid export file name")
)

// FilenameLayout is the time layout of export file names, without extension.
const FilenameLayout = "conversation_20060102_150405"

// TimestampLayout is the ISO-8601 layout of Document.Timestamp.
const TimestampLayout = time.RFC3339

var exportName = regexp.MustCompile(`^conversation_\d{8}_\d{6}\.(json|md)$`)

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is the exported record.
type Document struct {
	Timestamp    string          `json:"timestamp"`
	Model        string          `json:"model"`
	SystemPrompt string          `json:"system_prompt"`
	Conversation []model.Message `json:"conversation"`
}

// NewDocument builds a Document stamped with now.
func NewDocument(now time.Time, chatModel model.ChatModel, systemPrompt string, transcript []model.Message) *Document {
	return &Document{
		Timestamp:    now.Format(TimestampLayout),
		Model:        chatModel.String(),
		SystemPrompt: systemPrompt,
		Conversation: model.CloneMessages(transcript),
	}
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter encodes a Document in one format.
type Exporter interface {
	// Encode returns the file content for doc.
	Encode(doc *Document) ([]byte, error)

	// FileExtension returns the extension including the dot, e.g. ".json".
	FileExtension() string

	// MimeType returns the content type used when serving the file.
	MimeType() string
}

// ParseFormat returns the Exporter for a format name. Empty means JSON.
func ParseFormat(name string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return NewJSONExporter(), nil
	case "md", "markdown":
		return NewMarkdownExporter(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// =============================================================================
// WRITER
// =============================================================================

// Writer writes export files into OutputDir.
type Writer struct {
	// OutputDir is created on first export. Empty means the working directory.
	OutputDir string

	// Exporter defaults to JSON.
	Exporter Exporter

	// Now defaults to time.Now.
	Now func() time.Time
}

// NewWriter creates a JSON Writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{OutputDir: dir, Exporter: NewJSONExporter(), Now: time.Now}
}

// WithExporter returns a copy of w that encodes with e.
func (w *Writer) WithExporter(e Exporter) *Writer {
	cp := *w
	cp.Exporter = e
	return &cp
}

// Export writes transcript with its metadata and returns the base file name.
// An empty transcript writes nothing and returns ok == false.
func (w *Writer) Export(transcript []model.Message, chatModel model.ChatModel, systemPrompt string) (filename string, ok bool, err error) {
	if len(transcript) == 0 {
		return "", false, nil
	}

	exporter := w.Exporter
	if exporter == nil {
		exporter = NewJSONExporter()
	}
	now := time.Now()
	if w.Now != nil {
		now = w.Now()
	}

	data, err := exporter.Encode(NewDocument(now, chatModel, systemPrompt, transcript))
	if err != nil {
		return "", false, fmt.Errorf("encode export: %w", err)
	}

	filename = Filename(now, exporter)
	dir := w.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := util.AtomicWriteFile(filepath.Join(dir, filename), data, 0644, 0755); err != nil {
		return "", false, fmt.Errorf("write export: %w", err)
	}

	log.Printf("EXPORT_WRITTEN | file=%s entries=%d bytes=%d", filename, len(transcript), len(data))
	return filename, true, nil
}

// Path resolves an export file name inside OutputDir. Names that do not
// match the export pattern are rejected, so no path outside OutputDir can
// be produced.
func (w *Writer) Path(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(w.OutputDir, name), nil
}

// Filename returns the export file name for a moment and format.
func Filename(now time.Time, e Exporter) string {
	return now.Format(FilenameLayout) + e.FileExtension()
}

// ValidName reports whether name is an export file name.
func ValidName(name string) bool {
	return exportName.MatchString(name)
}

// MimeTypeFor returns the content type for an export file name.
func MimeTypeFor(name string) string {
	if strings.HasSuffix(name, ".md") {
		return NewMarkdownExporter().MimeType()
	}
	return NewJSONExporter().MimeType()
}
