// Package transfer moves a whole account in and out of a portable document.
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is written into every exported document.
const Version = "1.0"

// Document is the portable form of every board and note.
type Document struct {
	Version    string    `json:"version" yaml:"version"`
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Boards     []Board   `json:"boards" yaml:"boards"`
	Notes      []Note    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

type Board struct {
	Name  string `json:"name" yaml:"name"`
	Lists []List `json:"lists,omitempty" yaml:"lists,omitempty"`
}

type List struct {
	Name  string `json:"name" yaml:"name"`
	Cards []Card `json:"cards,omitempty" yaml:"cards,omitempty"`
}

type Card struct {
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description" yaml:"description"`
	DueDate     *time.Time `json:"due_date,omitempty" yaml:"due_date,omitempty"`
	Checklist   []Item     `json:"checklist,omitempty" yaml:"checklist,omitempty"`
}

// Item is a checklist item with its subtasks.
type Item struct {
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed,omitempty" yaml:"completed,omitempty"`
	Children  []Item `json:"children,omitempty" yaml:"children,omitempty"`
}

type Note struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// FormatError reports a document that cannot be imported. Nothing has been
// written when it is returned.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid import document: %s: %v", e.Reason, e.Err)
	}
	return "invalid import document: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// Format is a document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown format")

// ParseFormat accepts "json", "yaml" or "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	if f, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), ".")); err == nil {
		return f
	}
	return JSON
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// Decode reads and validates a document. Any problem is a *FormatError.
func Decode(r io.Reader, format Format) (*Document, error) {
	doc := &Document{}
	var err error
	switch format {
	case JSON:
		err = json.NewDecoder(r).Decode(doc)
	case YAML:
		err = yaml.NewDecoder(r).Decode(doc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, &FormatError{Reason: "malformed " + string(format), Err: err}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks everything an import would otherwise reject halfway.
func (d *Document) Validate() error {
	if d.Boards == nil {
		return &FormatError{Reason: "missing boards array"}
	}
	for bi, b := range d.Boards {
		if strings.TrimSpace(b.Name) == "" {
			return &FormatError{Reason: fmt.Sprintf("boards[%d]: name is blank", bi)}
		}
		for li, l := range b.Lists {
			if strings.TrimSpace(l.Name) == "" {
				return &FormatError{Reason: fmt.Sprintf("boards[%d].lists[%d]: name is blank", bi, li)}
			}
			for ci, c := range l.Cards {
				path := fmt.Sprintf("boards[%d].lists[%d].cards[%d]", bi, li, ci)
				if strings.TrimSpace(c.Title) == "" {
					return &FormatError{Reason: path + ": title is blank"}
				}
				if err := validateItems(path+".checklist", c.Checklist); err != nil {
					return err
				}
			}
		}
	}
	for ni, n := range d.Notes {
		if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Content) == "" {
			return &FormatError{Reason: fmt.Sprintf("notes[%d]: title and content are blank", ni)}
		}
	}
	return nil
}

func validateItems(path string, items []Item) error {
	for i, it := range items {
		p := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(it.Text) == "" {
			return &FormatError{Reason: p + ": text is blank"}
		}
		if err := validateItems(p+".children", it.Children); err != nil {
			return err
		}
	}
	return nil
}
