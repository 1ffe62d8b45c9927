// Package book reads and writes the mdBook preprocessor protocol.
//
// mdBook invokes a preprocessor with a JSON array of [context, book] on stdin
// and expects the (possibly modified) book JSON on stdout. Only the parts of
// the model that cmdrun touches are decoded; every other field is carried
// through untouched so newer mdBook versions keep working.
package book

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	keySections = "sections"
	keyChapter  = "Chapter"
	keyContent  = "content"
	keyName     = "name"
	keyPath     = "path"
	keySubItems = "sub_items"
)

// Context is the preprocessor context mdBook sends alongside the book.
type Context struct {
	Root          string          `json:"root"`
	Config        json.RawMessage `json:"config"`
	Renderer      string          `json:"renderer"`
	MdbookVersion string          `json:"mdbook_version"`
}

// Book is the root of the document tree.
type Book struct {
	Sections []*BookItem

	fields map[string]json.RawMessage
}

// BookItem is a single entry in the table of contents. Only chapters are
// decoded; separators and part titles are preserved verbatim.
type BookItem struct {
	Chapter *Chapter

	raw json.RawMessage
}

// Chapter is a single markdown page.
type Chapter struct {
	Name    string
	Content string
	// Path is relative to the book's source directory, nil for drafts.
	Path     *string
	SubItems []*BookItem

	fields map[string]json.RawMessage
}

// ParseInput reads the [context, book] pair mdBook writes to a preprocessor.
func ParseInput(r io.Reader) (*Context, *Book, error) {
	var input []json.RawMessage
	if err := json.NewDecoder(r).Decode(&input); err != nil {
		return nil, nil, fmt.Errorf("unable to parse preprocessor input: %w", err)
	}
	if len(input) != 2 {
		return nil, nil, fmt.Errorf("unable to parse preprocessor input: expected [context, book], got %d elements", len(input))
	}

	var ctx Context
	if err := json.Unmarshal(input[0], &ctx); err != nil {
		return nil, nil, fmt.Errorf("unable to parse preprocessor context: %w", err)
	}

	var book Book
	if err := json.Unmarshal(input[1], &book); err != nil {
		return nil, nil, fmt.Errorf("unable to parse book: %w", err)
	}

	return &ctx, &book, nil
}

// WriteBook serializes the book in the format mdBook expects back.
func WriteBook(w io.Writer, book *Book) error {
	return json.NewEncoder(w).Encode(book)
}

// MapChapters calls fn on every chapter depth first, parents before their
// children. It stops at the first error.
func (b *Book) MapChapters(fn func(chapter *Chapter) error) error {
	return mapItems(b.Sections, fn)
}

func mapItems(items []*BookItem, fn func(chapter *Chapter) error) error {
	for _, item := range items {
		if item.Chapter == nil {
			continue
		}

		if err := fn(item.Chapter); err != nil {
			return err
		}

		if err := mapItems(item.Chapter.SubItems, fn); err != nil {
			return err
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Book) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &b.fields); err != nil {
		return err
	}

	b.Sections = nil
	if raw, ok := b.fields[keySections]; ok {
		if err := json.Unmarshal(raw, &b.Sections); err != nil {
			return fmt.Errorf("sections: %w", err)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (b *Book) MarshalJSON() ([]byte, error) {
	return marshalWith(b.fields, map[string]interface{}{
		keySections: nonNilItems(b.Sections),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *BookItem) UnmarshalJSON(data []byte) error {
	i.raw = append(json.RawMessage(nil), data...)
	i.Chapter = nil

	// Separators are encoded as a bare string.
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
		return nil
	}

	var variants map[string]json.RawMessage
	if err := json.Unmarshal(data, &variants); err != nil {
		return err
	}

	if raw, ok := variants[keyChapter]; ok {
		i.Chapter = &Chapter{}
		return json.Unmarshal(raw, i.Chapter)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (i *BookItem) MarshalJSON() ([]byte, error) {
	if i.Chapter != nil {
		return json.Marshal(map[string]*Chapter{keyChapter: i.Chapter})
	}
	if i.raw == nil {
		return nil, errors.New("empty book item")
	}
	return i.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chapter) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &c.fields); err != nil {
		return err
	}

	decode := func(key string, dest interface{}) error {
		raw, ok := c.fields[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dest); err != nil {
			return fmt.Errorf("chapter %s: %w", key, err)
		}
		return nil
	}

	for key, dest := range map[string]interface{}{
		keyName:     &c.Name,
		keyContent:  &c.Content,
		keyPath:     &c.Path,
		keySubItems: &c.SubItems,
	} {
		if err := decode(key, dest); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Chapter) MarshalJSON() ([]byte, error) {
	return marshalWith(c.fields, map[string]interface{}{
		keyName:     c.Name,
		keyContent:  c.Content,
		keyPath:     c.Path,
		keySubItems: nonNilItems(c.SubItems),
	})
}

// marshalWith encodes the preserved fields with the known ones replaced.
func marshalWith(preserved map[string]json.RawMessage, known map[string]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(preserved)+len(known))
	for k, v := range preserved {
		out[k] = v
	}
	for k, v := range known {
		out[k] = v
	}
	return json.Marshal(out)
}

func nonNilItems(items []*BookItem) []*BookItem {
	if items == nil {
		return []*BookItem{}
	}
	return items
}
