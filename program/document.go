package program

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/timing"
)

// Document is the file form of a pulse program. A document carries either raw
// instructions or a logical timeline of segments, never both.
//
//	{
//	  "width": 24,
//	  "channels": {"laser": 0, "mw": 1},
//	  "instructions": [[1, 0, 0, 80], [3, 0, 0, 4], [1, 0, 0, 80]]
//	}
type Document struct {
	Width        uint            `json:"width,omitempty"`
	Channels     map[string]uint `json:"channels"`
	Instructions Program         `json:"instructions,omitempty"`
	Segments     []Segment       `json:"segments,omitempty"`
}

// ReadDocument decodes a document from r.
func ReadDocument(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	doc := &Document{}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("program: decoding document: %w", err)
	}

	return doc, nil
}

// WriteDocument encodes doc to w as indented JSON.
func WriteDocument(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(doc)
}

// Lookup builds the channel lookup of the document. A zero width falls back
// to defaultWidth.
func (d *Document) Lookup(defaultWidth uint) (*flags.Lookup, error) {
	width := d.Width
	if width == 0 {
		width = defaultWidth
	}

	return flags.NewLookup(d.Channels, width)
}

// Program returns the raw program of the document, lowering the segments if
// the document is a logical timeline.
func (d *Document) Program(l *flags.Lookup) (Program, error) {
	if len(d.Instructions) > 0 && len(d.Segments) > 0 {
		return nil, errors.New(
			"program: document has both instructions and segments")
	}

	if len(d.Segments) > 0 {
		return Lower(d.Segments, l)
	}

	return d.Instructions.Clone(), nil
}

// MarshalJSON writes the instruction as a [flags, opcode, data, duration]
// tuple.
func (i Instruction) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]any{
		uint64(i.Flags), int(i.Opcode), i.Data, float64(i.Duration),
	})
}

// UnmarshalJSON reads the [flags, opcode, data, duration] tuple form.
func (i *Instruction) UnmarshalJSON(b []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return err
	}

	if len(tuple) != 4 {
		return fmt.Errorf(
			"program: instruction must have 4 fields, got %d", len(tuple))
	}

	var (
		f        uint64
		op, data int
		d        float64
	)

	for k, dst := range []any{&f, &op, &data, &d} {
		if err := json.Unmarshal(tuple[k], dst); err != nil {
			return fmt.Errorf("program: instruction field %d: %w", k, err)
		}
	}

	*i = Instruction{
		Flags:    flags.Flags(f),
		Opcode:   Opcode(op),
		Data:     data,
		Duration: timing.Ns(d),
	}

	return nil
}
