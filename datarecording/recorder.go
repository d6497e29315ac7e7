package datarecording

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sarchlab/pulsec/flags"
	"github.com/sarchlab/pulsec/program"
	"github.com/sarchlab/pulsec/timeline"
	"github.com/sarchlab/pulsec/timing"
)

// Table names used by ProgramRecorder.
const (
	ProgramTable     = "program"
	InstructionTable = "instruction"
	SampleTable      = "sample"
)

// Stages a program is recorded at.
const (
	StageOriginal = "original"
	StageCompiled = "compiled"
)

// ProgramEntry is a row of the program table.
type ProgramEntry struct {
	ID           string
	Label        string
	Stage        string
	Instructions int
	TotalNs      float64
}

// InstructionEntry is a row of the instruction table.
type InstructionEntry struct {
	ProgramID  string
	Stage      string
	Idx        int
	Flags      int64
	Opcode     string
	Data       int
	DurationNs float64
}

// SampleEntry is a row of the sample table.
type SampleEntry struct {
	ProgramID string
	Stage     string
	Channel   string
	Bit       int
	TimeNs    float64
	Level     int
}

// ProgramRecorder records programs and their timelines.
type ProgramRecorder struct {
	recorder DataRecorder
}

// NewProgramRecorder creates the program tables in r.
func NewProgramRecorder(r DataRecorder) *ProgramRecorder {
	r.CreateTable(ProgramTable, ProgramEntry{})
	r.CreateTable(InstructionTable, InstructionEntry{})
	r.CreateTable(SampleTable, SampleEntry{})

	return &ProgramRecorder{recorder: r}
}

// NewID returns an id to record the stages of one program under.
func NewID() string {
	return xid.New().String()
}

// Record buffers p, and the samples of t if it is not nil, under id and stage.
func (r *ProgramRecorder) Record(
	id, label, stage string,
	p program.Program,
	t *timeline.Timeline,
) {
	r.recorder.InsertData(ProgramTable, ProgramEntry{
		ID:           id,
		Label:        label,
		Stage:        stage,
		Instructions: len(p),
		TotalNs:      float64(program.TotalDuration(p)),
	})

	for i, inst := range p {
		r.recorder.InsertData(InstructionTable, InstructionEntry{
			ProgramID:  id,
			Stage:      stage,
			Idx:        i,
			Flags:      int64(inst.Flags),
			Opcode:     inst.Opcode.String(),
			Data:       inst.Data,
			DurationNs: float64(inst.Duration),
		})
	}

	if t == nil {
		return
	}

	for _, c := range t.Channels() {
		for s := range t.Samples(c.String()) {
			r.recorder.InsertData(SampleTable, SampleEntry{
				ProgramID: id,
				Stage:     stage,
				Channel:   c.String(),
				Bit:       int(c.Bit),
				TimeNs:    float64(s.Time),
				Level:     int(s.Level),
			})
		}
	}
}

// Flush writes the buffered rows.
func (r *ProgramRecorder) Flush() {
	r.recorder.Flush()
}

// Close flushes and closes the underlying recorder.
func (r *ProgramRecorder) Close() error {
	return r.recorder.Close()
}

// ProgramReader reads recorded programs back.
type ProgramReader struct {
	reader DataReader
}

// NewProgramReader maps the program tables in r.
func NewProgramReader(r DataReader) *ProgramReader {
	r.MapTable(ProgramTable, ProgramEntry{})
	r.MapTable(InstructionTable, InstructionEntry{})
	r.MapTable(SampleTable, SampleEntry{})

	return &ProgramReader{reader: r}
}

// Programs lists the recorded programs.
func (r *ProgramReader) Programs(ctx context.Context) ([]ProgramEntry, error) {
	rows, err := r.reader.Query(ctx, ProgramTable, QueryParams{
		OrderBy: "ID, Stage",
	})
	if err != nil {
		return nil, err
	}

	out := make([]ProgramEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.(*ProgramEntry))
	}

	return out, nil
}

// Program rebuilds the program recorded under id and stage.
func (r *ProgramReader) Program(
	ctx context.Context,
	id, stage string,
) (program.Program, error) {
	rows, err := r.reader.Query(ctx, InstructionTable, QueryParams{
		Where:   "ProgramID = ? AND Stage = ?",
		Args:    []any{id, stage},
		OrderBy: "Idx",
	})
	if err != nil {
		return nil, err
	}

	p := make(program.Program, 0, len(rows))
	for _, row := range rows {
		e := row.(*InstructionEntry)

		op, err := program.ParseOpcode(e.Opcode)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", e.Idx, err)
		}

		p = append(p, program.Instruction{
			Flags:    flags.Flags(e.Flags),
			Opcode:   op,
			Data:     e.Data,
			Duration: timing.Ns(e.DurationNs),
		})
	}

	return p, nil
}

// Samples returns the recorded samples of a channel.
func (r *ProgramReader) Samples(
	ctx context.Context,
	id, stage, channel string,
) ([]timeline.Sample, error) {
	rows, err := r.reader.Query(ctx, SampleTable, QueryParams{
		Where:   "ProgramID = ? AND Stage = ? AND Channel = ?",
		Args:    []any{id, stage, channel},
		OrderBy: "TimeNs",
	})
	if err != nil {
		return nil, err
	}

	out := make([]timeline.Sample, 0, len(rows))
	for _, row := range rows {
		e := row.(*SampleEntry)
		out = append(out, timeline.Sample{
			Time:  timing.Ns(e.TimeNs),
			Level: timeline.Level(e.Level),
		})
	}

	return out, nil
}

// Close closes the underlying reader.
func (r *ProgramReader) Close() error {
	return r.reader.Close()
}
