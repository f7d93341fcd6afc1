package macro

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeeftor/qmp-macro/internal/vars"
)

// Format selects the document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml files and JSON otherwise
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Document is the persisted form of a Program
type Document struct {
	CurrentFunc string        `json:"current_func" yaml:"current_func"`
	Functions   FunctionTable `json:"functions" yaml:"functions"`
}

// FunctionEntry is one function of a document
type FunctionEntry struct {
	Name  string
	Steps []StepRecord
}

// FunctionTable is an object keyed by function name that keeps its key order
type FunctionTable []FunctionEntry

// StepRecord is the persisted form of a Step
type StepRecord struct {
	Op         string   `json:"op" yaml:"op"`
	Image      string   `json:"image,omitempty" yaml:"image,omitempty"`
	TimeoutSec *float64 `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
	PollSec    *float64 `json:"poll_sec,omitempty" yaml:"poll_sec,omitempty"`
	MoveMS     *int     `json:"move_ms,omitempty" yaml:"move_ms,omitempty"`
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	CallFunc   string   `json:"call_func,omitempty" yaml:"call_func,omitempty"`
	VarName    *string  `json:"var_name,omitempty" yaml:"var_name,omitempty"`
	VarType    string   `json:"var_type,omitempty" yaml:"var_type,omitempty"`
	VarValue   *string  `json:"var_value,omitempty" yaml:"var_value,omitempty"`
	Cmp        string   `json:"cmp,omitempty" yaml:"cmp,omitempty"`
	NextOK     Target   `json:"next_ok" yaml:"next_ok"`
	NextFail   Target   `json:"next_fail" yaml:"next_fail"`

	// keys present when decoded from JSON; read-only once set
	keys map[string]bool
}

func (r *StepRecord) UnmarshalJSON(data []byte) error {
	type plain StepRecord
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = StepRecord(p)
	r.keys = make(map[string]bool, len(raw))
	for k := range raw {
		r.keys[k] = true
	}
	return nil
}

// MarshalJSON omits empty optional fields unless the record was decoded with
// them, so documents written by older editors keep their shape.
func (r StepRecord) MarshalJSON() ([]byte, error) {
	fields := []struct {
		key string
		val any
		set bool
	}{
		{"op", r.Op, true},
		{"image", r.Image, r.Image != ""},
		{"timeout_sec", r.TimeoutSec, r.TimeoutSec != nil},
		{"poll_sec", r.PollSec, r.PollSec != nil},
		{"move_ms", r.MoveMS, r.MoveMS != nil},
		{"confidence", r.Confidence, r.Confidence != nil},
		{"call_func", r.CallFunc, r.CallFunc != ""},
		{"var_name", r.VarName, r.VarName != nil},
		{"var_type", r.VarType, r.VarType != ""},
		{"var_value", r.VarValue, r.VarValue != nil},
		{"cmp", r.Cmp, r.Cmp != ""},
		{"next_ok", r.NextOK, true},
		{"next_fail", r.NextFail, true},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	first := true
	for _, f := range fields {
		if !f.set && !r.keys[f.key] {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteString(`"` + f.key + `":`)
		if err := enc.Encode(f.val); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1) // Encode appends a newline
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r StepRecord) clone() StepRecord {
	r.TimeoutSec = clonePtr(r.TimeoutSec)
	r.PollSec = clonePtr(r.PollSec)
	r.MoveMS = clonePtr(r.MoveMS)
	r.Confidence = clonePtr(r.Confidence)
	r.VarName = clonePtr(r.VarName)
	r.VarValue = clonePtr(r.VarValue)
	return r
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Branch targets are written as strings or null. Integers from hand-edited
// documents are accepted too.

func (t Target) MarshalJSON() ([]byte, error) {
	if t == NoTarget {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *Target) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*t = NoTarget
	case string:
		*t = Target(strings.TrimSpace(v))
	case float64:
		*t = Target(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("branch target must be a string, number or null, got %s", string(data))
	}
	return nil
}

func (t Target) MarshalYAML() (interface{}, error) {
	if t == NoTarget {
		return nil, nil
	}
	return string(t), nil
}

func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" {
		*t = NoTarget
		return nil
	}
	*t = Target(strings.TrimSpace(node.Value))
	return nil
}

func (ft FunctionTable) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fn := range ft {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fn.Name)
		if err != nil {
			return nil, err
		}
		steps := fn.Steps
		if steps == nil {
			steps = []StepRecord{}
		}
		val, err := json.Marshal(steps)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (ft *FunctionTable) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ft = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("functions must be an object")
	}

	var out FunctionTable
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var steps []StepRecord
		if err := dec.Decode(&steps); err != nil {
			return fmt.Errorf("function %q: %w", name, err)
		}
		out = append(out, FunctionEntry{Name: name, Steps: steps})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*ft = out
	return nil
}

func (ft FunctionTable) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, fn := range ft {
		steps := fn.Steps
		if steps == nil {
			steps = []StepRecord{}
		}
		var val yaml.Node
		if err := val.Encode(steps); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: fn.Name},
			&val)
	}
	return node, nil
}

func (ft *FunctionTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("functions must be a mapping (line %d)", node.Line)
	}
	var out FunctionTable
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var steps []StepRecord
		if err := node.Content[i+1].Decode(&steps); err != nil {
			return fmt.Errorf("function %q: %w", name, err)
		}
		out = append(out, FunctionEntry{Name: name, Steps: steps})
	}
	*ft = out
	return nil
}

// ToDocument converts a program to its persisted form
func ToDocument(p *Program) Document {
	snap := p.Snapshot()
	doc := Document{CurrentFunc: snap.current}
	for _, name := range snap.order {
		f := snap.functions[name]
		records := make([]StepRecord, 0, len(f.Steps))
		for _, s := range f.Steps {
			records = append(records, stepToRecord(s))
		}
		doc.Functions = append(doc.Functions, FunctionEntry{Name: name, Steps: records})
	}
	return doc
}

// FromDocument builds a program. Missing optional fields take their defaults,
// duplicate function names keep the first occurrence, and an empty document
// yields a program with one empty function.
func FromDocument(doc Document) *Program {
	fns := make([]*Function, 0, len(doc.Functions))
	seen := make(map[string]bool)
	for _, entry := range doc.Functions {
		if seen[entry.Name] {
			continue
		}
		seen[entry.Name] = true
		f := &Function{Name: entry.Name, Steps: make([]Step, 0, len(entry.Steps))}
		for _, r := range entry.Steps {
			f.Steps = append(f.Steps, recordToStep(r))
		}
		fns = append(fns, f)
	}
	return newProgramFrom(fns, doc.CurrentFunc)
}

// StepFromRecord builds a step from its persisted form. Unrecognized ops yield an Unknown action.
func StepFromRecord(r StepRecord) Step {
	return recordToStep(r)
}

// RecordFromStep returns the persisted form of a step
func RecordFromStep(s Step) StepRecord {
	return stepToRecord(s)
}

func stepToRecord(s Step) StepRecord {
	r := StepRecord{NextOK: s.NextOnSuccess, NextFail: s.NextOnFailure}
	switch a := s.Action.(type) {
	case ClickImage:
		r.Op = string(KindClickImage)
		fillImage(&r, a.ImageTarget)
	case WaitDisappear:
		r.Op = string(KindWaitDisappear)
		fillImage(&r, a.ImageTarget)
	case WaitAppear:
		r.Op = string(KindWaitAppear)
		fillImage(&r, a.ImageTarget)
	case CallFunction:
		r.Op = string(KindCallFunction)
		r.CallFunc = a.Callee
	case SetVariable:
		r.Op = string(KindSetVariable)
		r.VarName, r.VarType, r.VarValue = &a.Name, string(a.Type), &a.Value
	case IfCondition:
		r.Op = string(KindIfCondition)
		r.VarName, r.VarType, r.VarValue = &a.Name, string(a.Type), &a.Value
		r.Cmp = a.Op
	case Unknown:
		r = a.Record.clone()
		r.NextOK, r.NextFail = s.NextOnSuccess, s.NextOnFailure
	}
	if s.origin != nil {
		r = withOrigin(r, *s.origin)
	}
	return r
}

// withOrigin keeps the op label and the image fields of the record a step was
// loaded from. Editors that wrote the label look steps up by it.
func withOrigin(r, origin StepRecord) StepRecord {
	r.Op = origin.Op
	if r.TimeoutSec == nil {
		r.Image = origin.Image
		r.TimeoutSec = clonePtr(origin.TimeoutSec)
		r.PollSec = clonePtr(origin.PollSec)
		r.MoveMS = clonePtr(origin.MoveMS)
		r.Confidence = clonePtr(origin.Confidence)
	}
	r.keys = origin.keys
	return r
}

func fillImage(r *StepRecord, t ImageTarget) {
	timeout := t.Timeout.Seconds()
	poll := t.PollInterval.Seconds()
	move := int(t.MoveDuration / time.Millisecond)
	r.Image = t.Pattern
	r.TimeoutSec = &timeout
	r.PollSec = &poll
	r.MoveMS = &move
	r.Confidence = clonePtr(t.Confidence)
}

func recordToStep(r StepRecord) Step {
	s := Step{NextOnSuccess: r.NextOK, NextOnFailure: r.NextFail}
	kind, ok := ParseKind(r.Op)
	if !ok {
		s.Action = Unknown{Op: r.Op, Record: r.clone()}
		return s
	}
	if r.Op != string(kind) {
		origin := r.clone()
		s.origin = &origin
	}

	switch kind {
	case KindClickImage:
		s.Action = ClickImage{imageFromRecord(r)}
	case KindWaitDisappear:
		s.Action = WaitDisappear{imageFromRecord(r)}
	case KindWaitAppear:
		s.Action = WaitAppear{imageFromRecord(r)}
	case KindCallFunction:
		s.Action = CallFunction{Callee: r.CallFunc}
	case KindSetVariable:
		s.Action = SetVariable{Name: deref(r.VarName), Type: vars.ParseType(r.VarType), Value: deref(r.VarValue)}
	case KindIfCondition:
		op := r.Cmp
		if op == "" {
			op = vars.OpEqual
		}
		s.Action = IfCondition{Name: deref(r.VarName), Type: vars.ParseType(r.VarType), Op: op, Value: deref(r.VarValue)}
	}
	return s
}

func imageFromRecord(r StepRecord) ImageTarget {
	t := NewImageTarget(r.Image)
	if r.TimeoutSec != nil {
		t.Timeout = seconds(*r.TimeoutSec)
	}
	if r.PollSec != nil {
		t.PollInterval = seconds(*r.PollSec)
	}
	if r.MoveMS != nil {
		t.MoveDuration = time.Duration(*r.MoveMS) * time.Millisecond
	}
	t.Confidence = clonePtr(r.Confidence)
	return t
}

func seconds(f float64) time.Duration {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Encode writes the program in the given format
func Encode(w io.Writer, p *Program, format Format) error {
	doc := ToDocument(p)
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode YAML document: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode JSON document: %w", err)
		}
		return nil
	}
}

// Decode reads a program in the given format
func Decode(r io.Reader, format Format) (*Program, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode YAML document: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode JSON document: %w", err)
		}
	}
	return FromDocument(doc), nil
}

// LoadFile reads a program document, choosing the format from the extension
func LoadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f, FormatForPath(path))
}

// SaveFile writes a program document through a temporary file and rename
func SaveFile(path string, p *Program) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, p, FormatForPath(path)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
