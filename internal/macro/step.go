package macro

import (
	"strconv"
	"strings"
	"time"

	"github.com/jeeftor/qmp-macro/internal/constants"
	"github.com/jeeftor/qmp-macro/internal/vars"
)

// Kind identifies the operation a step performs
type Kind string

const (
	KindClickImage    Kind = "ClickImage"
	KindWaitDisappear Kind = "WaitDisappear"
	KindWaitAppear    Kind = "WaitAppear"
	KindCallFunction  Kind = "CallFunction"
	KindSetVariable   Kind = "SetVariable"
	KindIfCondition   Kind = "IfCondition"
)

// Kinds lists the operations in editor order
var Kinds = []Kind{KindClickImage, KindWaitDisappear, KindWaitAppear, KindCallFunction, KindSetVariable, KindIfCondition}

// ParseKind resolves an op name, including the labels older documents were saved with
func ParseKind(op string) (Kind, bool) {
	op = strings.TrimSpace(op)
	for _, k := range Kinds {
		if strings.EqualFold(op, string(k)) {
			return k, true
		}
	}
	k, ok := legacyOps[op]
	return k, ok
}

// Op labels written by older desktop editor versions
var legacyOps = map[string]Kind{
	"Resme Tıkla":               KindClickImage,
	"Resmin Kaybolmasını Bekle": KindWaitDisappear,
	"Resmin Görünmesini Bekle":  KindWaitAppear,
	"Fonksiyon Çağır":           KindCallFunction,
	"Değişken Ata":              KindSetVariable,
	"Eğer":                      KindIfCondition,
}

// Action is the kind-specific payload of a step. The set of implementations is closed.
type Action interface {
	Kind() Kind
	action()
}

// ImageTarget holds the parameters shared by the pattern-based steps
type ImageTarget struct {
	Pattern      string
	Timeout      time.Duration
	PollInterval time.Duration
	MoveDuration time.Duration
	// Confidence is the match threshold in [0,1]; nil uses the provider default
	Confidence *float64
}

// NewImageTarget returns a target with the default timings
func NewImageTarget(pattern string) ImageTarget {
	return ImageTarget{
		Pattern:      pattern,
		Timeout:      constants.DefaultStepTimeout,
		PollInterval: constants.DefaultPollInterval,
		MoveDuration: constants.DefaultMoveDuration,
	}
}

func (t ImageTarget) clone() ImageTarget {
	if t.Confidence != nil {
		c := *t.Confidence
		t.Confidence = &c
	}
	return t
}

func (t ImageTarget) validate() error {
	if strings.TrimSpace(t.Pattern) == "" {
		return invalidStep("pattern reference is required")
	}
	if t.Timeout < 0 || t.PollInterval < 0 || t.MoveDuration < 0 {
		return invalidStep("durations must not be negative")
	}
	if t.Confidence != nil && (*t.Confidence < 0 || *t.Confidence > 1) {
		return invalidStep("confidence %.3f outside [0,1]", *t.Confidence)
	}
	return nil
}

// ClickImage locates the pattern and clicks its center
type ClickImage struct{ ImageTarget }

// WaitAppear polls until the pattern is visible
type WaitAppear struct{ ImageTarget }

// WaitDisappear polls until the pattern is gone
type WaitDisappear struct{ ImageTarget }

// CallFunction runs another function of the program to completion
type CallFunction struct {
	Callee string
}

// SetVariable assigns a literal (or "+=n" increment) to a variable
type SetVariable struct {
	Name  string
	Type  vars.Type
	Value string
}

// IfCondition compares a variable against a literal
type IfCondition struct {
	Name  string
	Type  vars.Type
	Op    string
	Value string
}

// Unknown carries a document step whose op is not recognized.
// It is kept so a load/save cycle does not drop it; it always fails at run time.
type Unknown struct {
	Op     string
	Record StepRecord
}

func (ClickImage) Kind() Kind    { return KindClickImage }
func (WaitAppear) Kind() Kind    { return KindWaitAppear }
func (WaitDisappear) Kind() Kind { return KindWaitDisappear }
func (CallFunction) Kind() Kind  { return KindCallFunction }
func (SetVariable) Kind() Kind   { return KindSetVariable }
func (IfCondition) Kind() Kind   { return KindIfCondition }
func (u Unknown) Kind() Kind     { return Kind(u.Op) }

func (ClickImage) action()    {}
func (WaitAppear) action()    {}
func (WaitDisappear) action() {}
func (CallFunction) action()  {}
func (SetVariable) action()   {}
func (IfCondition) action()   {}
func (Unknown) action()       {}

// Target is a branch target as the user typed it. Empty means no override.
type Target string

// NoTarget leaves sequential advance in place
const NoTarget Target = ""

// At returns a target pointing at a 1-based step index
func At(index int) Target {
	return Target(strconv.Itoa(index))
}

// Index parses the target. Only positive integers are jumps; anything else
// (blank, non-numeric, zero or negative) reports false and means fall through.
func (t Target) Index() (int, bool) {
	s := strings.TrimSpace(string(t))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Step is one instruction of a function
type Step struct {
	Action        Action
	NextOnSuccess Target
	NextOnFailure Target

	// record the step was loaded from when its op used a legacy label
	origin *StepRecord
}

// Kind returns the step's operation kind
func (s Step) Kind() Kind {
	if s.Action == nil {
		return ""
	}
	return s.Action.Kind()
}

// Validate checks the fields required by the step's kind
func (s Step) Validate() error {
	switch a := s.Action.(type) {
	case nil:
		return invalidStep("step has no action")
	case ClickImage:
		return a.validate()
	case WaitAppear:
		return a.validate()
	case WaitDisappear:
		return a.validate()
	case CallFunction:
		if strings.TrimSpace(a.Callee) == "" {
			return invalidStep("callee function name is required")
		}
	case SetVariable:
		return nil
	case IfCondition:
		if a.Op != vars.OpEqual && a.Op != vars.OpNotEqual {
			return invalidStep("comparison %q must be == or !=", a.Op)
		}
	case Unknown:
		return invalidStep("unrecognized op %q", a.Op)
	}
	return nil
}

// Clone returns a deep copy of the step
func (s Step) Clone() Step {
	switch a := s.Action.(type) {
	case ClickImage:
		s.Action = ClickImage{a.clone()}
	case WaitAppear:
		s.Action = WaitAppear{a.clone()}
	case WaitDisappear:
		s.Action = WaitDisappear{a.clone()}
	case Unknown:
		a.Record = a.Record.clone()
		s.Action = a
	}
	return s
}

// Describe renders the step's parameters for listings
func (s Step) Describe() string {
	switch a := s.Action.(type) {
	case ClickImage:
		return describeImage(a.ImageTarget, true)
	case WaitAppear:
		return describeImage(a.ImageTarget, false)
	case WaitDisappear:
		return describeImage(a.ImageTarget, false)
	case CallFunction:
		return a.Callee
	case SetVariable:
		return string(a.Type) + " " + a.Name + " = " + a.Value
	case IfCondition:
		return "if " + string(a.Type) + " " + a.Name + " " + a.Op + " " + a.Value
	case Unknown:
		return "?"
	}
	return ""
}

func describeImage(t ImageTarget, click bool) string {
	var sb strings.Builder
	sb.WriteString(t.Pattern)
	if click {
		sb.WriteString(" move=" + t.MoveDuration.String())
	} else {
		sb.WriteString(" timeout=" + t.Timeout.String() + " poll=" + t.PollInterval.String())
	}
	if t.Confidence != nil {
		sb.WriteString(" conf=" + strconv.FormatFloat(*t.Confidence, 'f', -1, 64))
	}
	return sb.String()
}
