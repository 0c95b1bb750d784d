package assessment

// Kind identifies which input widget a question uses.
type Kind string

// Question kinds.
const (
	KindSingleChoice Kind = "single_choice"
	KindMultiChoice  Kind = "multi_choice"
	KindSlider       Kind = "slider"
)

// DefaultExclusiveOption is the conventional sentinel id for "none of the above".
const DefaultExclusiveOption = "none"

// Option is one selectable answer of a choice question.
type Option struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Value       string `json:"value,omitempty" yaml:"value,omitempty"` // scoring/storage value, defaults to ID
}

// StoredValue returns the value used for scoring and storage.
func (o Option) StoredValue() string {
	if o.Value == "" {
		return o.ID
	}
	return o.Value
}

// Range bounds a slider question. Unit is a display suffix such as "years".
type Range struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step,omitempty" yaml:"step,omitempty"`
	Unit string  `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Question is one step of an assessment.
type Question struct {
	ID         string   `json:"id" yaml:"id"`
	Kind       Kind     `json:"kind" yaml:"kind"`
	Prompt     string   `json:"prompt" yaml:"prompt"`
	Subtitle   string   `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	HelperText string   `json:"helper_text,omitempty" yaml:"helper_text,omitempty"`
	Options    []Option `json:"options,omitempty" yaml:"options,omitempty"`
	Range      *Range   `json:"range,omitempty" yaml:"range,omitempty"`

	// Exclusive names the multi-choice option that clears every other selection.
	// Empty means DefaultExclusiveOption when the question has such an option.
	Exclusive string `json:"exclusive,omitempty" yaml:"exclusive,omitempty"`
}

// Option looks up an option by id.
func (q Question) Option(id string) (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// ExclusiveOption returns the sentinel option id for a multi-choice question, or "".
func (q Question) ExclusiveOption() string {
	if q.Kind != KindMultiChoice {
		return ""
	}
	if q.Exclusive != "" {
		return q.Exclusive
	}
	if _, ok := q.Option(DefaultExclusiveOption); ok {
		return DefaultExclusiveOption
	}
	return ""
}

// Definition is the static description of one assessment. It is immutable once
// loaded; lifecycle hooks are attached by whoever runs it.
type Definition struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title" yaml:"title"`
	Description   string     `json:"description,omitempty" yaml:"description,omitempty"`
	Questions     []Question `json:"questions" yaml:"questions"`
	CompleteRoute string     `json:"complete_route,omitempty" yaml:"complete_route,omitempty"`
	BackRoute     string     `json:"back_route,omitempty" yaml:"back_route,omitempty"`
}

// Len returns the number of questions.
func (d *Definition) Len() int {
	return len(d.Questions)
}

// Question looks up a question by id.
func (d *Definition) Question(id string) (Question, int, bool) {
	for i, q := range d.Questions {
		if q.ID == id {
			return q, i, true
		}
	}
	return Question{}, -1, false
}
