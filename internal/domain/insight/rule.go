package insight

// Severity classifies an insight.
type Severity string

// Severities.
const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeveritySuccess Severity = "success"
)

// Select chooses which groups a rule looks at.
type Select string

// Selectors.
const (
	// SelectFirst checks the first aggregate, usually the single "all" group.
	SelectFirst Select = "first"
	// SelectMin checks the group with the smallest metric.
	SelectMin Select = "min"
	// SelectMax checks the group with the largest metric.
	SelectMax Select = "max"
	// SelectEach fires once per matching group.
	SelectEach Select = "each"
	// SelectTrend checks last minus first of a dataset field.
	SelectTrend Select = "trend"
	// SelectAlways fires without looking at data.
	SelectAlways Select = "always"
)

// Op compares a value with a threshold.
type Op string

// Comparison operators.
const (
	OpLT Op = "lt"
	OpLE Op = "le"
	OpGT Op = "gt"
	OpGE Op = "ge"
)

func (o Op) holds(x, rhs float64) bool {
	switch o {
	case OpLT:
		return x < rhs
	case OpLE:
		return x <= rhs
	case OpGT:
		return x > rhs
	case OpGE:
		return x >= rhs
	}
	return false
}

// Rule is a declarative recommendation. Threshold names an entry in the
// thresholds table or is a numeric literal. When Of is set the right-hand
// side is threshold * Of for the same group. Message is a text/template
// rendered with Data.
type Rule struct {
	Name      string   `koanf:"name" yaml:"name" json:"name" validate:"required"`
	Severity  Severity `koanf:"severity" yaml:"severity" json:"severity" validate:"required,oneof=info warning success"`
	Select    Select   `koanf:"select" yaml:"select" json:"select" validate:"required,oneof=first min max each trend always"`
	Metric    string   `koanf:"metric" yaml:"metric" json:"metric,omitempty"`
	Field     string   `koanf:"field" yaml:"field" json:"field,omitempty"`
	Op        Op       `koanf:"op" yaml:"op" json:"op,omitempty" validate:"omitempty,oneof=lt le gt ge"`
	Threshold string   `koanf:"threshold" yaml:"threshold" json:"threshold,omitempty"`
	Of        string   `koanf:"of" yaml:"of" json:"of,omitempty"`
	Fallback  bool     `koanf:"fallback" yaml:"fallback" json:"fallback,omitempty"`
	Message   string   `koanf:"message" yaml:"message" json:"message" validate:"required"`
}

// Insight is one emitted recommendation.
type Insight struct {
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
	Group    string   `json:"group,omitempty" yaml:"group,omitempty"`
	Value    float64  `json:"value" yaml:"value"`
}

// Data is what a rule message template sees.
type Data struct {
	Rule      string
	Group     string
	Value     float64
	Threshold float64
	Count     int
}
