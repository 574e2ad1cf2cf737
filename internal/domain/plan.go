package domain

type StepKind string

const (
	StepDownload   StepKind = "download"
	StepManipulate StepKind = "manipulate"
	StepTrim       StepKind = "trim"
	StepConcat     StepKind = "concat"
	StepConvert    StepKind = "convert"
	StepPublish    StepKind = "publish"
)

// Manipulations is the union of frame-level edits applied in one pass.
type Manipulations struct {
	DisableAudio bool      `json:"disableAudio,omitempty"`
	Rotate       int       `json:"rotate,omitempty"`
	Crop         *CropRect `json:"crop,omitempty"`
}

func (m Manipulations) Empty() bool {
	return !m.DisableAudio && m.Rotate == 0 && m.Crop == nil
}

// Step is one operation of a plan. Only the fields relevant to Kind are set.
type Step struct {
	Kind          StepKind       `json:"kind"`
	Source        string         `json:"source,omitempty"`
	Manipulations *Manipulations `json:"manipulations,omitempty"`
	Trims         []TrimRange    `json:"trims,omitempty"`
}

type Plan struct {
	Steps []Step `json:"steps"`
}

func (p Plan) Kinds() []StepKind {
	kinds := make([]StepKind, len(p.Steps))
	for i, s := range p.Steps {
		kinds[i] = s.Kind
	}
	return kinds
}

func (p Plan) Has(kind StepKind) bool {
	for _, s := range p.Steps {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// planRule contributes zero or more steps. Rules run in slice order, which
// is the precedence of the edit pipeline.
type planRule func(s JobSettings) []Step

var planRules = []planRule{
	manipulateRule,
	trimRule,
	concatRule,
	convertRule,
}

// BuildPlan derives the ordered steps for settings. It never touches I/O.
func BuildPlan(s JobSettings) Plan {
	var steps []Step
	for _, rule := range planRules {
		steps = append(steps, rule(s)...)
	}
	return Plan{Steps: steps}
}

// PlanFor builds the plan of a job, prepending a download when the input
// is remote.
func PlanFor(job *Job) Plan {
	p := BuildPlan(job.Settings)
	if job.IsRemote() {
		download := Step{Kind: StepDownload, Source: job.InputURL}
		p.Steps = append([]Step{download}, p.Steps...)
	}
	return p
}

// manipulateRule batches mute, rotate and crop into a single pass. The pass
// always stays separate from trimming so trims cut the edited source.
func manipulateRule(s JobSettings) []Step {
	var m Manipulations
	if s.Modified.Mute {
		m.DisableAudio = true
	}
	if s.Modified.Rotate && s.RotateValue != nil {
		m.Rotate, _ = NormalizeRotation(*s.RotateValue)
	}
	if s.Modified.Crop && s.Crop != nil {
		c := *s.Crop
		m.Crop = &c
	}
	if m.Empty() {
		return nil
	}
	return []Step{{Kind: StepManipulate, Manipulations: &m}}
}

func trimRule(s JobSettings) []Step {
	if !s.Modified.Trim || len(s.Trims) == 0 {
		return nil
	}
	trims := make([]TrimRange, len(s.Trims))
	copy(trims, s.Trims)
	return []Step{{Kind: StepTrim, Trims: trims}}
}

// concatRule applies when trim yields more than one output, one per range.
func concatRule(s JobSettings) []Step {
	if !s.Modified.Trim || len(s.Trims) < 2 || s.TrimMode != TrimModeSingle {
		return nil
	}
	return []Step{{Kind: StepConcat}}
}

func convertRule(JobSettings) []Step {
	return []Step{{Kind: StepConvert}}
}
