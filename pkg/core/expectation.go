package core

// ExpectationConfiguration is a named validation rule with bound kwargs.
type ExpectationConfiguration struct {
	ExpectationType string         `json:"expectation_type"`
	Kwargs          map[string]any `json:"kwargs"`
	Meta            map[string]any `json:"meta"`
}

// ToJSONDict renders the configuration with plain JSON values.
func (e *ExpectationConfiguration) ToJSONDict() map[string]any {
	kwargs := NormalizeJSON(e.Kwargs)
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	meta := NormalizeJSON(e.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"expectation_type": e.ExpectationType,
		"kwargs":           kwargs,
		"meta":             meta,
	}
}

// Column returns the "column" kwarg, if any.
func (e *ExpectationConfiguration) Column() string {
	s, _ := e.Kwargs["column"].(string)
	return s
}

// ProfilerDetails returns meta.profiler_details, if any.
func (e *ExpectationConfiguration) ProfilerDetails() map[string]any {
	d, _ := e.Meta["profiler_details"].(map[string]any)
	return d
}

// ExpectationConfigurationFromJSONDict rebuilds a configuration from its
// JSON dictionary form.
func ExpectationConfigurationFromJSONDict(m map[string]any) *ExpectationConfiguration {
	e := &ExpectationConfiguration{Kwargs: map[string]any{}, Meta: map[string]any{}}
	e.ExpectationType, _ = m["expectation_type"].(string)
	if kw, ok := m["kwargs"].(map[string]any); ok {
		e.Kwargs = kw
	}
	if meta, ok := m["meta"].(map[string]any); ok {
		e.Meta = meta
	}
	return e
}

// ExpectationSuite is an ordered, append-only list of expectations.
type ExpectationSuite struct {
	Name         string                      `json:"expectation_suite_name"`
	Expectations []*ExpectationConfiguration `json:"expectations"`
	Meta         map[string]any              `json:"meta"`
}

// NewExpectationSuite creates an empty suite.
func NewExpectationSuite(name string) *ExpectationSuite {
	return &ExpectationSuite{Name: name, Meta: map[string]any{}}
}

// AddExpectation appends a configuration.
func (s *ExpectationSuite) AddExpectation(e *ExpectationConfiguration) {
	s.Expectations = append(s.Expectations, e)
}

// AddCitation appends a citation to meta.citations.
func (s *ExpectationSuite) AddCitation(citation map[string]any) {
	if s.Meta == nil {
		s.Meta = map[string]any{}
	}
	cites, _ := s.Meta["citations"].([]any)
	s.Meta["citations"] = append(cites, citation)
}

// ToJSONDict renders the suite with plain JSON values.
func (s *ExpectationSuite) ToJSONDict() map[string]any {
	exps := make([]any, 0, len(s.Expectations))
	for _, e := range s.Expectations {
		exps = append(exps, e.ToJSONDict())
	}
	meta := NormalizeJSON(s.Meta)
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"expectation_suite_name": s.Name,
		"expectations":           exps,
		"meta":                   meta,
	}
}
