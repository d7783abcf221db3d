package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// CurrentConfigVersion is written into new profiler configurations.
const CurrentConfigVersion = 1.0

// ProfilerConfig is the declarative, persistable description of a
// rule-based profiler. It is the wire format between callers and the
// profiler and round-trips through ToJSONDict / ProfilerConfigFromJSONDict.
type ProfilerConfig struct {
	Name          string         `mapstructure:"name"`
	ConfigVersion float64        `mapstructure:"config_version"`
	Variables     map[string]any `mapstructure:"variables"`
	Rules         []*RuleConfig  `mapstructure:"rules"`
}

// RuleConfig composes one domain builder, N parameter builders and M
// expectation configuration builders.
type RuleConfig struct {
	Name                             string           `mapstructure:"name"`
	Variables                        map[string]any   `mapstructure:"variables"`
	DomainBuilder                    *BuilderConfig   `mapstructure:"domain_builder"`
	ParameterBuilders                []*BuilderConfig `mapstructure:"parameter_builders"`
	ExpectationConfigurationBuilders []*BuilderConfig `mapstructure:"expectation_configuration_builders"`
}

// BuilderConfig describes any builder: class_name selects the
// implementation, Options holds its remaining (flattened) settings.
// Parameter and expectation builders may nest evaluation and validation
// parameter builder configs.
type BuilderConfig struct {
	ClassName                         string           `mapstructure:"class_name"`
	Name                              string           `mapstructure:"name"`
	EvaluationParameterBuilderConfigs []*BuilderConfig `mapstructure:"evaluation_parameter_builder_configs"`
	ValidationParameterBuilderConfigs []*BuilderConfig `mapstructure:"validation_parameter_builder_configs"`
	Options                           map[string]any   `mapstructure:",remain"`
}

// Option returns an option value.
func (b *BuilderConfig) Option(key string) (any, bool) {
	v, ok := b.Options[key]
	return v, ok
}

// Clone returns a deep copy.
func (b *BuilderConfig) Clone() *BuilderConfig {
	if b == nil {
		return nil
	}
	out := &BuilderConfig{
		ClassName: b.ClassName,
		Name:      b.Name,
		Options:   deepCopyMap(b.Options),
	}
	out.EvaluationParameterBuilderConfigs = cloneBuilders(b.EvaluationParameterBuilderConfigs)
	out.ValidationParameterBuilderConfigs = cloneBuilders(b.ValidationParameterBuilderConfigs)
	return out
}

// ToJSONDict flattens the builder config into one JSON object.
func (b *BuilderConfig) ToJSONDict() map[string]any {
	out := map[string]any{}
	for k, v := range b.Options {
		out[k] = NormalizeJSON(v)
	}
	out["class_name"] = b.ClassName
	if b.Name != "" {
		out["name"] = b.Name
	}
	if b.EvaluationParameterBuilderConfigs != nil {
		out["evaluation_parameter_builder_configs"] = buildersToJSON(b.EvaluationParameterBuilderConfigs)
	}
	if b.ValidationParameterBuilderConfigs != nil {
		out["validation_parameter_builder_configs"] = buildersToJSON(b.ValidationParameterBuilderConfigs)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (b *BuilderConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.ToJSONDict())
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *BuilderConfig) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out, err := BuilderConfigFromJSONDict(m)
	if err != nil {
		return err
	}
	*b = *out
	return nil
}

// BuilderConfigFromJSONDict decodes a flattened builder config.
func BuilderConfigFromJSONDict(m map[string]any) (*BuilderConfig, error) {
	var out BuilderConfig
	if err := decodeConfig(m, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ToJSONDict returns the rule with plain JSON values.
func (r *RuleConfig) ToJSONDict() map[string]any {
	out := map[string]any{
		"name":                               r.Name,
		"variables":                          normalizedMap(r.Variables),
		"parameter_builders":                 buildersToJSON(r.ParameterBuilders),
		"expectation_configuration_builders": buildersToJSON(r.ExpectationConfigurationBuilders),
	}
	if r.DomainBuilder != nil {
		out["domain_builder"] = r.DomainBuilder.ToJSONDict()
	}
	return out
}

// Clone returns a deep copy.
func (r *RuleConfig) Clone() *RuleConfig {
	if r == nil {
		return nil
	}
	return &RuleConfig{
		Name:                             r.Name,
		Variables:                        deepCopyMap(r.Variables),
		DomainBuilder:                    r.DomainBuilder.Clone(),
		ParameterBuilders:                cloneBuilders(r.ParameterBuilders),
		ExpectationConfigurationBuilders: cloneBuilders(r.ExpectationConfigurationBuilders),
	}
}

// Rule returns the rule with the given name.
func (c *ProfilerConfig) Rule(name string) (*RuleConfig, bool) {
	for _, r := range c.Rules {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// RuleNames returns the rule names in declaration order.
func (c *ProfilerConfig) RuleNames() []string {
	out := make([]string, 0, len(c.Rules))
	for _, r := range c.Rules {
		out = append(out, r.Name)
	}
	return out
}

// Clone returns a deep copy.
func (c *ProfilerConfig) Clone() *ProfilerConfig {
	out := &ProfilerConfig{
		Name:          c.Name,
		ConfigVersion: c.ConfigVersion,
		Variables:     deepCopyMap(c.Variables),
	}
	for _, r := range c.Rules {
		out.Rules = append(out.Rules, r.Clone())
	}
	return out
}

// Validate checks structural well-formedness. Option values are validated
// by the builders themselves.
func (c *ProfilerConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, NewConfigError(ConfigInvalidOption, "profiler name is required"))
	}
	seen := map[string]bool{}
	for i, r := range c.Rules {
		if r == nil {
			errs = append(errs, NewConfigError(ConfigInvalidOption, "rule %d is empty", i))
			continue
		}
		if r.Name == "" {
			errs = append(errs, NewConfigError(ConfigInvalidOption, "rule %d has no name", i))
		}
		if seen[r.Name] {
			errs = append(errs, NewConfigError(ConfigInvalidOption, "duplicate rule name %q", r.Name))
		}
		seen[r.Name] = true
		if r.DomainBuilder == nil || r.DomainBuilder.ClassName == "" {
			errs = append(errs, NewConfigError(ConfigInvalidOption, "rule %q has no domain_builder class_name", r.Name))
		}
	}
	return errors.Join(errs...)
}

// ToJSONDict returns the configuration with plain JSON values.
func (c *ProfilerConfig) ToJSONDict() map[string]any {
	rules := make([]any, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, r.ToJSONDict())
	}
	return map[string]any{
		"name":           c.Name,
		"config_version": c.ConfigVersion,
		"variables":      normalizedMap(c.Variables),
		"rules":          rules,
	}
}

// MarshalJSON implements json.Marshaler.
func (c *ProfilerConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToJSONDict())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *ProfilerConfig) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out, err := ProfilerConfigFromJSONDict(m)
	if err != nil {
		return err
	}
	*c = *out
	return nil
}

// MarshalYAML renders the configuration through its JSON dictionary form.
func (c *ProfilerConfig) MarshalYAML() (any, error) {
	return c.ToJSONDict(), nil
}

// ProfilerConfigFromJSONDict rebuilds a configuration from its dictionary
// form (as produced by ToJSONDict, or decoded from JSON/YAML).
func ProfilerConfigFromJSONDict(m map[string]any) (*ProfilerConfig, error) {
	var out ProfilerConfig
	if err := decodeConfig(m, &out); err != nil {
		return nil, err
	}
	if out.ConfigVersion == 0 {
		out.ConfigVersion = CurrentConfigVersion
	}
	return &out, nil
}

func decodeConfig(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           output,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return &ConfigError{Kind: ConfigInvalidOption, Message: "decoding profiler configuration", Err: err}
	}
	return nil
}

func buildersToJSON(bs []*BuilderConfig) []any {
	out := make([]any, 0, len(bs))
	for _, b := range bs {
		if b == nil {
			continue
		}
		out = append(out, b.ToJSONDict())
	}
	return out
}

func cloneBuilders(bs []*BuilderConfig) []*BuilderConfig {
	if bs == nil {
		return nil
	}
	out := make([]*BuilderConfig, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.Clone())
	}
	return out
}

func normalizedMap(m map[string]any) map[string]any {
	if n, ok := NormalizeJSON(m).(map[string]any); ok {
		return n
	}
	return map[string]any{}
}

// deepCopyMap copies nested maps and slices. Scalars are shared.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// String renders the configuration as indented JSON.
func (c *ProfilerConfig) String() string {
	b, err := json.MarshalIndent(c.ToJSONDict(), "", "  ")
	if err != nil {
		return fmt.Sprintf("ProfilerConfig(%s)", c.Name)
	}
	return string(b)
}
