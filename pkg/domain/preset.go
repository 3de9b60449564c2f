package domain

// Preset is a named agent configuration.
// An empty Owner marks a system preset, visible to every caller and immutable.
type Preset struct {
	AgentID      string   `json:"agent_id" yaml:"agent_id" mapstructure:"agent_id"`
	Owner        string   `json:"owner,omitempty" yaml:"owner,omitempty" mapstructure:"owner"`
	Name         string   `json:"name" yaml:"name" mapstructure:"name"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt" mapstructure:"system_prompt"`
	AllowedTools []string `json:"allowed_tools" yaml:"allowed_tools" mapstructure:"allowed_tools"`
}

// IsSystem reports whether the preset belongs to nobody.
func (p Preset) IsSystem() bool {
	return p.Owner == ""
}

// VisibleTo reports whether caller may use the preset.
func (p Preset) VisibleTo(caller string) bool {
	return p.IsSystem() || p.Owner == caller
}

// Clone returns a copy that shares no slices with p.
func (p Preset) Clone() Preset {
	c := p
	if p.AllowedTools != nil {
		c.AllowedTools = append([]string(nil), p.AllowedTools...)
	}
	return c
}
