package domain

// UserRef identifies a caller in the ticketing system.
type UserRef struct {
	ID    string `json:"id" mapstructure:"id"`
	Name  string `json:"name" mapstructure:"name"`
	Email string `json:"email,omitempty" mapstructure:"email"`
}

// GroupRef identifies an assignment group in the ticketing system.
type GroupRef struct {
	ID   string `json:"id" mapstructure:"id"`
	Name string `json:"name" mapstructure:"name"`
}

// Label prefers the human name.
func (g GroupRef) Label() string {
	if g.Name != "" {
		return g.Name
	}
	return g.ID
}

// FallbackConfig is the static assignment configuration consulted when
// dynamic lookups miss or fail. It is read-only once built.
type FallbackConfig struct {
	DefaultCategory string
	CategoryGroups  map[string]GroupRef
	DefaultCaller   UserRef
	DefaultGroup    GroupRef
}

// GroupFor resolves the static group for a category. Only entries carrying
// a pre-resolved ID are usable as a static assignment; name-only entries are
// lookup keys, so they fall through to the default group.
func (f FallbackConfig) GroupFor(category string) GroupRef {
	if g, ok := f.CategoryGroups[category]; ok && g.ID != "" {
		return g
	}
	return f.DefaultGroup
}
