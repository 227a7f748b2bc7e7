package param

// Builder provides a fluent API for declaring parameters.
type Builder struct {
	param *Parameter
}

// New starts a parameter declaration with a 0-1 range.
func New(id uint32, name string) *Builder {
	return &Builder{
		param: &Parameter{
			ID:        id,
			Name:      name,
			ShortName: name,
			Min:       0,
			Max:       1,
		},
	}
}

// ShortName sets the abbreviated display name.
func (b *Builder) ShortName(name string) *Builder {
	b.param.ShortName = name
	return b
}

// Range sets the plain-value bounds.
func (b *Builder) Range(min, max float64) *Builder {
	b.param.Min = min
	b.param.Max = max
	return b
}

// Default sets the plain default value.
func (b *Builder) Default(value float64) *Builder {
	b.param.DefaultValue = value
	return b
}

// Unit sets the unit string shown after formatted values.
func (b *Builder) Unit(unit string) *Builder {
	b.param.Unit = unit
	return b
}

// ModRange sets the full-scale modulation excursion, making the parameter
// a routable modulation target.
func (b *Builder) ModRange(r float64) *Builder {
	b.param.ModRange = r
	return b
}

// Formatter sets custom display formatting and parsing.
func (b *Builder) Formatter(format func(float64) string, parse func(string) (float64, error)) *Builder {
	b.param.formatFunc = format
	b.param.parseFunc = parse
	return b
}

// Build finalizes the parameter, initialized to its default.
func (b *Builder) Build() *Parameter {
	b.param.SetValue(b.param.DefaultValue)
	return b.param
}
