package layout

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/forcelayout/pkg/errors"
	"github.com/matzehuels/forcelayout/pkg/graph"
	"github.com/matzehuels/forcelayout/pkg/placement"
)

// Config is the parameter record for one layout run. The zero value is not
// usable; start from [DefaultConfig]. A Config is read once when the run
// initialises; changing it afterwards has no effect on that run.
type Config struct {
	// Viewport hints. The engine only reports them.
	Fit     bool    `toml:"fit" json:"fit"`
	Padding float64 `toml:"padding" json:"padding" validate:"gte=0"`

	// BoundingBox is the placement region and gravity centre. Positions are
	// kept inside it.
	BoundingBox graph.Rect `toml:"bounding_box" json:"bounding_box"`

	// Randomize discards existing positions and draws new ones from a PCG
	// source seeded by Seed.
	Randomize bool              `toml:"randomize" json:"randomize"`
	Seed      uint64            `toml:"seed" json:"seed"`
	Placement placement.Options `toml:"placement" json:"placement"`
	// ConcentricAttribute names the node attribute ranking concentric
	// rings. Empty ranks by degree.
	ConcentricAttribute string `toml:"concentric_attribute" json:"concentric_attribute,omitempty"`

	ComponentSpacing float64 `toml:"component_spacing" json:"component_spacing" validate:"gte=0"`

	NodeRepulsion   Param `toml:"node_repulsion" json:"node_repulsion"`
	IdealEdgeLength Param `toml:"ideal_edge_length" json:"ideal_edge_length"`
	EdgeElasticity  Param `toml:"edge_elasticity" json:"edge_elasticity"`
	NestingFactor   Param `toml:"nesting_factor" json:"nesting_factor"`
	Gravity         Param `toml:"gravity" json:"gravity"`

	GravityCompound float64 `toml:"gravity_compound" json:"gravity_compound" validate:"gte=0"`
	NodeOverlap     float64 `toml:"node_overlap" json:"node_overlap" validate:"gte=0"`

	// Schedule and termination. The temperature floors at MinTemp, so a
	// run only converges once every move falls under ConvergenceThreshold.
	NumIter              int           `toml:"num_iter" json:"num_iter" validate:"gt=0"`
	InitialTemp          float64       `toml:"initial_temp" json:"initial_temp" validate:"gt=0"`
	CoolingFactor        float64       `toml:"cooling_factor" json:"cooling_factor" validate:"gt=0,lte=1"`
	MinTemp              float64       `toml:"min_temp" json:"min_temp" validate:"gt=0,ltfield=InitialTemp"`
	ConvergenceThreshold float64       `toml:"convergence_threshold" json:"convergence_threshold" validate:"gte=0,ltfield=MinTemp"`
	MaxDuration          time.Duration `toml:"max_duration" json:"max_duration" validate:"gte=0"`

	// Progress cadence. Never affects final positions.
	Animate            bool `toml:"animate" json:"animate"`
	AnimationThreshold int  `toml:"animation_threshold" json:"animation_threshold" validate:"gte=0"`
	Refresh            int  `toml:"refresh" json:"refresh" validate:"gte=1"`

	// Approximation and parallelism.
	Theta              float64 `toml:"theta" json:"theta" validate:"gte=0,lte=2"`
	BarnesHutThreshold int     `toml:"barnes_hut_threshold" json:"barnes_hut_threshold" validate:"gte=0"`
	Workers            int     `toml:"workers" json:"workers" validate:"gte=0"`
}

// DefaultConfig returns cose-like defaults for an 800×600 viewport.
func DefaultConfig() Config {
	return Config{
		Fit:         true,
		Padding:     30,
		BoundingBox: graph.Rect{W: 800, H: 600},
		Placement: placement.Options{
			Strategy:   placement.StrategyCircle,
			Concentric: placement.DefaultConcentric(),
		},
		ComponentSpacing:     40,
		NodeRepulsion:        Constant(2048),
		IdealEdgeLength:      Constant(32),
		EdgeElasticity:       Constant(0.45),
		NestingFactor:        Constant(1.2),
		Gravity:              Constant(0.05),
		GravityCompound:      0.5,
		NodeOverlap:          4,
		NumIter:              2500,
		InitialTemp:          1000,
		CoolingFactor:        0.99,
		MinTemp:              1,
		ConvergenceThreshold: 0.02,
		AnimationThreshold:   250,
		Refresh:              20,
		Theta:                0.8,
		BarnesHutThreshold:   500,
	}
}

// LoadConfigFile reads a TOML file over [DefaultConfig]. Keys absent from
// the file keep their defaults. The result is validated.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML over [DefaultConfig] and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, errors.New(errors.ErrCodeInvalidConfig, "unknown config keys: %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfigJSON decodes JSON over [DefaultConfig] and validates the
// result. Unknown fields are rejected. max_duration is in nanoseconds.
func ParseConfigJSON(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// =============================================================================
// Validation
// =============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every constraint and returns a single
// [*errors.ConfigError] listing all violations, or nil.
func (c Config) Validate() error {
	var vs []errors.Violation

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return errors.Wrap(errors.ErrCodeInternal, err, "validate config")
		}
		for _, fe := range verrs {
			vs = append(vs, errors.Violation{
				Field:      fieldPath(fe.Namespace()),
				Constraint: constraint(fe),
				Value:      fe.Value(),
			})
		}
	}

	box := c.BoundingBox
	if !(box.W > 0) || math.IsInf(box.W, 0) {
		vs = append(vs, errors.Violation{Field: "bounding_box.w", Constraint: "gt=0", Value: box.W})
	}
	if !(box.H > 0) || math.IsInf(box.H, 0) {
		vs = append(vs, errors.Violation{Field: "bounding_box.h", Constraint: "gt=0", Value: box.H})
	}
	if !finite(box.X) || !finite(box.Y) {
		vs = append(vs, errors.Violation{Field: "bounding_box", Constraint: "finite", Value: box})
	}
	if _, err := placement.ParseStrategy(string(c.Placement.Strategy)); err != nil {
		vs = append(vs, errors.Violation{Field: "placement.strategy", Constraint: "oneof=circle grid concentric random", Value: c.Placement.Strategy})
	}

	vs = append(vs, checkParam("node_repulsion", c.NodeRepulsion, false)...)
	vs = append(vs, checkParam("ideal_edge_length", c.IdealEdgeLength, false)...)
	vs = append(vs, checkParam("edge_elasticity", c.EdgeElasticity, false)...)
	vs = append(vs, checkParam("nesting_factor", c.NestingFactor, true)...)
	vs = append(vs, checkParam("gravity", c.Gravity, false)...)

	if len(vs) > 0 {
		return &errors.ConfigError{Violations: vs}
	}
	return nil
}

// checkParam validates constants and the fallback of attribute rules.
// Function params can only be checked when they run; the force model
// clamps their output instead.
func checkParam(field string, p Param, positive bool) []errors.Violation {
	check := func(name string, v float64) *errors.Violation {
		switch {
		case !finite(v):
			return &errors.Violation{Field: name, Constraint: "finite", Value: v}
		case positive && v <= 0:
			return &errors.Violation{Field: name, Constraint: "gt=0", Value: v}
		case !positive && v < 0:
			return &errors.Violation{Field: name, Constraint: "gte=0", Value: v}
		}
		return nil
	}
	var out []errors.Violation
	if p.IsConstant() {
		if v := check(field, p.Value()); v != nil {
			out = append(out, *v)
		}
		return out
	}
	if r, ok := p.Rule(); ok {
		if v := check(field+".default", r.Default); v != nil {
			out = append(out, *v)
		}
		if !finite(r.Scale) || !finite(r.Offset) {
			out = append(out, errors.Violation{Field: field, Constraint: "finite scale and offset", Value: r})
		}
	}
	return out
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	param := fe.Param()
	if strings.HasSuffix(fe.Tag(), "field") {
		param = toSnake(param)
	}
	return fe.Tag() + "=" + param
}

// toSnake converts a Go field name to its toml key.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// =============================================================================
// Fingerprint
// =============================================================================

// Fingerprint returns a canonical string of every setting that can change
// the final positions. Progress and parallelism settings are excluded. The
// second result is false when a param is an opaque function, in which case
// results must not be cached.
func (c Config) Fingerprint() (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "box=%g,%g,%g,%g;pad=%g;rand=%t;seed=%d;", c.BoundingBox.X, c.BoundingBox.Y, c.BoundingBox.W, c.BoundingBox.H, c.Padding, c.Randomize, c.Seed)
	pl := c.Placement
	fmt.Fprintf(&b, "place=%s,%d,%d,%+v,%q;", pl.Strategy, pl.Rows, pl.Cols, pl.Concentric, c.ConcentricAttribute)
	fmt.Fprintf(&b, "spacing=%g;gc=%g;overlap=%g;", c.ComponentSpacing, c.GravityCompound, c.NodeOverlap)
	fmt.Fprintf(&b, "iter=%d;t0=%g;cool=%g;tmin=%g;conv=%g;dur=%d;", c.NumIter, c.InitialTemp, c.CoolingFactor, c.MinTemp, c.ConvergenceThreshold, c.MaxDuration)
	fmt.Fprintf(&b, "theta=%g;bh=%d;", c.Theta, c.BarnesHutThreshold)
	for _, p := range []struct {
		name string
		p    Param
	}{
		{"rep", c.NodeRepulsion},
		{"len", c.IdealEdgeLength},
		{"el", c.EdgeElasticity},
		{"nest", c.NestingFactor},
		{"grav", c.Gravity},
	} {
		fp, ok := p.p.Fingerprint()
		if !ok {
			return "", false
		}
		fmt.Fprintf(&b, "%s=%s;", p.name, fp)
	}
	return b.String(), true
}
