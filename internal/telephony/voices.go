package telephony

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed voices.yaml
var builtinVoices []byte

// Voice is a synthesized agent voice.
type Voice struct {
	Name string `yaml:"name" json:"name"`
	ID   string `yaml:"id" json:"id"`
}

// Voices resolves caller-facing voice names.
type Voices struct {
	def    Voice
	byName map[string]Voice
	order  []Voice
}

type voicesFile struct {
	Default string  `yaml:"default"`
	Voices  []Voice `yaml:"voices"`
}

// LoadVoices parses a catalog document. An empty document yields the
// built-in catalog.
func LoadVoices(doc []byte) (*Voices, error) {
	if len(doc) == 0 {
		doc = builtinVoices
	}
	var f voicesFile
	if err := yaml.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("parse voice catalog: %w", err)
	}
	if len(f.Voices) == 0 {
		return nil, fmt.Errorf("voice catalog is empty")
	}

	v := &Voices{byName: make(map[string]Voice, len(f.Voices))}
	for _, voice := range f.Voices {
		key := strings.ToLower(strings.TrimSpace(voice.Name))
		if key == "" || voice.ID == "" {
			return nil, fmt.Errorf("voice catalog entry needs name and id")
		}
		if _, dup := v.byName[key]; dup {
			return nil, fmt.Errorf("duplicate voice %q", voice.Name)
		}
		v.byName[key] = voice
		v.order = append(v.order, voice)
	}

	v.def = v.order[0]
	if f.Default != "" {
		d, ok := v.byName[strings.ToLower(f.Default)]
		if !ok {
			return nil, fmt.Errorf("default voice %q not in catalog", f.Default)
		}
		v.def = d
	}
	return v, nil
}

// DefaultVoices is the embedded catalog.
func DefaultVoices() *Voices {
	v, err := LoadVoices(nil)
	if err != nil {
		panic(err)
	}
	return v
}

// Resolve returns the named voice, or the default when name is empty or
// unknown. ok reports whether name matched.
func (v *Voices) Resolve(name string) (Voice, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if voice, ok := v.byName[key]; ok {
		return voice, true
	}
	return v.def, false
}

func (v *Voices) List() []Voice {
	out := make([]Voice, len(v.order))
	copy(out, v.order)
	return out
}
