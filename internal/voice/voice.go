// Package voice binds podcast speakers to synthesis voices.
package voice

import (
	"log/slog"
	"strings"
)

type Gender string

const (
	Male   Gender = "male"
	Female Gender = "female"
)

// ParseGender normalises a gender string. Unknown values map to Male, whose
// pool is also the lookup fallback.
func ParseGender(s string) Gender {
	if Gender(strings.ToLower(strings.TrimSpace(s))) == Female {
		return Female
	}
	return Male
}

// SpeakerProfile is one named podcast participant.
type SpeakerProfile struct {
	Name   string
	Gender Gender
}

// Profiles zips parallel name and gender lists. Callers validate lengths.
func Profiles(names, genders []string) []SpeakerProfile {
	n := min(len(names), len(genders))
	out := make([]SpeakerProfile, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, SpeakerProfile{Name: names[i], Gender: ParseGender(genders[i])})
	}
	return out
}

// Pools holds the ordered voice identifiers available per gender.
type Pools struct {
	Male     []string
	Female   []string
	Fallback string
}

// DefaultPools are the OpenAI speech voices split by gender presentation.
func DefaultPools() Pools {
	return Pools{
		Male:     []string{"onyx", "echo", "fable", "nova", "shimmer"},
		Female:   []string{"nova", "shimmer", "alloy", "echo", "fable"},
		Fallback: "alloy",
	}
}

func (p Pools) pool(g Gender) []string {
	if g == Female && len(p.Female) > 0 {
		return p.Female
	}
	return p.Male
}

// Map is a speaker to voice binding computed once per request.
type Map struct {
	voices   map[string]string
	order    []string
	fallback string
}

// Voice returns the bound voice for name, or the fallback voice when the
// speaker was never assigned.
func (m Map) Voice(name string) (string, bool) {
	v, ok := m.voices[name]
	if !ok {
		return m.fallback, false
	}
	return v, true
}

// Speakers returns the assigned speaker names in first-appearance order.
func (m Map) Speakers() []string {
	return append([]string(nil), m.order...)
}

func (m Map) Len() int { return len(m.order) }

// Equal reports whether two maps bind the same speakers to the same voices in
// the same order.
func (m Map) Equal(other Map) bool {
	if len(m.order) != len(other.order) || m.fallback != other.fallback {
		return false
	}
	for i, name := range m.order {
		if other.order[i] != name || other.voices[name] != m.voices[name] {
			return false
		}
	}
	return true
}

// Assigner picks voices deterministically: each speaker gets the first voice
// of its gender pool not already taken by an earlier speaker. When a pool is
// exhausted the pool's first voice is reused.
type Assigner struct {
	pools  Pools
	logger *slog.Logger
}

func NewAssigner(pools Pools, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assigner{pools: pools, logger: logger.With(slog.String("component", "voice-assigner"))}
}

// Assign builds the voice map for speakers. Repeated names keep their first
// profile.
func (a *Assigner) Assign(speakers []SpeakerProfile) Map {
	m := Map{voices: make(map[string]string, len(speakers)), fallback: a.pools.Fallback}
	used := make(map[string]struct{}, len(speakers))

	for _, sp := range speakers {
		if _, dup := m.voices[sp.Name]; dup {
			continue
		}
		pool := a.pools.pool(sp.Gender)
		if len(pool) == 0 {
			m.voices[sp.Name] = a.pools.Fallback
			m.order = append(m.order, sp.Name)
			continue
		}
		selected := ""
		for _, v := range pool {
			if _, taken := used[v]; !taken {
				selected = v
				break
			}
		}
		if selected == "" {
			selected = pool[0]
			a.logger.Warn("voice pool exhausted, reusing voice",
				slog.String("speaker", sp.Name),
				slog.String("gender", string(sp.Gender)),
				slog.String("voice", selected))
		}
		used[selected] = struct{}{}
		m.voices[sp.Name] = selected
		m.order = append(m.order, sp.Name)
		a.logger.Debug("assigned voice",
			slog.String("speaker", sp.Name),
			slog.String("gender", string(sp.Gender)),
			slog.String("voice", selected))
	}
	return m
}

var (
	defaultMaleNames   = []string{"David", "Michael", "John", "Robert", "James"}
	defaultFemaleNames = []string{"Emma", "Sarah", "Jennifer", "Maria", "Lisa"}
)

// DefaultNames invents host names for a gender list, picking by position from
// a fixed per-gender name list.
func DefaultNames(genders []string) []string {
	names := make([]string, 0, len(genders))
	for i, g := range genders {
		pool := defaultMaleNames
		if ParseGender(g) == Female {
			pool = defaultFemaleNames
		}
		names = append(names, pool[i%len(pool)])
	}
	return names
}
