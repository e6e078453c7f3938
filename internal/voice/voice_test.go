package voice

import "testing"

func TestAssignDistinctVoicesPerGender(t *testing.T) {
	a := NewAssigner(DefaultPools(), nil)
	m := a.Assign(Profiles([]string{"David", "Emma"}, []string{"male", "female"}))

	if v, _ := m.Voice("David"); v != "onyx" {
		t.Fatalf("expected David->onyx, got %s", v)
	}
	if v, _ := m.Voice("Emma"); v != "nova" {
		t.Fatalf("expected Emma->nova, got %s", v)
	}
}

func TestAssignSkipsVoicesUsedByOtherGender(t *testing.T) {
	a := NewAssigner(DefaultPools(), nil)
	m := a.Assign(Profiles(
		[]string{"Emma", "Sarah", "David"},
		[]string{"female", "female", "male"},
	))
	// Emma takes nova, Sarah takes shimmer, David takes the first free male voice.
	want := map[string]string{"Emma": "nova", "Sarah": "shimmer", "David": "onyx"}
	for name, voice := range want {
		if got, _ := m.Voice(name); got != voice {
			t.Fatalf("%s: want %s got %s", name, voice, got)
		}
	}
}

func TestAssignReusesFirstVoiceWhenPoolExhausted(t *testing.T) {
	pools := Pools{Male: []string{"onyx", "echo"}, Female: []string{"nova"}, Fallback: "alloy"}
	a := NewAssigner(pools, nil)
	m := a.Assign(Profiles(
		[]string{"A", "B", "C", "D", "E"},
		[]string{"male", "male", "male", "female", "female"},
	))
	want := []string{"onyx", "echo", "onyx", "nova", "nova"}
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		if got, _ := m.Voice(name); got != want[i] {
			t.Fatalf("%s: want %s got %s", name, want[i], got)
		}
	}
}

func TestAssignUnknownGenderUsesMalePool(t *testing.T) {
	a := NewAssigner(DefaultPools(), nil)
	m := a.Assign(Profiles([]string{"Robin"}, []string{"nonbinary"}))
	if v, _ := m.Voice("Robin"); v != "onyx" {
		t.Fatalf("expected male pool fallback, got %s", v)
	}
}

func TestAssignGenderIsCaseInsensitive(t *testing.T) {
	a := NewAssigner(DefaultPools(), nil)
	m := a.Assign(Profiles([]string{"Emma"}, []string{" Female "}))
	if v, _ := m.Voice("Emma"); v != "nova" {
		t.Fatalf("expected female pool, got %s", v)
	}
}

func TestAssignKeepsFirstProfileForDuplicateNames(t *testing.T) {
	a := NewAssigner(DefaultPools(), nil)
	m := a.Assign(Profiles([]string{"Sam", "Sam"}, []string{"female", "male"}))
	if m.Len() != 1 {
		t.Fatalf("expected 1 speaker, got %d", m.Len())
	}
	if v, _ := m.Voice("Sam"); v != "nova" {
		t.Fatalf("expected first profile to win, got %s", v)
	}
}

func TestAssignIsDeterministic(t *testing.T) {
	names := []string{"David", "Emma", "Michael", "Sarah"}
	genders := []string{"male", "female", "male", "female"}
	first := NewAssigner(DefaultPools(), nil).Assign(Profiles(names, genders))
	second := NewAssigner(DefaultPools(), nil).Assign(Profiles(names, genders))
	if !first.Equal(second) {
		t.Fatal("expected identical voice maps across runs")
	}
	if got := first.Speakers(); len(got) != 4 || got[2] != "Michael" {
		t.Fatalf("unexpected speaker order: %v", got)
	}
}

func TestVoiceFallbackForUnknownSpeaker(t *testing.T) {
	m := NewAssigner(DefaultPools(), nil).Assign(nil)
	v, ok := m.Voice("Stranger")
	if ok || v != "alloy" {
		t.Fatalf("expected fallback alloy, got %s (%v)", v, ok)
	}
}

func TestDefaultNames(t *testing.T) {
	got := DefaultNames([]string{"male", "female", "female"})
	want := []string{"David", "Sarah", "Jennifer"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("name %d: want %s got %s", i, want[i], got[i])
		}
	}
}
