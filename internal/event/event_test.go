package event

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const heroEvent = `{
  "id": 1201,
  "event_type": "Shotgun_Shot_Change",
  "attribute_name": "tags",
  "entity": {"type": "Shot", "id": 9502, "name": "ep01_sh010"},
  "project": {"type": "Project", "id": 5, "name": "demo"},
  "meta": {
    "type": "attribute_change",
    "attribute_name": "tags",
    "entity_type": "Shot",
    "added": [{"type": "Tag", "id": 11, "name": "sghs:hero"}, {"type": "Tag", "id": 12, "name": "other:foo"}],
    "removed": [{"type": "Tag", "id": 13, "name": "sghs:old"}]
  },
  "created_at": "2024-03-05T14:07:09Z"
}`

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(heroEvent))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	want := &ChangeEvent{
		EntityID:    9502,
		EntityName:  "ep01_sh010",
		ProjectID:   int64p(5),
		ProjectName: strp("demo"),
		CreatedAt:   time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
		MetaType:    MetaAttributeChange,
		AddedTags:   []string{"sghs:hero", "other:foo"},
		RemovedTags: []string{"sghs:old"},
	}
	if diff := cmp.Diff(want, ev, cmpopts.IgnoreUnexported(ChangeEvent{})); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}
	data, err := ev.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(data) != heroEvent {
		t.Errorf("MarshalJSON() = %s, want the original bytes", data)
	}
}

func TestDecodeNullProject(t *testing.T) {
	ev, err := Decode([]byte(`{"entity":{"id":7,"name":"sh070"},"project":null,"meta":{"type":"attribute_change","added":[],"removed":[]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if ev.HasProject() {
		t.Error("expected no project")
	}
	if len(ev.AddedTags) != 0 || len(ev.RemovedTags) != 0 {
		t.Errorf("expected empty tag lists, got %v %v", ev.AddedTags, ev.RemovedTags)
	}
}

func TestDecodeTimestampLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	for _, ts := range []string{"2024-03-05T14:07:09Z", "2024-03-05 14:07:09", "2024-03-05T14:07:09"} {
		t.Run(ts, func(t *testing.T) {
			ev, err := Decode([]byte(`{"entity":{"id":1},"meta":{"type":"attribute_change"},"created_at":"` + ts + `"}`))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !ev.CreatedAt.Equal(want) {
				t.Errorf("CreatedAt = %v, want %v", ev.CreatedAt, want)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", `{`},
		{"missing entity", `{"meta":{"type":"attribute_change"}}`},
		{"entity without id", `{"entity":{"name":"sh010"},"meta":{"type":"attribute_change"}}`},
		{"missing meta", `{"entity":{"id":1}}`},
		{"bad timestamp", `{"entity":{"id":1},"meta":{"type":"x"},"created_at":"yesterday"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("expected ErrMalformedEvent, got %v", err)
			}
		})
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	built := &ChangeEvent{
		EntityID:    9502,
		EntityName:  "ep01_sh010",
		ProjectID:   int64p(5),
		ProjectName: strp("demo"),
		CreatedAt:   time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC),
		MetaType:    MetaAttributeChange,
		AddedTags:   []string{"sghs:hero"},
		RemovedTags: []string{},
	}

	data, err := built.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(built, got, cmpopts.IgnoreUnexported(ChangeEvent{})); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	again, _ := got.MarshalJSON()
	if string(again) != string(data) {
		t.Error("decoded event should marshal to its raw bytes")
	}
}

func TestClassify(t *testing.T) {
	base := func() *ChangeEvent {
		return &ChangeEvent{EntityID: 9502, ProjectID: int64p(5), MetaType: MetaAttributeChange}
	}

	tests := []struct {
		name    string
		mutate  func(*ChangeEvent)
		allowed []int64
		want    Verdict
	}{
		{"allow-listed", nil, []int64{5}, InScope},
		{"empty allow-list allows all", nil, nil, InScope},
		{"not allow-listed", nil, []int64{4, 6}, OutOfScope(ReasonNotAllowListed)},
		{"no project", func(e *ChangeEvent) { e.ProjectID = nil }, []int64{5}, OutOfScope(ReasonNoProject)},
		{"no project with empty allow-list", func(e *ChangeEvent) { e.ProjectID = nil }, nil, OutOfScope(ReasonNoProject)},
		{"not attribute change", func(e *ChangeEvent) { e.MetaType = "entity_retirement" }, nil, OutOfScope(ReasonNotTagChange)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base()
			if tt.mutate != nil {
				tt.mutate(ev)
			}
			if got := Classify(ev, tt.allowed); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
