package telephony

import "testing"

func TestDefaultVoices_Resolve(t *testing.T) {
	v := DefaultVoices()

	got, ok := v.Resolve("Emily-British")
	if !ok || got.ID != "9497013c-c348-485b-9ede-9b6e246c9578" {
		t.Fatalf("unexpected voice %+v ok=%v", got, ok)
	}

	got, ok = v.Resolve("nobody")
	if ok || got.Name != "david" {
		t.Fatalf("expected default voice, got %+v ok=%v", got, ok)
	}
	if len(v.List()) != 10 {
		t.Fatalf("expected 10 voices, got %d", len(v.List()))
	}
}

func TestLoadVoices_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty list":      "voices: []\n",
		"missing id":      "voices:\n  - name: a\n",
		"duplicate":       "voices:\n  - {name: a, id: '1'}\n  - {name: A, id: '2'}\n",
		"unknown default": "default: zed\nvoices:\n  - {name: a, id: '1'}\n",
		"not yaml":        "voices: [",
	}
	for name, doc := range cases {
		if _, err := LoadVoices([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
