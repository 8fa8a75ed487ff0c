package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeUserDoc_GitHub(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare handle", "indexzero", "indexzero"},
		{"profile url", "https://github.com/indexzero", "indexzero"},
		{"profile url with slash", "https://github.com/indexzero/", "indexzero"},
		{"http and www", "http://www.github.com/indexzero", "indexzero"},
		{"url with repo path", "https://github.com/indexzero/npm-registry", "indexzero"},
		{"whitespace", "  indexzero  ", "indexzero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NormalizeUserDoc(map[string]any{"github": tt.in})
			if doc["github"] != tt.want {
				t.Errorf("github = %q, want %q", doc["github"], tt.want)
			}
		})
	}
}

func TestNormalizeUserDoc_Twitter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare handle", "indexzero", "indexzero"},
		{"at-prefixed", "@indexzero", "indexzero"},
		{"double at", "@@indexzero", "indexzero"},
		{"profile url", "https://twitter.com/indexzero", "indexzero"},
		{"profile url with at", "https://twitter.com/@indexzero", "indexzero"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NormalizeUserDoc(map[string]any{"twitter": tt.in})
			if doc["twitter"] != tt.want {
				t.Errorf("twitter = %q, want %q", doc["twitter"], tt.want)
			}
		})
	}
}

func TestNormalizeUserDoc_WrongTypesDropped(t *testing.T) {
	doc := NormalizeUserDoc(map[string]any{
		"github":  42.0,
		"twitter": []any{"handle"},
		"email":   "zoe@example.com",
	})

	if _, present := doc["github"]; present {
		t.Errorf("github = %v, want dropped", doc["github"])
	}
	if _, present := doc["twitter"]; present {
		t.Errorf("twitter = %v, want dropped", doc["twitter"])
	}
	if doc["email"] != "zoe@example.com" {
		t.Errorf("email = %v, want untouched", doc["email"])
	}
}

func TestNormalizeUserDoc_NonObjectInput(t *testing.T) {
	for _, raw := range []any{nil, "zoe", []any{}, 42.0} {
		doc := NormalizeUserDoc(raw)
		if len(doc) != 0 {
			t.Errorf("NormalizeUserDoc(%v) = %v, want empty doc", raw, doc)
		}
	}
}

func TestNormalizeUserDoc_DoesNotMutateInput(t *testing.T) {
	raw := map[string]any{"github": "https://github.com/indexzero"}
	_ = NormalizeUserDoc(raw)
	if raw["github"] != "https://github.com/indexzero" {
		t.Errorf("input mutated: github = %v", raw["github"])
	}
}

func TestNormalizeUser(t *testing.T) {
	user := NormalizeUser(map[string]any{
		"_id":      "org.couchdb.user:indexzero",
		"name":     "indexzero",
		"email":    "charlie@example.com",
		"fullname": "Charlie Robbins",
		"homepage": "https://example.com/",
		"github":   "https://github.com/indexzero",
		"twitter":  "@indexzero",
		"fields":   map[string]any{"irc": "indexzero"},
	})

	want := &User{
		Name:     "indexzero",
		Email:    "charlie@example.com",
		FullName: "Charlie Robbins",
		Homepage: "https://example.com/",
		GitHub:   "indexzero",
		Twitter:  "indexzero",
		Metadata: map[string]any{
			"fields": map[string]any{"irc": "indexzero"},
		},
	}
	if diff := cmp.Diff(want, user); diff != "" {
		t.Errorf("NormalizeUser mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeUser_NameFromDocumentID(t *testing.T) {
	user := NormalizeUser(map[string]any{
		"_id":   "org.couchdb.user:indexzero",
		"email": "charlie@example.com",
	})
	if user.Name != "indexzero" {
		t.Errorf("Name = %q, want derived from _id", user.Name)
	}
}
