package core

import (
	"regexp"
	"strings"
)

var (
	githubProfile  = regexp.MustCompile(`(?i)^https?://(?:www\.)?github\.com/([^/?#]+)`)
	twitterProfile = regexp.MustCompile(`(?i)^https?://(?:www\.)?twitter\.com/([^/?#]+)`)
)

// NormalizeUserDoc reshapes a raw account profile into its canonical
// form: the github field becomes a bare username and the twitter field
// a bare handle, whatever shape users typed into them. Wrong-typed
// fields are dropped, non-object input yields an empty document, and
// the input is never mutated.
func NormalizeUserDoc(raw any) map[string]any {
	src, ok := raw.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	doc := make(map[string]any, len(src))
	for k, v := range src {
		doc[k] = v
	}

	if v, present := doc["github"]; present {
		if s, ok := v.(string); ok {
			doc["github"] = githubName(s)
		} else {
			delete(doc, "github")
		}
	}
	if v, present := doc["twitter"]; present {
		if s, ok := v.(string); ok {
			doc["twitter"] = twitterHandle(s)
		} else {
			delete(doc, "twitter")
		}
	}
	return doc
}

// userDocFields are the profile keys UserFromDoc lifts into typed
// slots; everything else lands in Metadata.
var userDocFields = map[string]struct{}{
	"_id": {}, "email": {}, "fullname": {}, "github": {},
	"homepage": {}, "name": {}, "twitter": {},
}

// UserFromDoc lifts a canonical profile into the typed record.
func UserFromDoc(doc map[string]any) *User {
	user := &User{
		Name:     stringOf(doc["name"]),
		Email:    stringOf(doc["email"]),
		FullName: stringOf(doc["fullname"]),
		Homepage: stringOf(doc["homepage"]),
		GitHub:   stringOf(doc["github"]),
		Twitter:  stringOf(doc["twitter"]),
		Metadata: map[string]any{},
	}
	if user.Name == "" {
		// Account documents are keyed org.couchdb.user:<name>.
		if id := stringOf(doc["_id"]); id != "" {
			user.Name = strings.TrimPrefix(id, "org.couchdb.user:")
		}
	}
	for key, value := range doc {
		if _, lifted := userDocFields[key]; !lifted {
			user.Metadata[key] = value
		}
	}
	return user
}

// NormalizeUser runs the full account pipeline, from raw response to
// typed record.
func NormalizeUser(raw any) *User {
	return UserFromDoc(NormalizeUserDoc(raw))
}

// githubName collapses a GitHub profile URL to its username; bare
// handles pass through.
func githubName(s string) string {
	s = strings.TrimSpace(s)
	if m := githubProfile.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.Trim(s, "/")
}

// twitterHandle collapses a Twitter profile URL or @-prefixed handle to
// the bare handle.
func twitterHandle(s string) string {
	s = strings.TrimSpace(s)
	if m := twitterProfile.FindStringSubmatch(s); m != nil {
		return strings.TrimPrefix(m[1], "@")
	}
	return strings.TrimLeft(s, "@")
}
