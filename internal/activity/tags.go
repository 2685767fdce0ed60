package activity

import (
	"regexp"
	"slices"
	"strings"

	"schedlog/internal/store"
)

var hashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_]{1,32})`)

const maxTags = 20

// Tags returns the distinct lower-cased hashtags in a record's title and
// notes, in order of first appearance.
func Tags(rec store.ActivityRecord) []string {
	matches := hashtagRe.FindAllStringSubmatch(rec.Title+"\n"+rec.Notes, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		t := strings.ToLower(m[1])
		if slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
		if len(out) >= maxTags {
			break
		}
	}
	return out
}

// FilterByTag keeps the records carrying tag. An empty tag keeps all.
func FilterByTag(recs []store.ActivityRecord, tag string) []store.ActivityRecord {
	tag = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
	if tag == "" {
		return recs
	}
	out := make([]store.ActivityRecord, 0, len(recs))
	for _, r := range recs {
		if slices.Contains(Tags(r), tag) {
			out = append(out, r)
		}
	}
	return out
}
