// request.go defines the immutable dispatch request and its tag set.

package dispatch

import (
	"maps"
	"slices"
)

// TagSet is a set of report tags. Order is irrelevant.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from tags, collapsing duplicates and dropping
// empty strings.
func NewTagSet(tags ...string) TagSet {
	set := make(TagSet, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		set[tag] = struct{}{}
	}
	return set
}

// Has reports whether tag is in the set.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Slice returns the tags in sorted order.
func (s TagSet) Slice() []string {
	return slices.Sorted(maps.Keys(s))
}

// Union returns a new set holding the tags of s and other.
func (s TagSet) Union(other TagSet) TagSet {
	out := make(TagSet, len(s)+len(other))
	for tag := range s {
		out[tag] = struct{}{}
	}
	for tag := range other {
		out[tag] = struct{}{}
	}
	return out
}

// clone copies the set, dropping empty strings a caller may have inserted directly.
func (s TagSet) clone() TagSet {
	out := make(TagSet, len(s))
	for tag := range s {
		if tag != "" {
			out[tag] = struct{}{}
		}
	}
	return out
}

// Request is a single failure to report together with its custom tags and data.
// Build it with NewRequest; the constructor copies tags and data so later
// changes by the caller do not leak into a queued send.
type Request struct {
	failure any
	tags    TagSet
	data    map[string]string
}

// NewRequest builds a Request. Nil tags and data become empty collections.
func NewRequest(failure any, tags TagSet, data map[string]string) Request {
	var copied map[string]string
	if data == nil {
		copied = map[string]string{}
	} else {
		copied = maps.Clone(data)
	}
	return Request{
		failure: failure,
		tags:    tags.clone(),
		data:    copied,
	}
}

// Failure returns the value being reported.
func (r Request) Failure() any {
	return r.failure
}

// Tags returns a copy of the request tags.
func (r Request) Tags() TagSet {
	return r.tags.clone()
}

// Data returns a copy of the request's custom data.
func (r Request) Data() map[string]string {
	if r.data == nil {
		return map[string]string{}
	}
	return maps.Clone(r.data)
}
