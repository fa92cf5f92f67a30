package feed

import (
	"fmt"
	"regexp"
)

// Filterer holds a compiled include/exclude pattern pair. Both patterns are case-insensitive
// and are searched in an item's title and content. A nil Filterer matches everything.
type Filterer struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

func NewFilterer(include, exclude string) (*Filterer, error) {
	f := &Filterer{}

	var err error
	if f.include, err = compilePattern(include); err != nil {
		return nil, fmt.Errorf("invalid filter pattern %q: %w", include, err)
	}
	if f.exclude, err = compilePattern(exclude); err != nil {
		return nil, fmt.Errorf("invalid exclude pattern %q: %w", exclude, err)
	}

	return f, nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + pattern)
}

// Empty reports whether no pattern is configured.
func (f *Filterer) Empty() bool {
	return f == nil || (f.include == nil && f.exclude == nil)
}

func (f *Filterer) Matches(title, content string) bool {
	if f == nil {
		return true
	}
	if f.include != nil && !f.include.MatchString(title) && !f.include.MatchString(content) {
		return false
	}
	if f.exclude != nil && (f.exclude.MatchString(title) || f.exclude.MatchString(content)) {
		return false
	}
	return true
}

// Run keeps the items passing the filter, preserving their order.
func (f *Filterer) Run(items []*Item) []*Item {
	if f.Empty() {
		return items
	}

	filtered := make([]*Item, 0, len(items))
	for _, item := range items {
		if f.Matches(item.Title(), item.Content()) {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
