package sanitize

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	policiesOnce      sync.Once
	strictPolicy      *bluemonday.Policy
	descriptionPolicy *bluemonday.Policy
)

// Name strips every tag from short labels such as reward names.
func Name(input string) string {
	return strings.TrimSpace(policies().strict.Sanitize(strings.TrimSpace(input)))
}

// Description keeps basic formatting for admin-authored reward and promo
// descriptions; scripts, styles and event handlers are removed.
func Description(input string) string {
	value := strings.TrimSpace(input)
	if value == "" {
		return ""
	}
	return policies().description.Sanitize(value)
}

func DescriptionPtr(input *string) *string {
	if input == nil {
		return nil
	}
	value := Description(*input)
	return &value
}

// Identifiers cleans product and category id lists; blanks are dropped.
func Identifiers(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	out := make([]string, 0, len(values))
	for _, item := range values {
		cleaned := Name(item)
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

type policySet struct {
	strict      *bluemonday.Policy
	description *bluemonday.Policy
}

func policies() policySet {
	policiesOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()

		policy := bluemonday.NewPolicy()
		policy.AllowElements("p", "br", "strong", "em", "ul", "ol", "li")
		policy.AllowStandardURLs()
		policy.AllowAttrs("href").OnElements("a")
		policy.RequireNoFollowOnLinks(true)
		descriptionPolicy = policy
	})

	return policySet{strict: strictPolicy, description: descriptionPolicy}
}
