// Package classify assigns campaign categories and voucher codes to message
// content with an ordered, first-match-wins rule list.
package classify

import "strings"

// Result is the outcome of classifying one message. Rule names the rule
// that fired ("template" for a template-id mapping, "" for Other).
type Result struct {
	Category    Category `json:"category"`
	VoucherCode string   `json:"voucher_code,omitempty"`
	Rule        string   `json:"rule,omitempty"`
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules     []Rule
	templates map[string]Category
	vouchers  map[Category]Rule
}

// New builds a Classifier over rules in the given order. templates maps
// provider template ids to categories and takes precedence over content.
func New(rules []Rule, templates map[string]Category) *Classifier {
	c := &Classifier{
		rules:     append([]Rule(nil), rules...),
		templates: make(map[string]Category, len(templates)),
		vouchers:  make(map[Category]Rule),
	}
	for id, cat := range templates {
		c.templates[strings.TrimSpace(id)] = cat
	}
	for _, r := range c.rules {
		if _, ok := c.vouchers[r.Category]; !ok && r.Voucher != nil {
			c.vouchers[r.Category] = r
		}
	}
	return c
}

// Default is a Classifier over DefaultRules with no template mappings.
func Default() *Classifier {
	return New(DefaultRules(), nil)
}

// Rules returns a copy of the ordered rule list.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Classify returns the category and voucher code for content. Empty
// content is Other. The result depends only on the arguments.
func (c *Classifier) Classify(content, templateID string) Result {
	if cat, ok := c.templates[strings.TrimSpace(templateID)]; ok && templateID != "" {
		res := Result{Category: cat, Rule: "template"}
		if r, ok := c.vouchers[cat]; ok {
			res.VoucherCode = r.ExtractVoucher(content)
		}
		return res
	}
	if strings.TrimSpace(content) == "" {
		return Result{Category: Other}
	}

	text := NewText(content)
	for _, r := range c.rules {
		if r.Match(text) {
			return Result{Category: r.Category, VoucherCode: r.ExtractVoucher(content), Rule: r.Name}
		}
	}
	if fallbackRule.Match(text) {
		return Result{Category: fallbackRule.Category, Rule: fallbackRule.Name}
	}
	return Result{Category: Other}
}
