package classify

import (
	"context"
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/store"
)

//go:embed taxonomy.yaml
var defaultDefinition []byte

// Definition is the on-disk taxonomy: the campaign types to seed and the
// template-id mappings.
type Definition struct {
	CampaignTypes []TypeDef         `yaml:"campaign_types"`
	Templates     map[string]string `yaml:"templates"`
}

// TypeDef is one campaign type in a Definition.
type TypeDef struct {
	Name             string                 `yaml:"name"`
	ConversionIntent model.ConversionIntent `yaml:"conversion_intent"`
	Aliases          []string               `yaml:"aliases"`
}

// CategoryKey derives the category key of a campaign type name.
func CategoryKey(name string) Category {
	k := strings.ToLower(strings.TrimSpace(name))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	return Category(k)
}

// ParseDefinition decodes and validates a taxonomy document.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, eris.Wrap(err, "classify: parse taxonomy")
	}
	seen := make(map[Category]bool)
	for i, td := range def.CampaignTypes {
		if strings.TrimSpace(td.Name) == "" {
			return Definition{}, eris.Errorf("classify: taxonomy entry %d has no name", i)
		}
		if td.ConversionIntent == "" {
			def.CampaignTypes[i].ConversionIntent = model.IntentInformational
		} else if !td.ConversionIntent.Valid() {
			return Definition{}, eris.Errorf("classify: campaign type %q has invalid conversion_intent %q", td.Name, td.ConversionIntent)
		}
		key := CategoryKey(td.Name)
		if seen[key] {
			return Definition{}, eris.Errorf("classify: duplicate campaign type %q", td.Name)
		}
		seen[key] = true
	}
	return def, nil
}

// LoadDefinition reads a taxonomy file; an empty path uses the built-in one.
func LoadDefinition(path string) (Definition, error) {
	if path == "" {
		return ParseDefinition(defaultDefinition)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, eris.Wrapf(err, "classify: read taxonomy %s", path)
	}
	return ParseDefinition(data)
}

// TemplateMap returns the template-id mappings as categories.
func (d Definition) TemplateMap() map[string]Category {
	out := make(map[string]Category, len(d.Templates))
	for id, key := range d.Templates {
		out[id] = Category(key)
	}
	return out
}

// Seed upserts the definition's campaign types by name. Existing rows keep
// their ids; only conversion_intent is refreshed.
func Seed(ctx context.Context, s store.Store, def Definition) (int64, error) {
	rows := make([]store.Row, 0, len(def.CampaignTypes))
	for _, td := range def.CampaignTypes {
		rows = append(rows, model.CampaignType{
			ID:               uuid.NewString(),
			Name:             strings.TrimSpace(td.Name),
			ConversionIntent: td.ConversionIntent,
		}.Row())
	}
	n, err := s.Upsert(ctx, store.TableCampaignTypes, []string{"name"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "classify: seed campaign types")
	}
	return n, nil
}

// Taxonomy resolves categories to stored campaign types. Build it once per
// run with LoadTaxonomy and pass it to the components that need it.
type Taxonomy struct {
	byKey     map[Category]model.CampaignType
	byID      map[string]model.CampaignType
	templates map[string]Category
}

// NewTaxonomy indexes types by category key and id. aliases maps extra
// category keys onto a type's own key.
func NewTaxonomy(types []model.CampaignType, aliases map[Category]Category, templates map[string]Category) *Taxonomy {
	t := &Taxonomy{
		byKey:     make(map[Category]model.CampaignType, len(types)),
		byID:      make(map[string]model.CampaignType, len(types)),
		templates: make(map[string]Category, len(templates)),
	}
	for _, ct := range types {
		t.byKey[CategoryKey(ct.Name)] = ct
		t.byID[ct.ID] = ct
	}
	for alias, key := range aliases {
		if ct, ok := t.byKey[key]; ok {
			if _, taken := t.byKey[alias]; !taken {
				t.byKey[alias] = ct
			}
		}
	}
	for id, cat := range templates {
		t.templates[id] = cat
	}
	return t
}

// LoadTaxonomy reads every campaign type from the store and combines it
// with the definition's aliases and template mappings.
func LoadTaxonomy(ctx context.Context, s store.Store, def Definition) (*Taxonomy, error) {
	rows, err := s.Fetch(ctx, store.Query{Table: store.TableCampaignTypes, OrderBy: "name"})
	if err != nil {
		return nil, eris.Wrap(err, "classify: load campaign types")
	}
	types := make([]model.CampaignType, 0, len(rows))
	for _, r := range rows {
		types = append(types, model.CampaignTypeFromRow(r))
	}

	aliases := make(map[Category]Category)
	for _, td := range def.CampaignTypes {
		for _, a := range td.Aliases {
			aliases[CategoryKey(a)] = CategoryKey(td.Name)
		}
	}
	return NewTaxonomy(types, aliases, def.TemplateMap()), nil
}

// Lookup returns the campaign type for a category.
func (t *Taxonomy) Lookup(c Category) (model.CampaignType, bool) {
	ct, ok := t.byKey[c]
	return ct, ok
}

// ID returns the campaign type id for a category, or nil when the
// taxonomy has no such type.
func (t *Taxonomy) ID(c Category) *string {
	ct, ok := t.byKey[c]
	if !ok {
		return nil
	}
	id := ct.ID
	return &id
}

// ByID returns the campaign type with the given id.
func (t *Taxonomy) ByID(id string) (model.CampaignType, bool) {
	ct, ok := t.byID[id]
	return ct, ok
}

// Types returns every campaign type ordered by name.
func (t *Taxonomy) Types() []model.CampaignType {
	out := make([]model.CampaignType, 0, len(t.byID))
	for _, ct := range t.byID {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Templates returns the template-id mappings for building a Classifier.
func (t *Taxonomy) Templates() map[string]Category {
	out := make(map[string]Category, len(t.templates))
	for id, c := range t.templates {
		out[id] = c
	}
	return out
}

// Classifier returns a Classifier over DefaultRules with this taxonomy's
// template mappings.
func (t *Taxonomy) Classifier() *Classifier {
	return New(DefaultRules(), t.Templates())
}
