package bleveindex

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// sourceField holds the JSON of the whole document. It is stored but not
// indexed and serves partial updates.
const sourceField = "_source"

// buildMapping converts backend mappings ({"properties": {...}}) into a
// bleve index mapping. Unknown types fall back to dynamic mapping.
func buildMapping(mappings map[string]any) *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()
	if props, ok := mappings["properties"].(map[string]any); ok {
		addProperties(doc, props)
	}

	src := bleve.NewTextFieldMapping()
	src.Index = false
	src.Store = true
	src.IncludeInAll = false
	src.IncludeTermVectors = false
	doc.AddFieldMappingsAt(sourceField, src)

	im.DefaultMapping = doc
	return im
}

func addProperties(doc *mapping.DocumentMapping, props map[string]any) {
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		switch typ {
		case "object", "nested":
			sub := bleve.NewDocumentMapping()
			if nested, ok := prop["properties"].(map[string]any); ok {
				addProperties(sub, nested)
			}
			doc.AddSubDocumentMapping(name, sub)
		default:
			if fm := fieldMapping(typ); fm != nil {
				doc.AddFieldMappingsAt(name, fm)
			}
		}
	}
}

func fieldMapping(typ string) *mapping.FieldMapping {
	var fm *mapping.FieldMapping
	switch typ {
	case "text":
		fm = bleve.NewTextFieldMapping()
	case "keyword":
		fm = bleve.NewKeywordFieldMapping()
	case "integer", "long", "short", "double", "float":
		fm = bleve.NewNumericFieldMapping()
	case "boolean":
		fm = bleve.NewBooleanFieldMapping()
	case "date":
		fm = bleve.NewDateTimeFieldMapping()
	default:
		return nil
	}
	fm.Store = false
	return fm
}

// mergeMappings adds the properties of extra to base, recursively.
func mergeMappings(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		bm, ok1 := out[k].(map[string]any)
		em, ok2 := v.(map[string]any)
		if ok1 && ok2 {
			out[k] = mergeMappings(bm, em)
			continue
		}
		out[k] = v
	}
	return out
}
