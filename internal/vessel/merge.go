package vessel

import (
	"reflect"
	"strings"
)

// Fields never copied by FillMissing.
var mergeSkip = map[string]bool{
	"ID":               true,
	"CreatedAt":        true,
	"UpdatedAt":        true,
	"DataQualityScore": true,
}

// FillMissing copies every field that is empty in dst but set in src, and
// unions DataSources and PhotoURLs. It returns the json names of the fields
// it filled.
func FillMissing(dst *Vessel, src Vessel) []string {
	if dst == nil {
		return nil
	}
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	t := dv.Type()

	var filled []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if mergeSkip[field.Name] {
			continue
		}
		d, s := dv.Field(i), sv.Field(i)
		switch field.Name {
		case "DataSources":
			for _, src := range src.DataSources {
				dst.AddSource(src)
			}
			continue
		case "PhotoURLs":
			dst.PhotoURLs = appendUnique(dst.PhotoURLs, src.PhotoURLs...)
			continue
		}
		if !d.IsZero() || s.IsZero() {
			continue
		}
		d.Set(s)
		filled = append(filled, jsonName(field))
	}
	return filled
}

// Overlay returns next with every gap filled from prev. Upserts use it so
// fresh values win while previously known ones survive.
func Overlay(prev, next Vessel) Vessel {
	out := next
	FillMissing(&out, prev)
	out.ID = prev.ID
	out.CreatedAt = prev.CreatedAt
	return out
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if name, _, _ := strings.Cut(tag, ","); name != "" && name != "-" {
		return name
	}
	return f.Name
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
