package job

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ellahos/ellahos/core"
)

var fieldLabels = map[string]string{
	"title":                  "Titulo",
	"status":                 "Status",
	"priority":               "Prioridade",
	"closed_value":           "Valor fechado",
	"production_cost":        "Custo de producao",
	"other_costs":            "Outros custos",
	"tax_percentage":         "Percentual de impostos",
	"expected_delivery_date": "Data prevista de entrega",
	"expected_start_date":    "Data prevista de inicio",
	"actual_delivery_date":   "Data de entrega real",
	"brand":                  "Marca",
	"notes":                  "Observacoes",
	"is_archived":            "Arquivado",
	"client_id":              "Cliente",
	"agency_id":              "Agencia",
	"sub_status":             "Sub-status",
}

// jobFields indexes the Job struct fields by json name.
var jobFields = func() map[string]int {
	idx := make(map[string]int)
	t := reflect.TypeOf(Job{})
	for i := 0; i < t.NumField(); i++ {
		name := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if name != "" && name != "-" {
			idx[name] = i
		}
	}
	return idx
}()

// change holds the previous and new value of a job field.
type change struct {
	Field  string
	Before interface{}
	After  interface{}
}

func isZeroPatch(uj *UpdateJob) bool {
	v := reflect.ValueOf(uj).Elem()
	for i := 0; i < v.NumField(); i++ {
		if !v.Field(i).IsNil() {
			return false
		}
	}
	return true
}

// applyPatch copies every provided field of `uj` into `j` and returns the fields whose value changed.
func applyPatch(j *Job, uj UpdateJob) []change {
	var changes []change
	src := reflect.ValueOf(uj)
	dst := reflect.ValueOf(j).Elem()
	st := src.Type()

	for i := 0; i < st.NumField(); i++ {
		in := src.Field(i)
		if in.IsNil() {
			continue
		}
		name := strings.Split(st.Field(i).Tag.Get("json"), ",")[0]
		fi, ok := jobFields[name]
		if !ok {
			continue
		}
		out := dst.Field(fi)
		before := plain(out)
		setField(out, in.Elem())
		after := plain(out)
		if !reflect.DeepEqual(before, after) {
			changes = append(changes, change{Field: name, Before: before, After: after})
		}
	}
	return changes
}

func setField(out, val reflect.Value) {
	if s, ok := val.Interface().(string); ok && out.Kind() == reflect.Ptr {
		out.Set(reflect.ValueOf(core.NilIfBlank(&s)))
		return
	}
	if out.Kind() == reflect.Ptr {
		p := reflect.New(out.Type().Elem())
		p.Elem().Set(val.Convert(out.Type().Elem()))
		out.Set(p)
		return
	}
	out.Set(val.Convert(out.Type()))
}

// plain dereferences pointers and normalizes named types so values can be compared and stored as JSON.
func plain(v reflect.Value) interface{} {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice:
		out := make([]interface{}, v.Len())
		for i := range out {
			out[i] = v.Index(i).Interface()
		}
		return out
	case reflect.Map:
		out := make(map[string]interface{}, v.Len())
		for _, k := range v.MapKeys() {
			out[k.String()] = v.MapIndex(k).Interface()
		}
		return out
	case reflect.String:
		return v.String()
	}
	return v.Interface()
}

func describeChanges(changes []change) string {
	descs := make([]string, 0, len(changes))
	for _, c := range changes {
		descs = append(descs, describeFieldChange(c))
	}
	return strings.Join(descs, "; ")
}

func describeFieldChange(c change) string {
	label, ok := fieldLabels[c.Field]
	if !ok {
		label = c.Field
	}
	if c.Before == nil {
		return fmt.Sprintf("%s definido como %q", label, formatValue(c.After))
	}
	return fmt.Sprintf("%s alterado de %q para %q", label, formatValue(c.Before), formatValue(c.After))
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func changeMaps(changes []change) (before, after core.JSONMap) {
	before, after = core.JSONMap{}, core.JSONMap{}
	for _, c := range changes {
		before[c.Field] = c.Before
		after[c.Field] = c.After
	}
	return before, after
}
