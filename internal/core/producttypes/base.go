package producttypes

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// maxVarcharLength is the longest value a varchar attribute holds.
const maxVarcharLength = 255

// rowCheck validates the type specific columns of a row.
type rowCheck func(h *handler, row *core.Row, isNewSKU bool)

// handler implements core.TypeHandler. Product types differ only in the
// extra checks they run.
type handler struct {
	core.HandlerContext
	checks []rowCheck
}

func newHandler(checks ...rowCheck) func(core.HandlerContext) core.TypeHandler {
	return func(ctx core.HandlerContext) core.TypeHandler {
		return &handler{HandlerContext: ctx, checks: checks}
	}
}

// attributes returns the attributes of the row's attribute set.
func (h *handler) attributes(row *core.Row) []*core.Attribute {
	setID, ok := h.AttributeSets[row.Value(core.ColAttrSet)]
	if !ok {
		return nil
	}
	return h.Attributes.ForAttributeSet(setID)
}

// IsRowValid checks required attributes and attribute values.
func (h *handler) IsRowValid(row *core.Row, isNewSKU bool) bool {
	isDefault := core.ResolveScope(row) == core.ScopeDefault

	for _, attr := range h.attributes(row) {
		if attr.IsStatic() {
			continue
		}
		_, present := row.Get(attr.Code)
		value := row.Value(attr.Code)

		if attr.Required && isDefault && (isNewSKU || present) && value == "" {
			h.Errors.AddRowError(core.KindValueIsRequired, row.Num, attr.Code, attr.Code)
			continue
		}
		if value != "" {
			h.checkValue(row, attr, value)
		}
	}

	for _, check := range h.checks {
		check(h, row, isNewSKU)
	}
	return !h.Errors.IsRowInvalid(row.Num)
}

// checkValue validates one value against the attribute's type.
func (h *handler) checkValue(row *core.Row, attr *core.Attribute, value string) {
	switch attr.ValueType() {
	case "varchar":
		if utf8.RuneCountInString(value) > maxVarcharLength {
			h.Errors.AddRowError(core.KindExceededMaxLength, row.Num, attr.Code, attr.Code)
		}
	case "int":
		if _, err := strconv.Atoi(value); err != nil {
			h.Errors.AddRowError(core.KindInvalidAttributeType, row.Num, attr.Code, attr.Code)
		}
	case "decimal":
		if _, ok := core.ParseDecimal(value); !ok {
			h.Errors.AddRowError(core.KindInvalidAttributeType, row.Num, attr.Code, attr.Code)
		}
	case "datetime":
		if _, ok := core.ParseDateTime(value); !ok {
			h.Errors.AddRowError(core.KindInvalidAttributeType, row.Num, attr.Code, attr.Code)
		}
	case "select", "boolean":
		if _, ok := h.optionID(attr, value); !ok {
			h.Errors.AddRowError(core.KindAbsentOption, row.Num, attr.Code, attr.Code)
		}
	case "multiselect":
		for _, label := range core.SplitValues(value, h.Separator) {
			if _, ok := h.optionID(attr, label); !ok {
				h.Errors.AddRowError(core.KindAbsentOption, row.Num, attr.Code, attr.Code)
				return
			}
		}
	}
}

// optionID maps an option label to its id. Numeric values are taken as
// ids; boolean attributes without options accept yes/no values.
func (h *handler) optionID(attr *core.Attribute, label string) (string, bool) {
	if id, ok := attr.Options[strings.ToLower(strings.TrimSpace(label))]; ok {
		return strconv.Itoa(id), true
	}
	if attr.ValueType() == "boolean" && len(attr.Options) == 0 {
		b, ok := core.ParseFlag(label)
		if !ok {
			return "", false
		}
		if b {
			return "1", true
		}
		return "0", true
	}
	if _, err := strconv.Atoi(strings.TrimSpace(label)); err == nil {
		return strings.TrimSpace(label), true
	}
	return "", false
}

// ClearEmptyData returns a copy of row without empty attribute cells.
func (h *handler) ClearEmptyData(row *core.Row) *core.Row {
	out := row.Clone()
	for _, attr := range h.attributes(row) {
		if attr.IsStatic() {
			continue
		}
		if v, ok := out.Data[attr.Code]; ok && strings.TrimSpace(v) == "" {
			delete(out.Data, attr.Code)
		}
	}
	return out
}

// PrepareAttributesWithDefaults returns the row's attribute values keyed by
// code. Present but empty cells are kept as "" so they clear stored values.
func (h *handler) PrepareAttributesWithDefaults(row *core.Row, isNewSKU bool) map[string]string {
	out := make(map[string]string)
	for _, attr := range h.attributes(row) {
		if attr.IsStatic() {
			continue
		}
		if _, present := row.Get(attr.Code); !present {
			if isNewSKU && attr.DefaultValue != "" {
				out[attr.Code] = attr.DefaultValue
			}
			continue
		}

		value := row.Value(attr.Code)
		if value == "" {
			out[attr.Code] = ""
			continue
		}
		switch attr.ValueType() {
		case "select", "boolean":
			if id, ok := h.optionID(attr, value); ok {
				value = id
			}
		case "multiselect":
			var ids []string
			for _, label := range core.SplitValues(value, h.Separator) {
				if id, ok := h.optionID(attr, label); ok {
					ids = append(ids, id)
				}
			}
			value = strings.Join(ids, ",")
		}
		out[attr.Code] = value
	}
	return out
}

// invalidData records a type specific problem in column.
func (h *handler) invalidData(row *core.Row, column, reason string) {
	h.Errors.AddRowError(core.KindInvalidTypeData, row.Num, column, column, reason)
}

// parseEntries splits a "key=value,key=value|key=value" column into
// entries. bad holds the first pair without "=".
func parseEntries(value string) (entries []map[string]string, bad string) {
	for _, entry := range strings.Split(value, "|") {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		fields := make(map[string]string)
		for _, pair := range strings.Split(entry, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, strings.TrimSpace(pair)
			}
			fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
		entries = append(entries, fields)
	}
	return entries, ""
}
