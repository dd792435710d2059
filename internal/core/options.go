package core

import (
	"strconv"
	"strings"
)

// customOptionTypes lists the accepted custom option input types.
var customOptionTypes = map[string]bool{
	"field": true, "area": true, "file": true,
	"drop_down": true, "radio": true, "checkbox": true, "multiple": true,
	"date": true, "date_time": true, "time": true,
}

// CustomOptionValidator checks the custom_options column. Options are
// separated by "|" and written as comma separated key=value pairs:
//
//	name=Engraving,type=field,required=0,price=5|name=Gift wrap,type=checkbox
type CustomOptionValidator struct{}

// ValidateRow implements OptionValidator.
func (CustomOptionValidator) ValidateRow(row *Row, errs *ErrorAggregator) bool {
	raw := row.Value(ColCustomOptions)
	if raw == "" {
		return true
	}
	for i, option := range strings.Split(raw, "|") {
		if reason := checkCustomOption(option); reason != "" {
			errs.AddRowError(KindInvalidCustomOptions, row.Num, ColCustomOptions, "option "+strconv.Itoa(i+1)+": "+reason)
			return false
		}
	}
	return true
}

// ParseCustomOption splits one option into its fields.
func ParseCustomOption(option string) map[string]string {
	fields := make(map[string]string)
	for _, pair := range strings.Split(option, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return fields
}

func checkCustomOption(option string) string {
	if strings.TrimSpace(option) == "" {
		return "empty option"
	}
	for _, pair := range strings.Split(option, ",") {
		if !strings.Contains(pair, "=") {
			return "expected key=value, got " + strings.TrimSpace(pair)
		}
	}
	fields := ParseCustomOption(option)
	if fields["name"] == "" {
		return "name is required"
	}
	if !customOptionTypes[fields["type"]] {
		return "unknown type " + fields["type"]
	}
	if req, ok := fields["required"]; ok {
		if _, valid := ParseFlag(req); !valid {
			return "required must be 0 or 1"
		}
	}
	if price, ok := fields["price"]; ok && price != "" {
		if _, valid := ParseDecimal(strings.TrimSuffix(price, "%")); !valid {
			return "price must be a number"
		}
	}
	return ""
}
