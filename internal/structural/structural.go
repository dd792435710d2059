// Package structural checks the format of individual cells before a row
// reaches the product type handlers. Rules are validator tags applied to
// single values with validator.Var.
package structural

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

// Visibility labels accepted in the visibility column.
var visibilities = map[string]bool{
	"not visible individually": true,
	"catalog":                  true,
	"search":                   true,
	"catalog, search":          true,
}

// typeTags are rules whose failure means the value has the wrong type.
var typeTags = map[string]bool{
	"decimal":  true,
	"nonneg":   true,
	"flag":     true,
	"datetime": true,
	"number":   true,
}

// DefaultRules returns the built-in column rules.
func DefaultRules() map[string]string {
	return map[string]string{
		core.ColSKU:               "max=64",
		"url_key":                 "max=255",
		"tax_class_name":          "max=255",
		"visibility":              "visibility",
		"price":                   "decimal,nonneg",
		"special_price":           "decimal,nonneg",
		"cost":                    "decimal,nonneg",
		"weight":                  "decimal,nonneg",
		"qty":                     "decimal",
		"min_qty":                 "decimal",
		"min_sale_qty":            "decimal,nonneg",
		"max_sale_qty":            "decimal,nonneg",
		"notify_stock_qty":        "decimal",
		"backorders":              "number",
		"is_in_stock":             "flag",
		"manage_stock":            "flag",
		"is_qty_decimal":          "flag",
		"use_config_manage_stock": "flag",
		"use_config_min_qty":      "flag",
		"use_config_backorders":   "flag",
		"has_options":             "flag",
		"special_price_from_date": "datetime",
		"special_price_to_date":   "datetime",
		"news_from_date":          "datetime",
		"news_to_date":            "datetime",
	}
}

// Validator implements core.StructuralValidator.
type Validator struct {
	validate *validator.Validate
	columns  []string
	rules    map[string]string
}

// New builds a validator for rules, keyed by column. A nil map uses
// DefaultRules. Unknown tags are reported when the validator is built.
func New(rules map[string]string) (*Validator, error) {
	if rules == nil {
		rules = DefaultRules()
	}

	v := validator.New()
	custom := map[string]validator.Func{
		"decimal":    isDecimal,
		"nonneg":     isNonNegative,
		"flag":       isFlag,
		"datetime":   isDateTime,
		"visibility": isVisibility,
	}
	for tag, fn := range custom {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return nil, err
		}
	}

	columns := make([]string, 0, len(rules))
	for column, tag := range rules {
		if err := checkTag(v, tag); err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	return &Validator{validate: v, columns: columns, rules: rules}, nil
}

// checkTag fails when the tag is malformed. validator panics on unknown
// tags, so the panic is turned into an error.
func checkTag(v *validator.Validate, tag string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("invalid rule " + tag)
		}
	}()
	_ = v.Var("", "omitempty,"+tag)
	return nil
}

// Validate checks every non-empty cell that has a rule. Each column reports
// at most one message.
func (v *Validator) Validate(row *core.Row) []core.ValidationMessage {
	var out []core.ValidationMessage
	for _, column := range v.columns {
		value := row.Value(column)
		if value == "" {
			continue
		}
		err := v.validate.Var(value, v.rules[column])
		if err == nil {
			continue
		}
		out = append(out, core.ValidationMessage{Kind: kindOf(err), Column: column})
	}
	return out
}

func kindOf(err error) core.ErrorKind {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && typeTags[verrs[0].Tag()] {
		return core.KindInvalidAttributeType
	}
	return core.KindInvalidValue
}

func isDecimal(fl validator.FieldLevel) bool {
	_, ok := core.ParseDecimal(fl.Field().String())
	return ok
}

func isNonNegative(fl validator.FieldLevel) bool {
	d, ok := core.ParseDecimal(fl.Field().String())
	return ok && !d.IsNegative()
}

func isFlag(fl validator.FieldLevel) bool {
	_, ok := core.ParseFlag(fl.Field().String())
	return ok
}

func isDateTime(fl validator.FieldLevel) bool {
	_, ok := core.ParseDateTime(fl.Field().String())
	return ok
}

func isVisibility(fl validator.FieldLevel) bool {
	return visibilities[strings.ToLower(strings.TrimSpace(fl.Field().String()))]
}
