package core

import "testing"

func TestCustomOptionValidator(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{name: "empty column", value: "", want: true},
		{name: "single option", value: "name=Engraving,type=field,required=1", want: true},
		{name: "several options", value: "name=Engraving,type=field|name=Size,type=drop_down,required=0,price=10%", want: true},
		{name: "missing name", value: "type=field", want: false},
		{name: "unknown type", value: "name=Wrap,type=hologram", want: false},
		{name: "bad required flag", value: "name=Wrap,type=checkbox,required=sometimes", want: false},
		{name: "bad price", value: "name=Wrap,type=checkbox,price=free", want: false},
		{name: "pair without equals", value: "name=Wrap,type=field,oops", want: false},
		{name: "empty option between separators", value: "name=A,type=field||name=B,type=area", want: false},
	}

	var v CustomOptionValidator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := NewErrorAggregator(StrategySkipErrors, 0)
			row := NewRow(7, map[string]string{"sku": "A", "custom_options": tt.value})
			if got := v.ValidateRow(row, errs); got != tt.want {
				t.Errorf("ValidateRow() = %v, want %v", got, tt.want)
			}
			if got := errs.IsRowInvalid(7); got == tt.want {
				t.Errorf("IsRowInvalid() = %v, want %v", got, !tt.want)
			}
		})
	}
}

func TestParseCustomOption(t *testing.T) {
	got := ParseCustomOption(" Name = Engraving , TYPE=field,price=5")
	if got["name"] != "Engraving" || got["type"] != "field" || got["price"] != "5" {
		t.Errorf("ParseCustomOption() = %v", got)
	}
}
