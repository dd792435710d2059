package core

import (
	"context"
	"fmt"
	"testing"
)

// ============================================================================
// Conversion Benchmarks
// ============================================================================

// BenchmarkParseDecimal covers price, qty and weight cells.
func BenchmarkParseDecimal(b *testing.B) {
	testCases := []string{
		"123",
		"-456.78",
		"$1,234.56",
		"(123.45)",
		"1,234,567.89",
		"  999.99  ",
		"€1234.56",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseDecimal(tc)
		}
	}
}

// BenchmarkParseDateTime walks the layout list; US dates sit near the end.
func BenchmarkParseDateTime(b *testing.B) {
	testCases := []string{
		"2024-01-15 10:30:00",
		"2024-01-15",
		"01/15/2024",
		"Jan 15, 2024",
		"1/5/24",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			ParseDateTime(tc)
		}
	}
}

func BenchmarkCleanCell(b *testing.B) {
	testCases := []string{
		"simple value",
		`="12345"`,
		`"quoted"`,
		"  padded  ",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tc := range testCases {
			CleanCell(tc)
		}
	}
}

func BenchmarkSplitValues(b *testing.B) {
	for i := 0; i < b.N; i++ {
		SplitValues("Default Category/Men/Tops, Default Category/Sale ,,Default Category/New", ",")
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkParseDecimalParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseDecimal("$1,234.56")
		}
	})
}

func BenchmarkParseDateTimeParallel(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ParseDateTime("2024-01-15")
		}
	})
}

// ============================================================================
// Run Benchmarks
// ============================================================================

// BenchmarkImporterRun imports bunches of new simple products against the
// in-memory writer.
func BenchmarkImporterRun(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("rows=%d", size), func(b *testing.B) {
			data := make([]map[string]string, size)
			for i := range data {
				data[i] = map[string]string{
					"sku":                fmt.Sprintf("SKU-%05d", i),
					"product_type":       "simple",
					"attribute_set_code": "Default",
					"name":               fmt.Sprintf("Shirt %d", i),
					"price":              "19.90",
					"product_websites":   "base",
					"color":              "red,blue",
					"qty":                "10",
				}
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				imp := newTestImporter(Options{}, &fakeWriter{}, nil, func(d *Dependencies) {
					d.Stock = &fakeStockRegistry{}
				})
				src := &sliceSource{}
				for start := 0; start < size; start += 100 {
					src.bunches = append(src.bunches, &Bunch{Index: start / 100, Rows: rows(start+1, data[start:start+100]...)})
				}
				if _, err := imp.Run(context.Background(), src); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
