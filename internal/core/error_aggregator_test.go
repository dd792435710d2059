package core

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestErrorAggregator_Termination(t *testing.T) {
	tests := []struct {
		name     string
		strategy ValidationStrategy
		allowed  int
		critical int
		notCrit  int
		fatal    bool
		want     bool
	}{
		{name: "skip errors ignores critical", strategy: StrategySkipErrors, allowed: 1, critical: 5, want: false},
		{name: "skip errors stops on fatal", strategy: StrategySkipErrors, allowed: 100, fatal: true, want: true},
		{name: "stop on error below limit", strategy: StrategyStopOnError, allowed: 3, critical: 2, want: false},
		{name: "stop on error at limit", strategy: StrategyStopOnError, allowed: 3, critical: 3, want: true},
		{name: "stop on error ignores not critical", strategy: StrategyStopOnError, allowed: 1, notCrit: 4, want: false},
		{name: "zero allowed needs one error", strategy: StrategyStopOnError, allowed: 0, want: false},
		{name: "zero allowed trips on first", strategy: StrategyStopOnError, allowed: 0, critical: 1, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewErrorAggregator(tt.strategy, tt.allowed)
			for i := 0; i < tt.critical; i++ {
				a.AddRowError(KindInvalidType, i+1, ColType)
			}
			for i := 0; i < tt.notCrit; i++ {
				a.AddRowError(KindMediaNotAccessible, 100+i, "image")
			}
			if tt.fatal {
				a.AddFatal(errors.New("boom"))
			}
			if got := a.HasToBeTerminated(); got != tt.want {
				t.Errorf("HasToBeTerminated() = %v, want %v", got, tt.want)
			}
			if got := a.Report().Terminated; got != tt.want {
				t.Errorf("Report().Terminated = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorAggregator_RowInvalid(t *testing.T) {
	a := NewErrorAggregator(StrategySkipErrors, 10)
	a.AddRowError(KindMediaNotAccessible, 1, "image")
	a.AddRowError(KindSkuIsEmpty, 2, ColSKU)
	a.MarkRowSkipped(3)
	a.AddRowError(KindMediaNotAccessible, 4, "small_image")

	for row, want := range map[int]bool{1: false, 2: true, 3: true, 4: false, 5: false} {
		if got := a.IsRowInvalid(row); got != want {
			t.Errorf("IsRowInvalid(%d) = %v, want %v", row, got, want)
		}
	}
	if got := a.ErrorsCount(); got != 3 {
		t.Errorf("ErrorsCount() = %d, want 3", got)
	}
	if got := a.ErrorsCount(SeverityCritical); got != 1 {
		t.Errorf("ErrorsCount(critical) = %d, want 1", got)
	}
	if got := a.ErrorsCount(SeverityNotCritical); got != 2 {
		t.Errorf("ErrorsCount(not critical) = %d, want 2", got)
	}
	if got := len(a.RowErrors(2)); got != 1 {
		t.Errorf("len(RowErrors(2)) = %d, want 1", got)
	}
}

func TestErrorAggregator_FirstFatalWins(t *testing.T) {
	a := NewErrorAggregator("", 0)
	first := errors.New("first")
	a.AddFatal(first)
	a.AddFatal(errors.New("second"))
	if !errors.Is(a.Fatal(), first) {
		t.Errorf("Fatal() = %v, want %v", a.Fatal(), first)
	}
	if got := a.Report().Fatal; got != "first" {
		t.Errorf("Report().Fatal = %q, want %q", got, "first")
	}
}

func TestErrorAggregator_ReportSortedByRow(t *testing.T) {
	a := NewErrorAggregator(StrategySkipErrors, 0)
	a.AddRowError(KindInvalidStore, 9, ColStore)
	a.AddRowError(KindSkuIsEmpty, 2, ColSKU)
	a.AddRowError(KindCategoryNotCreated, 5, ColCategories, "A/B", "no name")

	r := a.Report()
	var rows []int
	for _, e := range r.Errors {
		rows = append(rows, e.RowNum)
	}
	if len(rows) != 3 || rows[0] != 2 || rows[1] != 5 || rows[2] != 9 {
		t.Errorf("rows = %v, want [2 5 9]", rows)
	}
	if r.CriticalErrors != 2 || r.NotCriticalCount != 1 {
		t.Errorf("critical = %d, not critical = %d, want 2, 1", r.CriticalErrors, r.NotCriticalCount)
	}
	if by := r.ErrorsByKind(); by[KindSkuIsEmpty] != 1 || by[KindInvalidStore] != 1 {
		t.Errorf("ErrorsByKind() = %v", by)
	}
	if msg := r.Errors[1].Message; !strings.Contains(msg, `"A/B"`) {
		t.Errorf("message = %q, want category path", msg)
	}
}

func TestRowError_JSON(t *testing.T) {
	a := NewErrorAggregator(StrategySkipErrors, 0)
	a.AddRowError(KindMediaNotAccessible, 3, "image")

	data, err := json.Marshal(a.Report().Errors[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(data)
	for _, want := range []string{`"row":3`, `"severity":"not-critical"`, `"code":"MED001"`, `"column":"image"`} {
		if !strings.Contains(got, want) {
			t.Errorf("JSON = %s, want it to contain %s", got, want)
		}
	}
}

func TestErrorAggregator_ConcurrentReads(t *testing.T) {
	a := NewErrorAggregator(StrategyStopOnError, 1000)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			a.AddRowError(KindInvalidType, i, ColType)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = a.Report()
			_ = a.HasToBeTerminated()
		}
	}()
	wg.Wait()
	if got := a.ErrorsCount(); got != 500 {
		t.Errorf("ErrorsCount() = %d, want 500", got)
	}
}
