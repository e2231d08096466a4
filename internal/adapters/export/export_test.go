package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/evanschultz/hrfeed/internal/app"
	"github.com/evanschultz/hrfeed/internal/domain"
)

// pagedSource serves a fixed activity list in pages.
type pagedSource struct {
	activities []app.ActivityView
	calls      []app.AllActivitiesInput
	err        error
}

func (p *pagedSource) AllActivities(_ context.Context, in app.AllActivitiesInput) (app.ActivityPage, error) {
	p.calls = append(p.calls, in)
	if p.err != nil {
		return app.ActivityPage{}, p.err
	}
	start := min((in.Page-1)*in.Limit, len(p.activities))
	end := min(start+in.Limit, len(p.activities))
	total := len(p.activities)
	return app.ActivityPage{
		Activities: p.activities[start:end],
		TotalCount: total,
		Page:       in.Page,
		Limit:      in.Limit,
		TotalPages: (total + in.Limit - 1) / in.Limit,
	}, nil
}

func sampleActivities(n int) []app.ActivityView {
	out := make([]app.ActivityView, 0, n)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := range n {
		view := app.ActivityView{
			ID:          int64(n - i),
			ActorID:     "U1",
			Action:      domain.ActionTodoCreated,
			SubjectType: domain.SubjectTodo,
			SubjectID:   fmt.Sprintf("T%d", i),
			SubjectName: fmt.Sprintf("todo %d", i),
			Description: fmt.Sprintf("Created todo: todo %d", i),
			Details:     domain.TodoDetails{},
			DetailsKind: domain.DetailsKindTodo,
			Timestamp:   base.Add(-time.Duration(i) * time.Minute),
		}
		if i == 0 {
			view.Actor = &domain.ActorSummary{ID: "U1", Name: "Ada Admin"}
		}
		out = append(out, view)
	}
	return out
}

func TestCollectPagesUntilTotal(t *testing.T) {
	src := &pagedSource{activities: sampleActivities(5)}
	got, err := Collect(context.Background(), src, "todo", 2)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 activities, got %d", len(got))
	}
	if len(src.calls) != 3 {
		t.Fatalf("expected 3 page calls, got %d", len(src.calls))
	}
	if src.calls[0].SubjectType != "todo" || src.calls[2].Page != 3 {
		t.Fatalf("unexpected page calls %#v", src.calls)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	n, err := Write(context.Background(), &buf, &pagedSource{activities: sampleActivities(3)}, Options{Format: FormatXLSX})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("written = %d, want 3", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() {
		_ = f.Close()
	}()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Timestamp" || rows[0][6] != "Description" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	if rows[1][0] != "2026-03-02T09:00:00Z" || rows[1][1] != "Ada Admin" || rows[2][1] != "U1" {
		t.Fatalf("unexpected rows %v", rows[1:])
	}
	if rows[3][6] != "Created todo: todo 2" {
		t.Fatalf("unexpected description %q", rows[3][6])
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Write(context.Background(), &buf, &pagedSource{activities: sampleActivities(2)}, Options{Format: FormatJSON}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(decoded) != 2 || decoded[0]["description"] != "Created todo: todo 0" || decoded[0]["details_kind"] != "todo" {
		t.Fatalf("unexpected json export %v", decoded)
	}
}

func TestWritePropagatesSourceErrors(t *testing.T) {
	cause := errors.New("database closed")
	_, err := Write(context.Background(), &bytes.Buffer{}, &pagedSource{err: cause}, Options{})
	if !errors.Is(err, cause) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, " json ": FormatJSON}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("csv"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
