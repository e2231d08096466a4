// Package export writes the activity log to spreadsheet or JSON files for audits.
package export

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xuri/excelize/v2"

	"github.com/evanschultz/hrfeed/internal/app"
)

// SheetName names the single worksheet of an XLSX export.
const SheetName = "Activities"

const defaultPageSize = 100

// Format selects the export encoding.
type Format string

// Format values.
const (
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat reports an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat resolves a user-supplied format name.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case FormatXLSX, "":
		return FormatXLSX, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Wrapf(ErrUnsupportedFormat, "%q", raw)
	}
}

// PageSource serves pages of the activity log.
type PageSource interface {
	AllActivities(context.Context, app.AllActivitiesInput) (app.ActivityPage, error)
}

// Options configures one export run.
type Options struct {
	Format      Format
	SubjectType string
	PageSize    int
}

var header = []any{"Timestamp", "Actor", "Action", "Subject Type", "Subject ID", "Subject Name", "Description"}

// Collect pages through the log newest first and returns every matching activity.
func Collect(ctx context.Context, src PageSource, subjectType string, pageSize int) ([]app.ActivityView, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	out := make([]app.ActivityView, 0)
	for page := 1; ; page++ {
		result, err := src.AllActivities(ctx, app.AllActivitiesInput{Page: page, Limit: pageSize, SubjectType: subjectType})
		if err != nil {
			return nil, errors.Wrapf(err, "export page %d", page)
		}
		out = append(out, result.Activities...)
		if len(result.Activities) == 0 || page >= result.TotalPages {
			return out, nil
		}
	}
}

// Write collects the log and encodes it to w, returning the number of activities written.
func Write(ctx context.Context, w io.Writer, src PageSource, opts Options) (int, error) {
	activities, err := Collect(ctx, src, opts.SubjectType, opts.PageSize)
	if err != nil {
		return 0, err
	}
	switch opts.Format {
	case FormatJSON:
		err = WriteJSON(w, activities)
	case FormatXLSX, "":
		err = WriteXLSX(w, activities)
	default:
		err = errors.Wrapf(ErrUnsupportedFormat, "%q", opts.Format)
	}
	if err != nil {
		return 0, err
	}
	return len(activities), nil
}

// WriteJSON encodes activities as one indented JSON array.
func WriteJSON(w io.Writer, activities []app.ActivityView) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(activities); err != nil {
		return errors.Wrap(err, "encode json export")
	}
	return nil
}

// WriteXLSX encodes activities as a workbook with one header row and one row per activity.
func WriteXLSX(w io.Writer, activities []app.ActivityView) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.Wrap(err, "name export sheet")
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "write export header")
	}
	for i, activity := range activities {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "resolve export cell")
		}
		row := []any{
			activity.Timestamp.UTC().Format(time.RFC3339),
			actorLabel(activity),
			string(activity.Action),
			string(activity.SubjectType),
			activity.SubjectID,
			activity.SubjectName,
			activity.Description,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.Wrapf(err, "write export row %d", i+2)
		}
	}
	if err := f.SetColWidth(SheetName, "A", "A", 22); err != nil {
		return errors.Wrap(err, "size export columns")
	}
	if err := f.SetColWidth(SheetName, "G", "G", 60); err != nil {
		return errors.Wrap(err, "size export columns")
	}
	if err := f.Write(w); err != nil {
		return errors.Wrap(err, "write xlsx export")
	}
	return nil
}

// actorLabel prefers the resolved actor name and falls back to the raw id.
func actorLabel(activity app.ActivityView) string {
	if activity.Actor != nil && strings.TrimSpace(activity.Actor.Name) != "" {
		return activity.Actor.Name
	}
	return activity.ActorID
}
