// Package report summarises the reliability ledger and the prediction log,
// per entity, as CSV (with a TOTAL row) or as a console table.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"stock-sentiment-predictor/internal/atomicfile"
	"stock-sentiment-predictor/internal/ledger"
	"stock-sentiment-predictor/internal/types"
)

// Row is one entity's line. Predictions and Points come from the ledger;
// the status counts come from the log.
type Row struct {
	Entity      string  `json:"entity"`
	Predictions int     `json:"total_predictions"`
	Points      float64 `json:"total_score_points"`
	Reliability float64 `json:"reliability"`
	Correct     int     `json:"correct"`
	Pending     int     `json:"pending"`
	Errored     int     `json:"errored"`
}

type Report struct {
	Rows  []Row `json:"rows"`
	Total Row   `json:"total"`
}

// Build joins the ledger with the log. Entities that only appear in the log
// (nothing checked yet) still get a row.
func Build(l *ledger.Ledger, records []types.Prediction) Report {
	rows := map[string]*Row{}
	row := func(entity string) *Row {
		r := rows[entity]
		if r == nil {
			r = &Row{Entity: entity}
			rows[entity] = r
		}
		return r
	}

	if l != nil {
		for _, e := range l.Entities() {
			s := l.Company(e)
			r := row(e)
			r.Predictions = s.TotalPredictions
			r.Points = s.TotalScorePoints
			r.Reliability = s.Reliability()
		}
	}
	for _, p := range records {
		e := strings.ToLower(strings.TrimSpace(p.Entity))
		if e == "" {
			continue
		}
		r := row(e)
		switch p.Status {
		case types.StatusPending:
			r.Pending++
		case types.StatusError:
			r.Errored++
		case types.StatusChecked:
			if p.Correct != nil && *p.Correct {
				r.Correct++
			}
		}
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rep := Report{Rows: make([]Row, 0, len(keys)), Total: Row{Entity: "TOTAL"}}
	for _, k := range keys {
		r := *rows[k]
		rep.Rows = append(rep.Rows, r)
		rep.Total.Correct += r.Correct
		rep.Total.Pending += r.Pending
		rep.Total.Errored += r.Errored
	}
	if l != nil {
		rep.Total.Predictions = l.Global.TotalPredictions
		rep.Total.Points = l.Global.TotalScorePoints
		rep.Total.Reliability = l.Global.Reliability()
	}
	return rep
}

var csvHeader = []string{"entity", "total_predictions", "total_score_points", "reliability", "correct", "pending", "errored"}

func csvRecord(r Row) []string {
	return []string{
		r.Entity,
		strconv.Itoa(r.Predictions),
		fmt.Sprintf("%.4f", r.Points),
		fmt.Sprintf("%.4f", r.Reliability),
		strconv.Itoa(r.Correct),
		strconv.Itoa(r.Pending),
		strconv.Itoa(r.Errored),
	}
}

func WriteCSV(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rep.Rows {
		if err := cw.Write(csvRecord(r)); err != nil {
			return err
		}
	}
	if err := cw.Write(csvRecord(rep.Total)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the report to path atomically.
func SaveCSV(path string, rep Report) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rep); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteText renders the console summary used by the score command.
func WriteText(w io.Writer, rep Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tPREDICTIONS\tPOINTS\tRELIABILITY\tCORRECT\tPENDING\tERRORED")
	for _, r := range append(rep.Rows, rep.Total) {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.1f%%\t%d\t%d\t%d\n",
			r.Entity, r.Predictions, r.Points, r.Reliability*100, r.Correct, r.Pending, r.Errored)
	}
	return tw.Flush()
}
