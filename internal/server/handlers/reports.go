package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pysugar/commshub/internal/logging"
	"github.com/pysugar/commshub/internal/report"
)

// CommunicationReportHandler builds the communication report from query
// parameters. date_from/date_to accept RFC 3339 or YYYY-MM-DD; a bare
// date_to covers the whole day.
func CommunicationReportHandler(agg *report.Aggregator, loc *time.Location, logger *logging.Logger) http.HandlerFunc {
	if loc == nil {
		loc = time.UTC
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseReportQuery(r.URL.Query(), loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rep, err := agg.BuildReport(r.Context(), q)
		if err != nil {
			logger.WithContext(r.Context()).Error().Err(err).Msg("failed to build communication report")
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

func parseReportQuery(v url.Values, loc *time.Location) (report.Query, error) {
	q := report.Query{
		Filters: report.Filters{
			Channel:      v.Get("channel"),
			Company:      v.Get("company"),
			Department:   v.Get("department"),
			Region:       v.Get("region"),
			Level:        v.Get("level"),
			WorkMode:     v.Get("work_mode"),
			ContractType: v.Get("contract_type"),
			Position:     v.Get("position"),
			Sentiment:    v.Get("sentiment"),
		},
	}
	if s := v.Get("date_from"); s != "" {
		t, _, err := parseDate(s, loc)
		if err != nil {
			return q, fmt.Errorf("invalid date_from: %w", err)
		}
		q.DateFrom = &t
	}
	if s := v.Get("date_to"); s != "" {
		t, dateOnly, err := parseDate(s, loc)
		if err != nil {
			return q, fmt.Errorf("invalid date_to: %w", err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		q.DateTo = &t
	}
	return q, nil
}

func parseDate(s string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
