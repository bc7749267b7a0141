// Package report computes communication statistics over log entries joined
// with the employee directory.
package report

import (
	"math"
	"sort"
	"strings"

	"github.com/pysugar/commshub/internal/db/models"
	"github.com/pysugar/commshub/internal/util"
)

// maxAlertMessageLen bounds the message excerpt carried by an alert.
const maxAlertMessageLen = 280

// Build computes the report for entries matching q. It does not modify entries.
func Build(entries []models.CommunicationLog, employees []models.Employee, q Query, opts Options) *Report {
	if opts.MaxAlerts <= 0 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	dir := make(map[string]*models.Employee, len(employees))
	for i := range employees {
		dir[employees[i].ID] = &employees[i]
	}

	b := newBuilder(dir, opts)
	for i := range entries {
		e := &entries[i]
		if !inRange(e, q) || !b.matches(e, q.Filters) {
			continue
		}
		b.add(e)
	}
	return b.finish()
}

func inRange(e *models.CommunicationLog, q Query) bool {
	if q.DateFrom != nil && e.SentAt.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && e.SentAt.After(*q.DateTo) {
		return false
	}
	return true
}

type builder struct {
	dir  map[string]*models.Employee
	opts Options
	r    *Report

	hourly, daily, monthly map[string]int

	scoreSum    float64
	channelSent map[string]*mean
	companySent map[string]*mean
	deptSent    map[string]*mean
	positive    int
	neutral     int
	negative    int
	alerts      []Alert
}

type mean struct {
	sum float64
	n   int
}

func newBuilder(dir map[string]*models.Employee, opts Options) *builder {
	return &builder{
		dir:  dir,
		opts: opts,
		r: &Report{
			ByChannel:      map[string]int{},
			ByStatus:       map[string]int{},
			ByCompany:      map[string]int{},
			ByDepartment:   map[string]int{},
			ByRegion:       map[string]int{},
			ByLevel:        map[string]int{},
			ByWorkMode:     map[string]int{},
			ByContractType: map[string]int{},
			ByPosition:     map[string]int{},
		},
		hourly:      map[string]int{},
		daily:       map[string]int{},
		monthly:     map[string]int{},
		channelSent: map[string]*mean{},
		companySent: map[string]*mean{},
		deptSent:    map[string]*mean{},
	}
}

func (b *builder) matches(e *models.CommunicationLog, f Filters) bool {
	if f.Channel != "" && !strings.EqualFold(string(e.Channel), f.Channel) {
		return false
	}
	if f.Sentiment != "" {
		if e.SentimentScore == nil || !strings.EqualFold(sentimentBucket(*e.SentimentScore), f.Sentiment) {
			return false
		}
	}

	checks := []struct {
		want string
		get  func(*models.Employee) []string
	}{
		{f.Company, func(emp *models.Employee) []string { return []string{emp.CompanyID, companyName(emp)} }},
		{f.Department, func(emp *models.Employee) []string { return []string{emp.Department} }},
		{f.Region, func(emp *models.Employee) []string { return []string{emp.Region} }},
		{f.Level, func(emp *models.Employee) []string { return []string{emp.Level} }},
		{f.WorkMode, func(emp *models.Employee) []string { return []string{emp.WorkMode} }},
		{f.ContractType, func(emp *models.Employee) []string { return []string{emp.ContractType} }},
		{f.Position, func(emp *models.Employee) []string { return []string{emp.Position} }},
	}
	for _, c := range checks {
		if c.want != "" && !b.anyRecipient(e, c.want, c.get) {
			return false
		}
	}
	return true
}

func (b *builder) anyRecipient(e *models.CommunicationLog, want string, get func(*models.Employee) []string) bool {
	for _, id := range e.RecipientIDs {
		emp, ok := b.dir[id]
		if !ok {
			continue
		}
		for _, v := range get(emp) {
			if v != "" && strings.EqualFold(v, want) {
				return true
			}
		}
	}
	return false
}

func companyName(emp *models.Employee) string {
	if emp.Company != nil {
		return emp.Company.Name
	}
	return ""
}

func (b *builder) add(e *models.CommunicationLog) {
	r := b.r
	r.TotalMessages++

	switch e.Status {
	case models.StatusSent, models.StatusDelivered, models.StatusRead:
		r.SentCount++
		if e.Status == models.StatusDelivered || e.Status == models.StatusRead {
			r.DeliveredCount++
		}
		if e.Status == models.StatusRead || e.ReadAt != nil {
			r.ReadCount++
		}
	case models.StatusFailed:
		r.FailedCount++
	}

	channel := orUnknown(string(e.Channel))
	r.ByChannel[channel]++
	r.ByStatus[orUnknown(string(e.Status))]++

	first := b.firstRecipient(e)
	company, department := Unknown, Unknown
	if first != nil {
		company = orUnknown(firstNonEmpty(companyName(first), first.CompanyID))
		department = orUnknown(first.Department)
		r.ByRegion[orUnknown(first.Region)]++
		r.ByLevel[orUnknown(first.Level)]++
		r.ByWorkMode[orUnknown(first.WorkMode)]++
		r.ByContractType[orUnknown(first.ContractType)]++
		r.ByPosition[orUnknown(first.Position)]++
	} else {
		r.ByRegion[Unknown]++
		r.ByLevel[Unknown]++
		r.ByWorkMode[Unknown]++
		r.ByContractType[Unknown]++
		r.ByPosition[Unknown]++
	}
	r.ByCompany[company]++
	r.ByDepartment[department]++

	at := e.SentAt
	if b.opts.Location != nil {
		at = at.In(b.opts.Location)
	}
	b.hourly[at.Format("15")]++
	b.daily[at.Format("2006-01-02")]++
	b.monthly[at.Format("2006-01")]++

	if e.SentimentScore == nil {
		return
	}
	score := *e.SentimentScore
	b.scoreSum += score
	accumulate(b.channelSent, channel, score)
	accumulate(b.companySent, company, score)
	accumulate(b.deptSent, department, score)
	switch sentimentBucket(score) {
	case "positive":
		b.positive++
	case "negative":
		b.negative++
	default:
		b.neutral++
	}
	if score < AlertThreshold {
		b.alerts = append(b.alerts, Alert{
			LogID:        e.ID,
			SenderID:     e.SenderID,
			RecipientIDs: append([]string(nil), e.RecipientIDs...),
			Channel:      e.Channel,
			Message:      util.TruncateLog(e.Message, maxAlertMessageLen),
			Score:        score,
			Label:        e.SentimentLabel,
			SentAt:       e.SentAt,
		})
	}
}

func (b *builder) firstRecipient(e *models.CommunicationLog) *models.Employee {
	if len(e.RecipientIDs) == 0 {
		return nil
	}
	return b.dir[e.RecipientIDs[0]]
}

func (b *builder) finish() *Report {
	r := b.r
	r.DeliveryRate = percent(r.SentCount, r.TotalMessages)
	r.ReadRate = percent(r.ReadCount, r.SentCount)
	r.BounceRate = percent(r.FailedCount, r.TotalMessages)

	r.Histograms = Histograms{
		Hourly:  buckets(b.hourly),
		Daily:   buckets(b.daily),
		Monthly: buckets(b.monthly),
	}

	scored := b.positive + b.neutral + b.negative
	s := SentimentMetrics{
		ScoredMessages: scored,
		ByChannel:      means(b.channelSent),
		ByCompany:      means(b.companySent),
		ByDepartment:   means(b.deptSent),
		Distribution: Distribution{
			Positive: percent(b.positive, scored),
			Neutral:  percent(b.neutral, scored),
			Negative: percent(b.negative, scored),
		},
		Alerts: b.alerts,
	}
	if scored > 0 {
		s.AverageScore = round(b.scoreSum/float64(scored), 3)
	}
	sort.SliceStable(s.Alerts, func(i, j int) bool {
		if !s.Alerts[i].SentAt.Equal(s.Alerts[j].SentAt) {
			return s.Alerts[i].SentAt.After(s.Alerts[j].SentAt)
		}
		return s.Alerts[i].LogID < s.Alerts[j].LogID
	})
	if len(s.Alerts) > b.opts.MaxAlerts {
		s.Alerts = s.Alerts[:b.opts.MaxAlerts]
	}
	if s.Alerts == nil {
		s.Alerts = []Alert{}
	}
	r.Sentiment = s
	return r
}

func sentimentBucket(score float64) string {
	switch {
	case score > PositiveThreshold:
		return "positive"
	case score < NegativeThreshold:
		return "negative"
	default:
		return "neutral"
	}
}

func accumulate(m map[string]*mean, key string, score float64) {
	acc, ok := m[key]
	if !ok {
		acc = &mean{}
		m[key] = acc
	}
	acc.sum += score
	acc.n++
}

func means(m map[string]*mean) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, acc := range m {
		out[k] = round(acc.sum/float64(acc.n), 3)
	}
	return out
}

func buckets(m map[string]int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, n := range m {
		out = append(out, Bucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// percent returns part/whole*100 rounded to two decimals, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round(float64(part)/float64(whole)*100, 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return Unknown
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
