package ledger

import (
	"context"
	"sort"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// TopDomainsLimit caps the per-domain breakdown.
const TopDomainsLimit = 10

// DomainUsage aggregates the sessions of one domain.
type DomainUsage struct {
	Domain       string `json:"domain"`
	Sessions     int    `json:"sessions"`
	TotalMinutes int    `json:"totalMinutes"`
}

// Summary is the dashboard view of the ledger.
type Summary struct {
	TotalSessions int           `json:"totalSessions"`
	TotalMinutes  int           `json:"totalMinutes"`
	MostAccessed  string        `json:"mostAccessed"`
	Emergency     int           `json:"emergencyOverrides"`
	TopDomains    []DomainUsage `json:"topDomains"`
}

// Stats summarizes the stored ledger.
func (l *Ledger) Stats(ctx context.Context) (Summary, error) {
	logs, err := l.state.UsageLogs(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(logs), nil
}

// Summarize aggregates entries by domain. Ties in session count are broken by
// first appearance in logs.
func Summarize(logs []domain.UsageLogEntry) Summary {
	s := Summary{TopDomains: []DomainUsage{}}
	index := make(map[string]int)
	var usage []DomainUsage

	for _, e := range logs {
		s.TotalSessions++
		s.TotalMinutes += e.Duration
		if e.WasEmergencyOverride {
			s.Emergency++
		}
		i, ok := index[e.Domain]
		if !ok {
			i = len(usage)
			index[e.Domain] = i
			usage = append(usage, DomainUsage{Domain: e.Domain})
		}
		usage[i].Sessions++
		usage[i].TotalMinutes += e.Duration
	}

	sort.SliceStable(usage, func(i, j int) bool {
		return usage[i].Sessions > usage[j].Sessions
	})
	if len(usage) > 0 {
		s.MostAccessed = usage[0].Domain
	}
	if len(usage) > TopDomainsLimit {
		usage = usage[:TopDomainsLimit]
	}
	if usage != nil {
		s.TopDomains = usage
	}
	return s
}
