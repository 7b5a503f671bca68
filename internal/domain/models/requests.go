package models

import (
	"fmt"
	"strings"
	"time"

	"SentiTrader/pkg/util"
)

// TradesQuery is the query for GET /api/v1/trades.
type TradesQuery struct {
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
	From  string `query:"from"`
	To    string `query:"to"`
}

// Range parses From and To. Empty bounds come back as zero times.
func (q TradesQuery) Range() (from, to time.Time, err error) {
	if from, err = parseBound("from", q.From); err != nil {
		return
	}
	to, err = parseBound("to", q.To)
	return
}

func parseBound(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s=%q", ErrInvalidQuery, name, s)
	}
	return t.UTC(), nil
}
