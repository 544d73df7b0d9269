// Package recurrence は繰り返しイベントのRRULE文字列を構築・展開する。
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/hitoshi/calman/internal/model"
)

// frequencies はドメインの頻度とrrule-goの頻度の対応表。
var frequencies = map[model.RecurrenceFrequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
	model.FrequencyYearly:  rrule.YEARLY,
}

// weekdays はBYDAYの2文字コードとrrule-goの曜日の対応表。
var weekdays = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// Build は繰り返し設定からRRULE文字列を構築する。
// 認識できる頻度と終了日の両方が揃っていない場合は繰り返しなしとみなし、
// 空文字列を返す。interval <= 0 は1に正規化する。
func Build(freq model.RecurrenceFrequency, interval int, until *time.Time, byWeekday []string) (string, error) {
	rfreq, ok := frequencies[freq]
	if !ok || until == nil || until.IsZero() {
		return "", nil
	}

	if interval <= 0 {
		interval = 1
	}

	opt := rrule.ROption{
		Freq:     rfreq,
		Interval: interval,
		Until:    until.UTC(),
	}

	for _, code := range byWeekday {
		wd, ok := weekdays[code]
		if !ok {
			return "", fmt.Errorf("不正な曜日コードです: %q", code)
		}
		opt.Byweekday = append(opt.Byweekday, wd)
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return "", fmt.Errorf("RRULEの構築に失敗しました: %w", err)
	}
	return rule.String(), nil
}

// Occurrences は保存済みのRRULE文字列を展開し、[from, to]の範囲に
// 含まれる開始時刻の一覧を返す。ruleが空の場合はdtstartが範囲内なら
// それ1件のみを返す。
func Occurrences(rule string, dtstart, from, to time.Time) ([]time.Time, error) {
	if rule == "" {
		if !dtstart.Before(from) && !dtstart.After(to) {
			return []time.Time{dtstart}, nil
		}
		return nil, nil
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("RRULEの解析に失敗しました: %w", err)
	}
	r.DTStart(dtstart)

	// Between()は基準時刻のタイムゾーンで比較するため範囲を揃える
	loc := dtstart.Location()
	return r.Between(from.In(loc), to.In(loc), true), nil
}
