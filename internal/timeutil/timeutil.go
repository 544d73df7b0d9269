// Package timeutil は壁時計時刻のタイムゾーン変換とISO曜日の計算を提供する。
package timeutil

import (
	"fmt"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// ClockLayout は壁時計時刻の書式。
const ClockLayout = "15:04"

// ParseClock は "15:04" 形式の壁時計時刻を時・分に分解する。
func ParseClock(clock string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return 0, 0, fmt.Errorf("不正な時刻形式です: %q", clock)
	}
	return t.Hour(), t.Minute(), nil
}

// ConvertWallClock は壁時計時刻を指定日付に投影してタイムゾーン変換する。
// 戻り値のdayShiftは変換によって日付が前後した場合の-1/0/+1で、
// 呼び出し側はこれを使って希望時間帯のISO曜日を補正する。
// 基準日付は暗黙の「今日」ではなく、実際に表示・予約される日付を
// 呼び出し側が明示的に渡す。DSTの境界をまたいでもずれない。
func ConvertWallClock(clock string, onDate time.Time, fromTZ, toTZ string) (string, int, error) {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return "", 0, err
	}

	fromLoc, err := time.LoadLocation(fromTZ)
	if err != nil {
		return "", 0, fmt.Errorf("不正なタイムゾーンです: %q", fromTZ)
	}
	toLoc, err := time.LoadLocation(toTZ)
	if err != nil {
		return "", 0, fmt.Errorf("不正なタイムゾーンです: %q", toTZ)
	}

	src := time.Date(onDate.Year(), onDate.Month(), onDate.Day(), hour, minute, 0, 0, fromLoc)
	dst := src.In(toLoc)

	srcDay := time.Date(src.Year(), src.Month(), src.Day(), 0, 0, 0, 0, time.UTC)
	dstDay := time.Date(dst.Year(), dst.Month(), dst.Day(), 0, 0, 0, 0, time.UTC)
	dayShift := int(dstDay.Sub(srcDay).Hours() / 24)

	return dst.Format(ClockLayout), dayShift, nil
}

// ISOWeekday はISO 8601の曜日番号（1=月〜7=日）を返す。
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ShiftISOWeekday はISO曜日をshift日分ずらす。
// 「曜日を問わない」センチネル値はそのまま返す。
func ShiftISOWeekday(dow, shift int) int {
	if dow == model.AnyDayOfWeek {
		return model.AnyDayOfWeek
	}
	return ((dow-1+shift)%7+7)%7 + 1
}
