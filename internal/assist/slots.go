package assist

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calman/internal/model"
)

// slotWindow は候補時間帯を生成する1日分の時間窓。
type slotWindow struct {
	start time.Time
	end   time.Time
}

// segmentSlots は時間窓をduration刻みに分割し、ビジー区間と重なる
// 候補を除外して返す。候補は永続化されない一時オブジェクト。
func segmentSlots(window slotWindow, duration time.Duration, busy []model.BusyInterval) []*model.AvailableSlot {
	var slots []*model.AvailableSlot

	for start := window.start; !start.Add(duration).After(window.end); start = start.Add(duration) {
		end := start.Add(duration)
		if overlapsAny(start, end, busy) {
			continue
		}
		slots = append(slots, &model.AvailableSlot{
			ID:      uuid.New().String(),
			StartAt: start,
			EndAt:   end,
		})
	}
	return slots
}

// overlapsAny は候補がいずれかのビジー区間と重なるかを返す。
// 端点の接触は重なりとみなさない。
func overlapsAny(start, end time.Time, busy []model.BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// intersectWindow は2つの時間窓の共通部分を返す。
// 共通部分がない場合はokがfalseになる。
func intersectWindow(a, b slotWindow) (slotWindow, bool) {
	start := a.start
	if b.start.After(start) {
		start = b.start
	}
	end := a.end
	if b.end.Before(end) {
		end = b.end
	}
	if !start.Before(end) {
		return slotWindow{}, false
	}
	return slotWindow{start: start, end: end}, true
}
