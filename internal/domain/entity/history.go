package entity

import "time"

// HistoryRecord одна запись истории анализов сессии
type HistoryRecord struct {
	Time       time.Time `json:"time"`
	Verdict    Verdict   `json:"result"`
	Confidence string    `json:"conf"` // оценка риска в процентах, "82.0%"
	Score      RiskScore `json:"score"`
	FileName   string    `json:"file_name,omitempty"`
}

// Clock время записи в формате боковой панели
func (r HistoryRecord) Clock() string {
	return r.Time.Format("15:04")
}

// History неизменяемая история анализов. Хранится целиком, обрезается
// только при показе.
type History struct {
	records []HistoryRecord
}

// NewHistory создаёт историю из записей (старые первыми)
func NewHistory(records ...HistoryRecord) History {
	return History{records: append([]HistoryRecord(nil), records...)}
}

// Append возвращает новую историю с добавленной записью, исходная не меняется
func (h History) Append(r HistoryRecord) History {
	records := make([]HistoryRecord, len(h.records), len(h.records)+1)
	copy(records, h.records)
	return History{records: append(records, r)}
}

// Len количество записей
func (h History) Len() int {
	return len(h.records)
}

// Records копия всех записей в порядке добавления
func (h History) Records() []HistoryRecord {
	return append([]HistoryRecord(nil), h.records...)
}

// Recent возвращает до n последних записей, новые первыми. n <= 0 означает все.
func (h History) Recent(n int) []HistoryRecord {
	if n <= 0 || n > len(h.records) {
		n = len(h.records)
	}
	out := make([]HistoryRecord, 0, n)
	for i := len(h.records) - 1; i >= len(h.records)-n; i-- {
		out = append(out, h.records[i])
	}
	return out
}
