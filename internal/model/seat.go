package model

// Seat is one position of an event's seat map (`seats` table).  Seats are
// generated together with their event and never change afterwards.  Label
// is unique within the event, e.g. "A1" or "AA12".
type Seat struct {
    ID      uint64 `json:"id"`
    EventID uint64 `json:"event_id"`
    Label   string `json:"label"`
    RowNum  int    `json:"row"`
    ColNum  int    `json:"col"`
}
