package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// Event is a scheduled happening that owns a fixed seat map.  It maps to
// the `events` table.  StartsAt is nil when the schedule is not yet known;
// such events never receive reminders.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – display title, required.
//  Description – free text.
//  StartsAt    – scheduled start in UTC (nullable).
//  Price       – price of a single ticket.
//  City        – city used by the public list filter.
//  Venue       – venue name.
//  Location    – address or coordinates of the venue.
//  ImageBanner – public URL of the banner image.
//  ImageKey    – storage key of the banner image.
type Event struct {
    ID          uint64          `json:"id"`
    Title       string          `json:"title"`
    Description string          `json:"description"`
    StartsAt    *time.Time      `json:"starts_at"`
    Price       decimal.Decimal `json:"price"`
    City        string          `json:"city"`
    Venue       string          `json:"venue"`
    Location    string          `json:"location"`
    ImageBanner string          `json:"image_banner"`
    ImageKey    string          `json:"image_key"`
    CreatedAt   time.Time       `json:"created_at"`
    UpdatedAt   time.Time       `json:"updated_at"`
}
