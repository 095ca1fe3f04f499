package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// RecordColumns is the fixed column order of the listings sheet.
// Rows are appended and parsed in exactly this order.
var RecordColumns = []string{
	"timestamp",
	"chat_id",
	"user",
	"city",
	"price",
	"m2",
	"rent_est",
	"state",
	"url",
	"notes",
	"photo_filename",
	"contact",
}

// ListingRecord is one persisted property submission. Once appended to the
// backend it is never updated or deleted.
type ListingRecord struct {
	SubmittedAt string
	ChatID      string
	Submitter   string
	City        string
	Price       *float64
	AreaM2      *float64
	MonthlyRent *float64
	Condition   string
	URL         string
	Notes       string
	Photo       string
	Contact     string
}

// Yield returns the gross annual yield percent, rounded to two decimals.
// It is undefined (ok=false) when price or rent is absent, or price is zero.
func (r ListingRecord) Yield() (float64, bool) {
	return ComputeYield(r.Price, r.MonthlyRent)
}

// ComputeYield derives (rent*12/price)*100 rounded to two decimals.
func ComputeYield(price, rent *float64) (float64, bool) {
	if price == nil || rent == nil || *price == 0 {
		return 0, false
	}
	y := (*rent * 12) / *price * 100
	return math.Round(y*100) / 100, true
}

// ParseAmount converts a raw cell value to a number. Thousands separators and
// surrounding whitespace are stripped. Anything that does not parse as a
// non-negative number is absent, never zero.
func ParseAmount(raw string) *float64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

// ParseRow builds a record from a raw backend row of up to 12 cells.
// Missing trailing cells default to absent: external edits routinely leave
// rows short and that must not abort a read.
func ParseRow(row []string) ListingRecord {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	return ListingRecord{
		SubmittedAt: cell(0),
		ChatID:      cell(1),
		Submitter:   cell(2),
		City:        cell(3),
		Price:       ParseAmount(cell(4)),
		AreaM2:      ParseAmount(cell(5)),
		MonthlyRent: ParseAmount(cell(6)),
		Condition:   cell(7),
		URL:         cell(8),
		Notes:       cell(9),
		Photo:       cell(10),
		Contact:     cell(11),
	}
}

// Row flattens the record back into the fixed column order.
func (r ListingRecord) Row() []string {
	return []string{
		r.SubmittedAt,
		r.ChatID,
		r.Submitter,
		r.City,
		formatAmount(r.Price),
		formatAmount(r.AreaM2),
		formatAmount(r.MonthlyRent),
		r.Condition,
		r.URL,
		r.Notes,
		r.Photo,
		r.Contact,
	}
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// RankKey selects the ordering of a listings query.
type RankKey string

const (
	RankByYield RankKey = "yield"
	RankByPrice RankKey = "price"
	RankByCity  RankKey = "city"
)

// DefaultWindow is the number of records returned by ranking and city
// filter queries.
const DefaultWindow = 5

// SessionMode distinguishes the dialogue a user is currently in.
type SessionMode string

const (
	ModeSell       SessionMode = "sell"
	ModeContact    SessionMode = "contact"
	ModeCitySearch SessionMode = "city_search"
)

// Step is the position inside the sell conversation.
type Step int

const (
	StepCity Step = iota
	StepPrice
	StepArea
	StepRent
	StepCondition
	StepURL
	StepPhoto
	StepContact
	StepConfirm
)

// Draft holds the fields collected so far, verbatim as the user sent them.
// Malformed numeric input is kept as-is; it only degrades the derived yield
// once the record is built.
type Draft struct {
	City      string `json:"city"`
	Price     string `json:"price"`
	Area      string `json:"area"`
	Rent      string `json:"rent"`
	Condition string `json:"condition"`
	URL       string `json:"url"`
	Photo     string `json:"photo"`
	Contact   string `json:"contact"`
}

// Session is one user's in-progress dialogue. There is at most one session
// per user; a new entry trigger replaces any existing one.
type Session struct {
	ChatID    int64       `json:"chat_id"`
	UserID    int64       `json:"user_id"`
	UserName  string      `json:"user_name"`
	Mode      SessionMode `json:"mode"`
	Step      Step        `json:"step"`
	Draft     Draft       `json:"draft"`
	CreatedAt time.Time   `json:"created_at"`
}
