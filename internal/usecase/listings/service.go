package listings

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"ready2rent-bot/internal/domain"
)

// Service answers one-shot listing queries against the repository.
type Service struct {
	repo   domain.ListingRepo
	log    zerolog.Logger
	window int
}

// NewService creates the listings query service.
func NewService(repo domain.ListingRepo, log zerolog.Logger, window int) *Service {
	if window <= 0 {
		window = domain.DefaultWindow
	}
	return &Service{repo: repo, log: log, window: window}
}

// Top loads all records and returns the ranked window for the given key.
func (s *Service) Top(ctx context.Context, key domain.RankKey) ([]domain.ListingRecord, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cargar listados: %w", err)
	}
	return Rank(records, key, s.window), nil
}

// ByCity loads all records and returns up to the window of exact
// case-insensitive city matches, in original order.
func (s *Service) ByCity(ctx context.Context, city string) ([]domain.ListingRecord, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cargar listados: %w", err)
	}
	return FilterByCity(records, city, s.window), nil
}

// Recent returns the last n records in submission order.
func (s *Service) Recent(ctx context.Context, n int) ([]domain.ListingRecord, error) {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cargar listados: %w", err)
	}
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}

// Rank sorts records by the given key and truncates to n. Yield ranking
// drops records with undefined yield and sorts descending; price ranking
// drops records without a price and sorts ascending; city ranking keeps
// everything and sorts by case-insensitive city name. All sorts are stable,
// so ties keep their original order. An empty result is not an error.
func Rank(records []domain.ListingRecord, key domain.RankKey, n int) []domain.ListingRecord {
	out := make([]domain.ListingRecord, 0, len(records))
	switch key {
	case domain.RankByYield:
		for _, r := range records {
			if _, ok := r.Yield(); ok {
				out = append(out, r)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			yi, _ := out[i].Yield()
			yj, _ := out[j].Yield()
			return yi > yj
		})
	case domain.RankByPrice:
		for _, r := range records {
			if r.Price != nil {
				out = append(out, r)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return *out[i].Price < *out[j].Price
		})
	case domain.RankByCity:
		out = append(out, records...)
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].City) < strings.ToLower(out[j].City)
		})
	default:
		out = append(out, records...)
	}
	return window(out, n)
}

// FilterByCity keeps exact case-insensitive matches, preserving order.
func FilterByCity(records []domain.ListingRecord, city string, n int) []domain.ListingRecord {
	target := strings.ToLower(strings.TrimSpace(city))
	out := make([]domain.ListingRecord, 0, n)
	for _, r := range records {
		if strings.ToLower(strings.TrimSpace(r.City)) == target {
			out = append(out, r)
		}
	}
	return window(out, n)
}

func window(records []domain.ListingRecord, n int) []domain.ListingRecord {
	if n <= 0 {
		n = domain.DefaultWindow
	}
	if len(records) > n {
		records = records[:n]
	}
	return records
}

// FormatCard renders one listing as a chat message.
func FormatCard(r domain.ListingRecord) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏠 %s · Precio: %s€ · m²: %s\n", orDash(r.City), amountOrDash(r.Price), amountOrDash(r.AreaM2)))
	if y, ok := r.Yield(); ok {
		b.WriteString(fmt.Sprintf("📈 Yield aprox.: %.2f %%\n", y))
	}
	if r.URL != "" {
		b.WriteString("🔗 " + r.URL + "\n")
	}
	if r.Contact != "" {
		b.WriteString("📞 " + r.Contact + "\n")
	}
	b.WriteString("Publicado: " + r.SubmittedAt)
	return b.String()
}

// FormatAdminLine renders the compact one-line view used by /lista.
func FormatAdminLine(r domain.ListingRecord) string {
	return fmt.Sprintf("- %s | %s | %s | %s€", r.SubmittedAt, r.Submitter, r.City, amountOrDash(r.Price))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return s
}

func amountOrDash(v *float64) string {
	if v == nil {
		return "—"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
