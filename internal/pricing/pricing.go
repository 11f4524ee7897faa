package pricing

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"

	"github.com/Mutombe/cargo-space/internal/models"
)

const (
	Currency = "ZWL"

	FragileSurcharge  = 0.10
	HandlingSurcharge = 0.15
	ServiceFeeRate    = 0.10
)

var (
	ErrNoAmount = errors.New("price has no digits")
	ErrBadOffer = errors.New("offer must be a whole ZWL amount")
)

var offerPattern = regexp.MustCompile(`^(?:\d+|\d{1,3}(?:,\d{3})+)$`)

// baseCost is the flat ZWL rate per transport mode before surcharges.
var baseCost = map[models.TransportMode]int64{
	models.ModeBike:        500,
	models.ModeCar:         1500,
	models.ModeSmallTruck:  5000,
	models.ModeMediumTruck: 15000,
	models.ModeLargeTruck:  35000,
	models.ModeHeavyHaul:   100000,
}

// Base returns the base rate for mode, 0 when the mode is unknown or unset.
func Base(mode models.TransportMode) int64 { return baseCost[mode] }

// Estimate computes round(base * (1 + 0.10*fragile + 0.15*handling)).
func Estimate(mode models.TransportMode, fragile, requiresHandling bool) int64 {
	factor := 1.0
	if fragile {
		factor += FragileSurcharge
	}
	if requiresHandling {
		factor += HandlingSurcharge
	}
	return int64(math.Round(float64(Base(mode)) * factor))
}

// EstimatePost is Estimate applied to a cargo post's mode and flags.
func EstimatePost(p models.CargoPost) int64 {
	return Estimate(p.TransportMode, p.Details.Fragile, p.Details.RequiresHandling)
}

// ServiceFee is the platform fee charged on top of the agreed price.
func ServiceFee(agreed int64) int64 {
	return int64(math.Round(float64(agreed) * ServiceFeeRate))
}

func Total(agreed int64) int64 { return agreed + ServiceFee(agreed) }

// ParseAmount extracts the integer amount from a display label such as "ZWL 4,500".
// Everything but digits is dropped.
func ParseAmount(label string) (int64, error) {
	var b strings.Builder
	for _, r := range label {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimLeft(b.String(), "0")
	if b.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoAmount, label)
	}
	if digits == "" {
		return 0, nil
	}
	v, err := cast.ToInt64E(digits)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", label, err)
	}
	return v, nil
}

// ParseOffer reads a price typed by a user: a whole amount with an optional
// ZWL prefix and thousands commas. Signs and decimals are rejected.
func ParseOffer(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if len(s) >= len(Currency) && strings.EqualFold(s[:len(Currency)], Currency) {
		s = strings.TrimSpace(s[len(Currency):])
	}
	if !offerPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q", ErrBadOffer, input)
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadOffer, input)
	}
	return v, nil
}

// Format renders an amount the way the price labels are written.
func Format(amount int64) string {
	s := cast.ToString(amount)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return Currency + " -" + string(out)
	}
	return Currency + " " + string(out)
}
