package models

import "time"

type Coord struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

type CargoType string

const (
	CargoGeneral      CargoType = "general"
	CargoFurniture    CargoType = "furniture"
	CargoElectronics  CargoType = "electronics"
	CargoDocuments    CargoType = "documents"
	CargoClothing     CargoType = "clothing"
	CargoJewelry      CargoType = "jewelry"
	CargoAgricultural CargoType = "agricultural"
)

var CargoTypes = []CargoType{
	CargoGeneral, CargoFurniture, CargoElectronics, CargoDocuments,
	CargoClothing, CargoJewelry, CargoAgricultural,
}

func (c CargoType) Valid() bool {
	for _, t := range CargoTypes {
		if t == c {
			return true
		}
	}
	return false
}

// TransportMode is ordered by capacity tier; see Tier.
type TransportMode string

const (
	ModeBike        TransportMode = "bike"
	ModeCar         TransportMode = "car"
	ModeSmallTruck  TransportMode = "small-truck"
	ModeMediumTruck TransportMode = "medium-truck"
	ModeLargeTruck  TransportMode = "large-truck"
	ModeHeavyHaul   TransportMode = "heavy-haul"
)

var TransportModes = []TransportMode{
	ModeBike, ModeCar, ModeSmallTruck, ModeMediumTruck, ModeLargeTruck, ModeHeavyHaul,
}

// Tier returns the position of the mode in TransportModes, or -1.
func (m TransportMode) Tier() int {
	for i, t := range TransportModes {
		if t == m {
			return i
		}
	}
	return -1
}

func (m TransportMode) Valid() bool { return m.Tier() >= 0 }

type Location struct {
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
	Coord   Coord  `json:"coordinates" yaml:"coordinates"`
}

type Dimensions struct {
	Length float64 `json:"length_cm"`
	Width  float64 `json:"width_cm"`
	Height float64 `json:"height_cm"`
}

type CargoDetails struct {
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	WeightKg         float64    `json:"weight_kg"`
	Dimensions       Dimensions `json:"dimensions"`
	Images           []string   `json:"images"`
	Fragile          bool       `json:"fragile"`
	RequiresHandling bool       `json:"requires_handling"`
}

type CargoPost struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id,omitempty"`
	Type          CargoType     `json:"type"`
	Pickup        *Location     `json:"pickup,omitempty"`
	Dropoff       *Location     `json:"dropoff,omitempty"`
	Details       CargoDetails  `json:"details"`
	TransportMode TransportMode `json:"transport_mode,omitempty"`
	EstimatedCost int64         `json:"estimated_cost"`
	PostedAt      time.Time     `json:"posted_at,omitempty"`
}

// Clone returns a deep copy so finalized posts cannot be mutated through shared slices.
func (c CargoPost) Clone() CargoPost {
	out := c
	if c.Pickup != nil {
		p := *c.Pickup
		out.Pickup = &p
	}
	if c.Dropoff != nil {
		d := *c.Dropoff
		out.Dropoff = &d
	}
	out.Details.Images = append([]string(nil), c.Details.Images...)
	return out
}

type DriverOffer struct {
	ID        string `json:"id" yaml:"id"`
	DriverID  string `json:"driver_id" yaml:"-"`
	Price     string `json:"price" yaml:"price"`
	BasePrice int64  `json:"base_price" yaml:"-"`
	Message   string `json:"message" yaml:"message"`
}

type Driver struct {
	ID       string        `json:"id" yaml:"id"`
	Name     string        `json:"name" yaml:"name"`
	Loc      Coord         `json:"loc" yaml:"location"`
	Rating   float64       `json:"rating" yaml:"rating"` // 0..5
	Reviews  int           `json:"reviews" yaml:"reviews"`
	Vehicle  string        `json:"vehicle" yaml:"vehicle"`
	Capacity string        `json:"capacity" yaml:"capacity"`
	Phone    string        `json:"phone,omitempty" yaml:"phone"`
	Price    string        `json:"price" yaml:"price"`
	Online   bool          `json:"online" yaml:"online"`
	Offers   []DriverOffer `json:"offers,omitempty" yaml:"offers"`
	Updated  time.Time     `json:"updated" yaml:"-"`
}

// Candidate is a driver as presented to a shipper for one cargo post.
type Candidate struct {
	Driver     Driver  `json:"driver"`
	DistanceKm float64 `json:"distance_km"`
	ETA        float64 `json:"eta_seconds"`
	Score      float64 `json:"score"`
}

type BookingStatus string

const (
	StatusMatching    BookingStatus = "matching"
	StatusNegotiating BookingStatus = "negotiating"
	StatusPayment     BookingStatus = "payment"
	StatusPaid        BookingStatus = "paid"
	StatusTracking    BookingStatus = "tracking"
	StatusDelivered   BookingStatus = "delivered"
)

var statusOrder = map[BookingStatus]int{
	StatusMatching:    0,
	StatusNegotiating: 1,
	StatusPayment:     2,
	StatusPaid:        3,
	StatusTracking:    4,
	StatusDelivered:   5,
}

// Rank orders statuses; unknown statuses rank -1.
func (s BookingStatus) Rank() int {
	r, ok := statusOrder[s]
	if !ok {
		return -1
	}
	return r
}

type PriceSource string

const (
	PriceListed     PriceSource = "listed"
	PriceNegotiated PriceSource = "negotiated"
)

// OfferParty says who wrote a booking's offer message.
type OfferParty string

const (
	OfferByShipper OfferParty = "shipper"
	OfferByDriver  OfferParty = "driver"
)

type PaymentMethod string

const (
	PayMobileMoney PaymentMethod = "mobile-money"
	PayCard        PaymentMethod = "card"
	PayCash        PaymentMethod = "cash"
)

// ParsePaymentMethod accepts the canonical names and the brand aliases shown to users.
func ParsePaymentMethod(v string) (PaymentMethod, bool) {
	switch v {
	case "mobile-money", "ecocash":
		return PayMobileMoney, true
	case "card", "visa":
		return PayCard, true
	case "cash":
		return PayCash, true
	}
	return "", false
}

type Booking struct {
	ID             string        `json:"id"`
	CargoPost      CargoPost     `json:"cargo_post"`
	SelectedDriver *Driver       `json:"selected_driver,omitempty"`
	AgreedPrice    int64         `json:"agreed_price"`
	PriceSource    PriceSource   `json:"price_source,omitempty"`
	OfferMessage   string        `json:"offer_message,omitempty"`
	OfferBy        OfferParty    `json:"offer_by,omitempty"`
	PaymentMethod  PaymentMethod `json:"payment_method,omitempty"`
	ServiceFee     int64         `json:"service_fee"`
	Total          int64         `json:"total"`
	PaymentRef     string        `json:"payment_ref,omitempty"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BookingEvent is published on every booking status change.
type BookingEvent struct {
	BookingID string        `json:"booking_id"`
	CargoID   string        `json:"cargo_id"`
	DriverID  string        `json:"driver_id,omitempty"`
	Status    BookingStatus `json:"status"`
	Position  *Coord        `json:"position,omitempty"`
	At        time.Time     `json:"at"`
}
