package meter

// Range is a closed interval.
type Range struct {
	Min float64
	Max float64
}

func (r Range) mid() float64       { return (r.Min + r.Max) / 2 }
func (r Range) amplitude() float64 { return (r.Max - r.Min) / 2 }

func (r Range) clamp(v float64) float64 {
	switch {
	case v < r.Min:
		return r.Min
	case v > r.Max:
		return r.Max
	}
	return v
}

// Profile describes the local conditions a city's meter simulates.
type Profile struct {
	PeakHours        []int
	Temperature      Range // °C
	Humidity         Range // %
	Population       float64
	IndustrialZones  int
	ResidentialZones int
	CommercialZones  int
}

func (p Profile) zones() int {
	return p.IndustrialZones + p.ResidentialZones + p.CommercialZones
}

func (p Profile) isPeak(hour int) bool {
	for _, h := range p.PeakHours {
		if h == hour {
			return true
		}
	}
	return false
}

// Profiles holds the built-in city profiles.
var Profiles = map[string]Profile{
	"Mumbai": {
		PeakHours:   []int{9, 13, 18, 22},
		Temperature: Range{25, 35}, Humidity: Range{65, 85},
		Population: 20.4, IndustrialZones: 12, ResidentialZones: 24, CommercialZones: 18,
	},
	"Delhi": {
		PeakHours:   []int{10, 14, 19, 23},
		Temperature: Range{20, 45}, Humidity: Range{40, 60},
		Population: 19.1, IndustrialZones: 15, ResidentialZones: 30, CommercialZones: 20,
	},
	"Bangalore": {
		PeakHours:   []int{8, 12, 17, 21},
		Temperature: Range{20, 30}, Humidity: Range{50, 70},
		Population: 12.3, IndustrialZones: 10, ResidentialZones: 22, CommercialZones: 16,
	},
	"Chennai": {
		PeakHours:   []int{9, 13, 18, 22},
		Temperature: Range{28, 38}, Humidity: Range{70, 90},
		Population: 10.9, IndustrialZones: 8, ResidentialZones: 20, CommercialZones: 14,
	},
	"Kolkata": {
		PeakHours:   []int{8, 12, 17, 21},
		Temperature: Range{25, 35}, Humidity: Range{70, 85},
		Population: 14.8, IndustrialZones: 9, ResidentialZones: 25, CommercialZones: 15,
	},
}

// DefaultProfile is used for cities without a built-in profile.
var DefaultProfile = Profile{
	PeakHours:   []int{9, 13, 18, 22},
	Temperature: Range{20, 32}, Humidity: Range{50, 75},
	Population: 10, IndustrialZones: 10, ResidentialZones: 20, CommercialZones: 15,
}

// ProfileFor returns the profile of city, or DefaultProfile.
func ProfileFor(city string) Profile {
	if p, ok := Profiles[city]; ok {
		return p
	}
	return DefaultProfile
}
