// Package meter simulates smart meters that produce grid readings and push
// them to the edge.
package meter

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/gridedge/internal/domain/model"
)

// Nominal electrical values of a meter.
const (
	baseVoltage      = 230.0
	voltageSpread    = 5.0
	baseCurrent      = 10.0
	currentSpread    = 2.0
	nominalPower     = baseVoltage * baseCurrent
	defaultSpikeProb = 0.05
)

// Weather weights on consumption.
const (
	temperatureImpact = 0.4
	humidityImpact    = 0.3
)

// Generator produces readings for one city. Weather drifts smoothly from one
// reading to the next.
type Generator struct {
	city      string
	profile   Profile
	spikeProb float64

	mu       sync.Mutex
	rng      *rand.Rand
	weather  bool
	temp     float64
	humidity float64
}

// NewGenerator creates a Generator for city. A nil rng uses a random seed.
// spikeProb is the chance that a reading is an injected spike.
func NewGenerator(city string, rng *rand.Rand, spikeProb float64) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if spikeProb < 0 || spikeProb > 1 {
		spikeProb = defaultSpikeProb
	}
	return &Generator{city: city, profile: ProfileFor(city), spikeProb: spikeProb, rng: rng}
}

// City returns the source id of generated readings.
func (g *Generator) City() string {
	return g.city
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Generate returns a reading taken at now.
func (g *Generator) Generate(now time.Time) model.RawReading {
	g.mu.Lock()
	defer g.mu.Unlock()

	hour := now.Hour()
	peak := g.profile.isPeak(hour)

	voltage := baseVoltage + g.uniform(-voltageSpread, voltageSpread)
	current := baseCurrent + g.uniform(-currentSpread, currentSpread)

	temp, humidity := g.nextWeather(hour)
	power := voltage * current
	power += temperatureImpact * (temp - g.profile.Temperature.mid())
	power += humidityImpact * (humidity - g.profile.Humidity.mid())

	spike := g.rng.Float64() < g.spikeProb
	if spike {
		factor := 2.0
		if g.rng.IntN(2) == 0 {
			factor = 0.5
		}
		power *= factor
		current *= factor
	}

	zones := g.zoneSplit(hour, temp, power)

	return model.RawReading{
		"source_id":              g.city,
		"city":                   g.city,
		"timestamp":              now.UTC().Format(time.RFC3339Nano),
		"voltage":                round2(voltage),
		"current":                round2(current),
		"power_consumption":      round2(power),
		"temperature":            round1(temp),
		"humidity":               round1(humidity),
		"is_anomaly":             spike,
		"is_peak_hour":           peak,
		"zone_distribution":      zones,
		"per_capita_consumption": round2(g.perCapita(power)),
		"efficiency_score":       round2(g.efficiency(peak, temp, power)),
	}
}

// nextWeather follows a daily curve for the first reading, then drifts by
// at most 0.5 °C and 1 % per reading within the city's ranges.
func (g *Generator) nextWeather(hour int) (float64, float64) {
	p := g.profile
	if !g.weather {
		g.temp = p.Temperature.mid() - p.Temperature.amplitude()*math.Cos(2*math.Pi*float64(hour-4)/24)
		g.humidity = p.Humidity.mid() + p.Humidity.amplitude()*math.Cos(2*math.Pi*float64(hour-6)/24)
		g.weather = true
	} else {
		g.temp = p.Temperature.clamp(g.temp + g.uniform(-0.5, 0.5))
		g.humidity = p.Humidity.clamp(g.humidity + g.uniform(-1, 1))
	}
	return g.temp, g.humidity
}

// zoneSplit distributes power over zone types by zone counts, time of day
// and heat.
func (g *Generator) zoneSplit(hour int, temp, power float64) map[string]any {
	p := g.profile
	total := float64(p.zones())
	industrial := float64(p.IndustrialZones) / total
	residential := float64(p.ResidentialZones) / total
	commercial := float64(p.CommercialZones) / total

	switch {
	case hour >= 6 && hour < 9:
		industrial, commercial, residential = industrial*0.7, commercial*0.5, residential*1.4
	case hour >= 9 && hour < 17:
		industrial, commercial, residential = industrial*1.4, commercial*1.3, residential*0.6
	case hour >= 17 && hour < 22:
		industrial, commercial, residential = industrial*0.5, commercial*0.8, residential*1.5
	default:
		industrial, commercial, residential = industrial*0.3, commercial*0.2, residential*1.2
	}

	heat := (temp - p.Temperature.mid()) / 10
	industrial *= 1 + heat*0.2
	residential *= 1 - heat*0.1

	sum := industrial + residential + commercial
	return map[string]any{
		"industrial":  round2(power * industrial / sum * g.uniform(0.95, 1.05)),
		"residential": round2(power * residential / sum * g.uniform(0.95, 1.05)),
		"commercial":  round2(power * commercial / sum * g.uniform(0.95, 1.05)),
	}
}

func (g *Generator) perCapita(power float64) float64 {
	p := g.profile
	density := p.Population / float64(p.zones())
	return power / (p.Population * (1 + density/100))
}

func (g *Generator) efficiency(peak bool, temp, power float64) float64 {
	score := g.uniform(0.85, 0.95)
	if peak {
		score *= 0.9
	}
	score *= math.Max(0.7, 1-math.Abs(temp-g.profile.Temperature.mid())/50)
	score *= math.Max(0.7, 1-math.Abs(power/nominalPower-1)*0.2)
	return score
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
